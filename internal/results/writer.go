// Package results persists workflow results and summarizes conformer sets.
package results

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"promethium-examples/runner/pkg/models"
)

const fileSuffix = "_results.json"

// Writer writes one JSON file per workflow into a directory.
type Writer struct {
	dir string
}

// NewWriter creates a Writer for dir. The directory is created on first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Path returns the file a result for the named workflow is written to.
func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name+fileSuffix)
}

// ValidateName checks that name can be used as a result file name: it must
// be non-empty, must not be "." or "..", and must not contain a path separator.
func ValidateName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid workflow name %q for a result file", name)
	}
	return nil
}

// Write serializes result to <dir>/<name>_results.json and returns the path.
func (w *Writer) Write(name string, result *models.WorkflowResult) (string, error) {
	if result == nil {
		return "", errors.New("result is nil")
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize result: %w", err)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := w.Path(name)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// Read decodes a result file written by Writer. Artifacts and extra fields
// are returned in compact form, undoing the indentation applied on write.
func Read(path string) (*models.WorkflowResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var result models.WorkflowResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if err := compactAll(result.Artifacts); err != nil {
		return nil, err
	}
	if err := compactAll(result.Extra); err != nil {
		return nil, err
	}
	return &result, nil
}

func compactAll(fields map[string]json.RawMessage) error {
	for name, raw := range fields {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return fmt.Errorf("failed to compact %s: %w", name, err)
		}
		fields[name] = buf.Bytes()
	}
	return nil
}
