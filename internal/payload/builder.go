// Package payload builds workflow submission payloads from a shared template.
package payload

import (
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jinzhu/copier"
	"gopkg.in/yaml.v3"

	"promethium-examples/runner/internal/results"
	"promethium-examples/runner/pkg/models"
)

//go:embed templates/conformer_search.yaml
var conformerSearchTemplate []byte

const (
	// NameSuffix is appended to every input label to form the workflow name.
	NameSuffix = "_api_conformer-search"

	smilesFileType = "smi"
)

// Input is a labelled molecule to submit.
type Input struct {
	Name   string
	SMILES string
}

// ExampleInputs returns the molecules used by the getting-started example.
func ExampleInputs() []Input {
	return []Input{
		{Name: "Diethyl_Ether", SMILES: "CCOCC"},
		{Name: "Nirmatrelvir", SMILES: "CC1(C2C1C(N(C2)C(=O)C(C(C)(C)C)NC(=O)C(F)(F)F)C(=O)NC(CC3CCNC3=O)C#N)C"},
	}
}

// PairInputs zips SMILES strings with their labels.
func PairInputs(smiles, names []string) ([]Input, error) {
	if len(smiles) != len(names) {
		return nil, fmt.Errorf("got %d SMILES strings but %d names", len(smiles), len(names))
	}
	inputs := make([]Input, len(smiles))
	for i := range smiles {
		inputs[i] = Input{Name: names[i], SMILES: smiles[i]}
	}
	return inputs, nil
}

// WorkflowName derives the workflow name for an input label.
func WorkflowName(label string) string {
	return label + NameSuffix
}

// DefaultTemplate returns a fresh copy of the built-in conformer search template.
func DefaultTemplate() (*models.WorkflowRequest, error) {
	return ParseTemplate(conformerSearchTemplate)
}

// LoadTemplate reads a template from a YAML or JSON file.
func LoadTemplate(path string) (*models.WorkflowRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template: %w", err)
	}
	return ParseTemplate(data)
}

// ParseTemplate decodes a template. JSON documents are accepted as YAML.
func ParseTemplate(data []byte) (*models.WorkflowRequest, error) {
	var tmpl models.WorkflowRequest
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to decode template: %w", err)
	}
	if err := validateTemplate(&tmpl); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

func validateTemplate(tmpl *models.WorkflowRequest) error {
	if tmpl == nil {
		return errors.New("template is nil")
	}
	if !tmpl.Kind.IsValid() {
		return fmt.Errorf("template has unsupported kind %q", tmpl.Kind)
	}
	if tmpl.Version == "" {
		return errors.New("template has no version")
	}
	for i, f := range tmpl.Parameters.Filters {
		if f.FilterType == "" {
			return fmt.Errorf("filter %d has no filtertype", i)
		}
	}
	return nil
}

// Builder produces one independent request per input. The template is
// never modified.
type Builder struct {
	template *models.WorkflowRequest
	gpuType  string
}

// NewBuilder creates a Builder. An empty gpuType keeps the template's value.
func NewBuilder(template *models.WorkflowRequest, gpuType string) (*Builder, error) {
	if err := validateTemplate(template); err != nil {
		return nil, err
	}
	return &Builder{template: template, gpuType: gpuType}, nil
}

// Build returns one request per input, in input order.
func (b *Builder) Build(inputs []Input) ([]*models.WorkflowRequest, error) {
	reqs := make([]*models.WorkflowRequest, 0, len(inputs))
	for _, in := range inputs {
		req, err := b.BuildOne(in)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// BuildOne returns the request for a single input.
func (b *Builder) BuildOne(in Input) (*models.WorkflowRequest, error) {
	label := strings.TrimSpace(in.Name)
	if label == "" {
		return nil, errors.New("input name is empty")
	}
	if err := results.ValidateName(label); err != nil {
		return nil, fmt.Errorf("input label: %w", err)
	}
	if strings.TrimSpace(in.SMILES) == "" {
		return nil, fmt.Errorf("input %s has an empty SMILES string", label)
	}

	var req models.WorkflowRequest
	if err := copier.CopyWithOption(&req, b.template, copier.Option{DeepCopy: true}); err != nil {
		return nil, fmt.Errorf("failed to copy template: %w", err)
	}

	req.Name = WorkflowName(label)
	req.Parameters.Molecule = models.Molecule{
		Base64Data: base64.StdEncoding.EncodeToString([]byte(in.SMILES)),
		FileType:   smilesFileType,
	}
	if b.gpuType != "" {
		req.Resources.GPUType = b.gpuType
	}
	return &req, nil
}
