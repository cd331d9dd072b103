package models

import (
	"encoding/json"
	"fmt"
)

// ArtifactConformers is the artifact key holding the filtered conformers.
const ArtifactConformers = "conformers"

// WorkflowResult is the structured artifact set produced by a finished
// workflow. Artifacts are kept as raw JSON since their schema belongs to the
// remote service.
type WorkflowResult struct {
	WorkflowID string                     `json:"workflow_id"`
	Name       string                     `json:"name"`
	Kind       WorkflowKind               `json:"kind,omitempty"`
	Artifacts  map[string]json.RawMessage `json:"artifacts"`
	// Extra holds any other top-level fields of the response so they are
	// kept when the result is written out.
	Extra map[string]json.RawMessage `json:"-"`
}

var resultFields = []string{"workflow_id", "name", "kind", "artifacts"}

// UnmarshalJSON decodes the known fields and keeps the rest in Extra.
func (r *WorkflowResult) UnmarshalJSON(data []byte) error {
	type plain WorkflowResult
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range resultFields {
		delete(all, k)
	}
	p.Extra = nil
	if len(all) > 0 {
		p.Extra = all
	}
	*r = WorkflowResult(p)
	return nil
}

// MarshalJSON encodes the known fields together with Extra.
func (r WorkflowResult) MarshalJSON() ([]byte, error) {
	type plain WorkflowResult
	data, err := json.Marshal(plain(r))
	if err != nil || len(r.Extra) == 0 {
		return data, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, v := range r.Extra {
		if _, known := all[k]; !known {
			all[k] = v
		}
	}
	return json.Marshal(all)
}

// Artifact returns the named artifact.
func (r *WorkflowResult) Artifact(name string) (json.RawMessage, bool) {
	if r == nil || r.Artifacts == nil {
		return nil, false
	}
	a, ok := r.Artifacts[name]
	return a, ok
}

// Conformer is a single conformer from the conformers artifact.
type Conformer struct {
	Energy float64 `json:"energy"` // Hartree
	XYZ    string  `json:"xyz,omitempty"`
}

// Conformers decodes the conformers artifact.
func (r *WorkflowResult) Conformers() ([]Conformer, error) {
	raw, ok := r.Artifact(ArtifactConformers)
	if !ok {
		return nil, fmt.Errorf("artifact %q not present", ArtifactConformers)
	}
	var conformers []Conformer
	if err := json.Unmarshal(raw, &conformers); err != nil {
		return nil, fmt.Errorf("failed to decode %s artifact: %w", ArtifactConformers, err)
	}
	return conformers, nil
}
