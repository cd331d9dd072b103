// Package models defines the wire types exchanged with the workflow API.
package models

import (
	"strings"
	"time"
)

// WorkflowKind identifies the type of remote workflow.
type WorkflowKind string

const (
	WorkflowKindConformerSearch WorkflowKind = "ConformerSearch"
)

// IsValid checks if the workflow kind is supported.
func (k WorkflowKind) IsValid() bool {
	switch k {
	case WorkflowKindConformerSearch:
		return true
	default:
		return false
	}
}

// WorkflowStatus is the lifecycle state reported by the remote service.
type WorkflowStatus string

const (
	WorkflowStatusPending   WorkflowStatus = "PENDING"
	WorkflowStatusQueued    WorkflowStatus = "QUEUED"
	WorkflowStatusRunning   WorkflowStatus = "RUNNING"
	WorkflowStatusCompleted WorkflowStatus = "COMPLETED"
	WorkflowStatusFailed    WorkflowStatus = "FAILED"
	WorkflowStatusCancelled WorkflowStatus = "CANCELLED"
)

// ParseWorkflowStatus normalizes a status string. Unknown values are returned
// upper-cased and report false from IsValid.
func ParseWorkflowStatus(s string) WorkflowStatus {
	return WorkflowStatus(strings.ToUpper(strings.TrimSpace(s)))
}

// IsValid checks if the status is one of the known states.
func (s WorkflowStatus) IsValid() bool {
	switch s {
	case WorkflowStatusPending, WorkflowStatusQueued, WorkflowStatusRunning,
		WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the workflow will not change state again.
func (s WorkflowStatus) IsTerminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// Succeeded reports whether the workflow completed successfully.
func (s WorkflowStatus) Succeeded() bool {
	return s == WorkflowStatusCompleted
}

// WorkflowRequest is the submission payload. Field names are a fixed external
// contract and must not be renamed.
type WorkflowRequest struct {
	Name       string             `json:"name" yaml:"name"`
	Version    string             `json:"version" yaml:"version"`
	Kind       WorkflowKind       `json:"kind" yaml:"kind"`
	Parameters WorkflowParameters `json:"parameters" yaml:"parameters"`
	Resources  Resources          `json:"resources" yaml:"resources"`
}

// WorkflowParameters holds the molecule, the generation parameters and the
// ordered filter pipeline.
type WorkflowParameters struct {
	Molecule Molecule               `json:"molecule" yaml:"molecule"`
	Params   map[string]interface{} `json:"params" yaml:"params"`
	Filters  []FilterStage          `json:"filters" yaml:"filters"`
}

// Molecule is a base64 encoded input structure.
type Molecule struct {
	Base64Data string `json:"base64data,omitempty" yaml:"base64data,omitempty"`
	FileType   string `json:"filetype,omitempty" yaml:"filetype,omitempty"`
}

// FilterStage is one step of the coarse-to-fine filtering pipeline. The
// order of stages is significant to the remote service.
type FilterStage struct {
	FilterType string                 `json:"filtertype" yaml:"filtertype"`
	Params     map[string]interface{} `json:"params" yaml:"params"`
	Key        string                 `json:"key" yaml:"key"`
	System     *ParamBlock            `json:"system,omitempty" yaml:"system,omitempty"`
	HF         *ParamBlock            `json:"hf,omitempty" yaml:"hf,omitempty"`
	JKBuilder  *JKBuilder             `json:"jk_builder,omitempty" yaml:"jk_builder,omitempty"`
}

// ParamBlock wraps a nested solver parameter set.
type ParamBlock struct {
	Params map[string]interface{} `json:"params" yaml:"params"`
}

// JKBuilder selects the Coulomb/exchange builder for DFT stages.
type JKBuilder struct {
	Type   string                 `json:"type" yaml:"type"`
	Params map[string]interface{} `json:"params" yaml:"params"`
}

// Resources carries scheduling hints for the remote service.
type Resources struct {
	GPUType string `json:"gpu_type,omitempty" yaml:"gpu_type,omitempty"`
}

// Workflow is the server-side view of a submitted workflow.
type Workflow struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Kind            WorkflowKind   `json:"kind,omitempty"`
	Status          WorkflowStatus `json:"status"`
	DurationSeconds float64        `json:"duration_seconds"`
	CreatedAt       *time.Time     `json:"created_at,omitempty"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	EndedAt         *time.Time     `json:"ended_at,omitempty"`
	Error           string         `json:"error,omitempty"`
}
