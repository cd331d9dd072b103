package services

import (
	"context"

	"promethium-examples/runner/pkg/models"
)

// WorkflowClient is an interface for communicating with the workflow API.
type WorkflowClient interface {
	// Submit creates a workflow and returns its server-assigned identity.
	Submit(ctx context.Context, req *models.WorkflowRequest) (*models.Workflow, error)
	// Wait blocks until the workflow reaches a terminal state.
	Wait(ctx context.Context, id string) (*models.Workflow, error)
	// Get returns the current state of a workflow.
	Get(ctx context.Context, id string) (*models.Workflow, error)
	// Results returns the artifacts of a finished workflow.
	Results(ctx context.Context, id string) (*models.WorkflowResult, error)
}

// ResultWriter persists workflow results.
type ResultWriter interface {
	Write(name string, result *models.WorkflowResult) (string, error)
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
