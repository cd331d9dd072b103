package repository

import (
	"context"
	"errors"
	"time"

	"promethium-examples/runner/pkg/models"
)

// ErrNotFound is returned when a workflow is not in the ledger.
var ErrNotFound = errors.New("workflow not found in ledger")

// LedgerEntry records a submitted workflow so results can be collected by
// a later run.
type LedgerEntry struct {
	WorkflowID  string
	Name        string
	Kind        models.WorkflowKind
	Status      models.WorkflowStatus
	SubmittedAt time.Time
	ResultPath  string
	CollectedAt *time.Time
}

// Collected reports whether results were already collected.
func (e *LedgerEntry) Collected() bool {
	return e.CollectedAt != nil
}

// Ledger is an interface for storing submitted workflow ids.
type Ledger interface {
	// Record stores a newly submitted workflow. Recording an id twice
	// refreshes its name, kind and status.
	Record(ctx context.Context, entry *LedgerEntry) error
	// Get retrieves an entry by workflow id.
	Get(ctx context.Context, id string) (*LedgerEntry, error)
	// Pending lists entries whose results have not been collected, oldest first.
	Pending(ctx context.Context) ([]*LedgerEntry, error)
	// List lists all entries, oldest first.
	List(ctx context.Context) ([]*LedgerEntry, error)
	// MarkCollected stores the terminal status and result path of a workflow.
	MarkCollected(ctx context.Context, id string, status models.WorkflowStatus, resultPath string) error
	// Close releases the underlying connection.
	Close() error
}
