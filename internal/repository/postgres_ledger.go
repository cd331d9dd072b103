package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"promethium-examples/runner/pkg/models"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS workflows (
	workflow_id  TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT '',
	submitted_at TIMESTAMPTZ NOT NULL,
	result_path  TEXT NOT NULL DEFAULT '',
	collected_at TIMESTAMPTZ
)`

// PostgresLedger is a PostgreSQL implementation of the Ledger interface.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger creates a new PostgresLedger and ensures its table exists.
func NewPostgresLedger(ctx context.Context, db *pgxpool.Pool) (*PostgresLedger, error) {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return nil, err
	}
	return &PostgresLedger{db: db}, nil
}

// Record stores a newly submitted workflow.
func (s *PostgresLedger) Record(ctx context.Context, e *LedgerEntry) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO workflows (workflow_id, name, kind, status, submitted_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (workflow_id) DO UPDATE SET name = EXCLUDED.name, kind = EXCLUDED.kind, status = EXCLUDED.status`,
		e.WorkflowID, e.Name, string(e.Kind), string(e.Status), e.SubmittedAt.UTC())
	return err
}

// Get retrieves an entry by workflow id.
func (s *PostgresLedger) Get(ctx context.Context, id string) (*LedgerEntry, error) {
	rows, err := s.db.Query(ctx, selectEntries+` WHERE workflow_id = $1`, id)
	if err != nil {
		return nil, err
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanPgxEntry)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// Pending lists entries whose results have not been collected.
func (s *PostgresLedger) Pending(ctx context.Context) ([]*LedgerEntry, error) {
	return s.query(ctx, selectEntries+` WHERE collected_at IS NULL ORDER BY submitted_at, workflow_id`)
}

// List lists all entries.
func (s *PostgresLedger) List(ctx context.Context) ([]*LedgerEntry, error) {
	return s.query(ctx, selectEntries+` ORDER BY submitted_at, workflow_id`)
}

// MarkCollected stores the terminal status and result path of a workflow.
func (s *PostgresLedger) MarkCollected(ctx context.Context, id string, status models.WorkflowStatus, resultPath string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE workflows SET status = $1, result_path = $2, collected_at = $3 WHERE workflow_id = $4`,
		string(status), resultPath, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the pool.
func (s *PostgresLedger) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresLedger) query(ctx context.Context, q string) ([]*LedgerEntry, error) {
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanPgxEntry)
}

func scanPgxEntry(row pgx.CollectableRow) (*LedgerEntry, error) {
	return scanEntry(row)
}
