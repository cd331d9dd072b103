package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"promethium-examples/runner/pkg/models"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS workflows (
	workflow_id  TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT '',
	submitted_at TIMESTAMP NOT NULL,
	result_path  TEXT NOT NULL DEFAULT '',
	collected_at TIMESTAMP
);`

// SQLiteLedger is an embedded SQLite implementation of the Ledger interface.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens (creating if needed) the ledger database at path.
func NewSQLiteLedger(ctx context.Context, path string) (*SQLiteLedger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one connection keeps :memory: databases shared and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// Record stores a newly submitted workflow.
func (l *SQLiteLedger) Record(ctx context.Context, e *LedgerEntry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO workflows (workflow_id, name, kind, status, submitted_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (workflow_id) DO UPDATE SET name = excluded.name, kind = excluded.kind, status = excluded.status`,
		e.WorkflowID, e.Name, string(e.Kind), string(e.Status), e.SubmittedAt.UTC())
	return err
}

// Get retrieves an entry by workflow id.
func (l *SQLiteLedger) Get(ctx context.Context, id string) (*LedgerEntry, error) {
	row := l.db.QueryRowContext(ctx, selectEntries+` WHERE workflow_id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// Pending lists entries whose results have not been collected.
func (l *SQLiteLedger) Pending(ctx context.Context) ([]*LedgerEntry, error) {
	return l.query(ctx, selectEntries+` WHERE collected_at IS NULL ORDER BY submitted_at, workflow_id`)
}

// List lists all entries.
func (l *SQLiteLedger) List(ctx context.Context) ([]*LedgerEntry, error) {
	return l.query(ctx, selectEntries+` ORDER BY submitted_at, workflow_id`)
}

// MarkCollected stores the terminal status and result path of a workflow.
func (l *SQLiteLedger) MarkCollected(ctx context.Context, id string, status models.WorkflowStatus, resultPath string) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE workflows SET status = ?, result_path = ?, collected_at = ? WHERE workflow_id = ?`,
		string(status), resultPath, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

func (l *SQLiteLedger) query(ctx context.Context, q string) ([]*LedgerEntry, error) {
	rows, err := l.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const selectEntries = `SELECT workflow_id, name, kind, status, submitted_at, result_path, collected_at FROM workflows`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*LedgerEntry, error) {
	var (
		e           LedgerEntry
		kind        string
		status      string
		collectedAt sql.NullTime
	)
	if err := s.Scan(&e.WorkflowID, &e.Name, &kind, &status, &e.SubmittedAt, &e.ResultPath, &collectedAt); err != nil {
		return nil, err
	}
	e.Kind = models.WorkflowKind(kind)
	e.Status = models.WorkflowStatus(status)
	if collectedAt.Valid {
		t := collectedAt.Time
		e.CollectedAt = &t
	}
	return &e, nil
}
