package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Supported ledger drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Open connects to the ledger for driver. DriverNone returns a nil Ledger
// and no error; callers treat a nil Ledger as "do not record".
func Open(ctx context.Context, driver, dsn string) (Ledger, error) {
	switch driver {
	case DriverSQLite, "":
		return NewSQLiteLedger(ctx, dsn)
	case DriverPostgres:
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping ledger database: %w", err)
		}
		l, err := NewPostgresLedger(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create ledger schema: %w", err)
		}
		return l, nil
	case DriverNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", driver)
	}
}
