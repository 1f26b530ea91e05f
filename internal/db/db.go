// Package db provides optional PostgreSQL persistence of batch run history.
// The batch runs fine without it; callers treat connection failures as a
// warning and continue with file-based reporting only.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// Connect establishes a connection pool and verifies it.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// EnsureSchema creates the history tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS batch_runs (
			id UUID PRIMARY KEY,
			started_at TIMESTAMPTZ NOT NULL,
			ended_at TIMESTAMPTZ,
			success_count INT NOT NULL DEFAULT 0,
			failure_count INT NOT NULL DEFAULT 0,
			skipped_count INT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS account_results (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID NOT NULL REFERENCES batch_runs(id),
			account_email TEXT NOT NULL,
			account_label TEXT NOT NULL,
			status TEXT NOT NULL,
			skip_reason TEXT,
			likes INT NOT NULL DEFAULT 0,
			attempts JSONB NOT NULL DEFAULT '[]'
		);
		CREATE INDEX IF NOT EXISTS account_results_run_idx ON account_results(run_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
