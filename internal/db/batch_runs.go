package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/engage-agent/internal/batch"
)

// CreateBatchRun inserts a new batch run record.
func (db *DB) CreateBatchRun(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO batch_runs (id, started_at) VALUES ($1, $2)`,
		id, startedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create batch run: %w", err)
	}
	return nil
}

// RecordAccountResult stores one account's outcome, attempts included.
func (db *DB) RecordAccountResult(ctx context.Context, runID uuid.UUID, res batch.AccountResult) error {
	attempts, err := json.Marshal(res.Attempts)
	if err != nil {
		return fmt.Errorf("failed to marshal attempts: %w", err)
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO account_results (run_id, account_email, account_label, status, skip_reason, likes, attempts)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		runID, res.Account.Email, res.Account.Label, string(res.Status), res.SkipReason, res.Likes, attempts,
	)
	if err != nil {
		return fmt.Errorf("failed to record account result: %w", err)
	}
	return nil
}

// CompleteBatchRun finalizes a batch run with totals and end time.
func (db *DB) CompleteBatchRun(ctx context.Context, id uuid.UUID, totals batch.Totals, endedAt time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE batch_runs
		 SET ended_at = $1, success_count = $2, failure_count = $3, skipped_count = $4
		 WHERE id = $5`,
		endedAt, totals.Success, totals.Failure, totals.Skipped, id,
	)
	if err != nil {
		return fmt.Errorf("failed to complete batch run: %w", err)
	}
	return nil
}
