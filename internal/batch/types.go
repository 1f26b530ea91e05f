// Package batch orchestrates account processing: per-account retry with a
// fresh session per attempt, daily dedup skipping, and incremental report
// persistence.
package batch

import (
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/engage-agent/internal/accounts"
)

// Status is the terminal status of one account in a batch.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusSkipped Status = "skipped"
)

// AttemptRecord is one full pipeline execution. Immutable after write.
type AttemptRecord struct {
	Number      int       `json:"number"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Succeeded   bool      `json:"succeeded"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	Likes       int       `json:"likes"`
}

// AccountResult is the outcome of processing one account.
type AccountResult struct {
	Account    accounts.Account `json:"account"`
	Attempts   []AttemptRecord  `json:"attempts,omitempty"`
	Status     Status           `json:"status"`
	SkipReason string           `json:"skip_reason,omitempty"`
	Likes      int              `json:"likes"`
}

// Totals counts terminal statuses across a batch.
type Totals struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Skipped int `json:"skipped"`
}

// Report is the full batch result, flushed to durable storage after every
// account so a crash loses at most the in-flight one.
type Report struct {
	ID        uuid.UUID       `json:"id"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Totals    Totals          `json:"totals"`
	Results   []AccountResult `json:"results"`
}

func (r *Report) add(res AccountResult) {
	r.Results = append(r.Results, res)
	switch res.Status {
	case StatusSuccess:
		r.Totals.Success++
	case StatusFailure:
		r.Totals.Failure++
	case StatusSkipped:
		r.Totals.Skipped++
	}
}
