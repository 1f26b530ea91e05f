package batch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jonathan/engage-agent/internal/accounts"
)

// DedupStore answers "already succeeded today?" and records successes.
type DedupStore interface {
	WasCompletedToday(accountID string, now time.Time) bool
	RecordSuccess(accountID string, now time.Time) error
}

// History is an optional durable sink for batch run records (e.g. the
// Postgres store). Failures are logged, never fatal.
type History interface {
	CreateBatchRun(ctx context.Context, id uuid.UUID, startedAt time.Time) error
	RecordAccountResult(ctx context.Context, runID uuid.UUID, res AccountResult) error
	CompleteBatchRun(ctx context.Context, id uuid.UUID, totals Totals, endedAt time.Time) error
}

// Scheduler iterates accounts strictly in order: skip check, retry loop,
// dedup write on success, report flush after every account.
type Scheduler struct {
	Store        DedupStore
	Runner       *Runner
	History      History
	ReportDir    string
	AccountDelay time.Duration
	Log          *logrus.Logger

	// Sleep and Now are injectable for tests.
	Sleep func(ctx context.Context, d time.Duration)
	Now   func() time.Time
}

// RunBatch processes every account in order and returns the final report.
// Per-account failures are captured in the report, not returned as errors;
// the error return covers only report-storage setup.
func (s *Scheduler) RunBatch(ctx context.Context, accts []accounts.Account) (*Report, error) {
	report := &Report{ID: uuid.New(), StartTime: s.now()}
	reporter, err := NewReporter(s.ReportDir, report)
	if err != nil {
		return nil, err
	}

	if s.History != nil {
		if err := s.History.CreateBatchRun(ctx, report.ID, report.StartTime); err != nil {
			s.log().WithError(err).Warn("failed to create batch run record, continuing without history")
			s.History = nil
		}
	}

	for i, acct := range accts {
		log := s.log().WithField("account", acct.Email)

		var res AccountResult
		if s.Store.WasCompletedToday(acct.Email, s.now()) {
			// No session is created and no attempts are consumed.
			res = AccountResult{
				Account:    acct,
				Status:     StatusSkipped,
				SkipReason: "already completed today",
			}
			log.Info("skipping, already completed today")
		} else {
			res = s.Runner.RunWithRetries(ctx, acct)
			if res.Status == StatusSuccess {
				if err := s.Store.RecordSuccess(acct.Email, s.now()); err != nil {
					log.WithError(err).Warn("failed to record success in dedup store")
				}
			}
		}

		report.add(res)
		if s.History != nil {
			if err := s.History.RecordAccountResult(ctx, report.ID, res); err != nil {
				log.WithError(err).Warn("failed to record account result in history")
			}
		}
		report.EndTime = s.now()
		if err := reporter.Flush(report); err != nil {
			log.WithError(err).Warn("failed to flush report snapshot")
		}

		if ctx.Err() != nil {
			break
		}
		if i < len(accts)-1 {
			s.sleep(ctx, s.AccountDelay)
		}
	}

	report.EndTime = s.now()
	if err := reporter.Flush(report); err != nil {
		s.log().WithError(err).Warn("failed to flush final report")
	}
	if s.History != nil {
		if err := s.History.CompleteBatchRun(ctx, report.ID, report.Totals, report.EndTime); err != nil {
			s.log().WithError(err).Warn("failed to complete batch run record")
		}
	}

	s.log().WithFields(logrus.Fields{
		"success": report.Totals.Success,
		"failure": report.Totals.Failure,
		"skipped": report.Totals.Skipped,
		"report":  reporter.Path(),
	}).Info("batch complete")
	return report, nil
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	if s.Sleep != nil {
		s.Sleep(ctx, d)
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) log() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logrus.StandardLogger()
}
