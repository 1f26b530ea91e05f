package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/engage-agent/internal/accounts"
	"github.com/jonathan/engage-agent/internal/driver"
	"github.com/jonathan/engage-agent/internal/workflow"
)

// Pipeline is one full workflow execution for an account on a live session.
type Pipeline interface {
	Run(ctx context.Context, s driver.Session, accountEmail string) workflow.Result
}

// Runner wraps one full workflow execution per attempt in a bounded retry
// loop. Every attempt gets a brand-new isolated session, and the session is
// released unconditionally before the next attempt or return, so failures
// never cascade through corrupted session state.
type Runner struct {
	Launcher    driver.Launcher
	SessionCfg  driver.SessionConfig
	Workflow    Pipeline
	MaxAttempts int
	RetryDelay  time.Duration
	Log         *logrus.Logger

	// Sleep is injectable for tests.
	Sleep func(ctx context.Context, d time.Duration)
	// Now is injectable for tests.
	Now func() time.Time
}

// RunWithRetries processes one account. The returned result's status is
// StatusSuccess on the first successful attempt, StatusFailure once
// MaxAttempts are exhausted.
func (r *Runner) RunWithRetries(ctx context.Context, acct accounts.Account) AccountResult {
	result := AccountResult{Account: acct, Status: StatusFailure}
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		log := r.log().WithFields(logrus.Fields{"account": acct.Email, "attempt": attempt})
		log.Info("starting attempt")

		rec := r.runAttempt(ctx, acct, attempt)
		result.Attempts = append(result.Attempts, rec)

		if rec.Succeeded {
			result.Status = StatusSuccess
			result.Likes = rec.Likes
			log.WithField("likes", rec.Likes).Info("attempt succeeded")
			return result
		}
		log.WithField("error", rec.Error).Warn("attempt failed")

		if attempt < maxAttempts {
			r.sleep(ctx, r.RetryDelay)
			if ctx.Err() != nil {
				return result
			}
		}
	}
	return result
}

// runAttempt executes one attempt on a fresh session, converting any
// escaping fault into a failed record and always releasing the session.
func (r *Runner) runAttempt(ctx context.Context, acct accounts.Account, number int) (rec AttemptRecord) {
	rec = AttemptRecord{Number: number, StartedAt: r.now()}
	defer func() {
		if p := recover(); p != nil {
			rec.Succeeded = false
			rec.Error = fmt.Sprintf("attempt panicked: %v", p)
		}
		rec.EndedAt = r.now()
	}()

	sess, err := r.Launcher.Launch(ctx, r.SessionCfg)
	if err != nil {
		rec.Error = fmt.Sprintf("session launch failed: %v", err)
		return rec
	}
	defer func() {
		if err := sess.Close(); err != nil {
			r.log().WithError(err).Debug("session close failed")
		}
	}()

	res := r.Workflow.Run(ctx, sess, acct.Email)
	rec.Succeeded = res.OK
	rec.Likes = res.Likes
	if !res.OK {
		rec.FailedStage = res.FailedStage
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
	}
	return rec
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	if r.Sleep != nil {
		r.Sleep(ctx, d)
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) log() *logrus.Logger {
	if r.Log != nil {
		return r.Log
	}
	return logrus.StandardLogger()
}
