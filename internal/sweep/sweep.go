// Package sweep implements the bounded like sweep over a lazily-rendered
// feed: find actionable items, act on them, or scroll to reveal more, until
// a success quota or a failure quota is hit.
package sweep

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/engage-agent/internal/driver"
)

// StopReason says which bound ended the sweep. Both are normal outcomes.
type StopReason string

const (
	// ReasonTargetReached means the success quota was met.
	ReasonTargetReached StopReason = "target_reached"
	// ReasonFailureBudget means consecutive unproductive cycles hit the cap.
	ReasonFailureBudget StopReason = "failure_budget_exhausted"
)

// Result is the terminal state of one sweep.
type Result struct {
	Likes   int        `json:"likes"`
	Scrolls int        `json:"scrolls"`
	Reason  StopReason `json:"reason"`
}

// state is the transient loop state, owned solely by one Run call.
type state struct {
	likes           int
	consecutiveFail int
	scrolls         int
	scrollsSinceHit int
}

// Engine performs sweeps. Zero-value fields fall back to defaults.
type Engine struct {
	// Target is the quota of verified likes (default 50).
	Target int
	// FailCap is the cap on consecutive unproductive cycles (default 5).
	FailCap int
	// ScrollBatch is the number of scrolls with no like in between that
	// count as one unproductive cycle (default 3).
	ScrollBatch int
	// ScrollFraction is the viewport fraction scrolled per reveal (default 0.6).
	ScrollFraction float64

	// Item matches one actionable feed item.
	Item driver.Criteria
	// LikedAttr and LikedValue identify the persistent marker on items
	// already acted upon (e.g. aria-pressed="true").
	LikedAttr  string
	LikedValue string

	// MinDelay/MaxDelay bound the randomized pause between likes.
	MinDelay time.Duration
	MaxDelay time.Duration
	// SettleDelay is the wait after each scroll for new content.
	SettleDelay time.Duration

	Log *logrus.Logger

	// Sleep and Rand are injectable for tests.
	Sleep func(ctx context.Context, d time.Duration)
	Rand  *rand.Rand
}

func (e *Engine) target() int {
	if e.Target > 0 {
		return e.Target
	}
	return 50
}

func (e *Engine) failCap() int {
	if e.FailCap > 0 {
		return e.FailCap
	}
	return 5
}

func (e *Engine) scrollBatch() int {
	if e.ScrollBatch > 0 {
		return e.ScrollBatch
	}
	return 3
}

func (e *Engine) scrollFraction() float64 {
	if e.ScrollFraction > 0 {
		return e.ScrollFraction
	}
	return 0.6
}

// Run performs one sweep on the given session. Reaching either bound is a
// normal return with the like count; only a driver fault yields an error,
// alongside the partial result.
func (e *Engine) Run(ctx context.Context, s driver.Session) (Result, error) {
	st := &state{}

	if err := s.ScrollTop(ctx); err != nil {
		return e.result(st, ""), err
	}
	e.sleep(ctx, e.SettleDelay)

	for st.likes < e.target() && st.consecutiveFail < e.failCap() {
		if err := ctx.Err(); err != nil {
			return e.result(st, ""), err
		}
		acted, err := e.cycle(ctx, s, st)
		if err != nil {
			return e.result(st, ""), err
		}
		if !acted {
			if err := e.reveal(ctx, s, st); err != nil {
				return e.result(st, ""), err
			}
		}
	}

	reason := ReasonFailureBudget
	if st.likes >= e.target() {
		reason = ReasonTargetReached
	}
	res := e.result(st, reason)
	e.log().WithFields(logrus.Fields{
		"likes": res.Likes, "scrolls": res.Scrolls, "reason": res.Reason,
	}).Info("sweep complete")
	return res, nil
}

// cycle attempts to act on the first visible, not-yet-liked item. It
// reports whether an item was targeted this cycle.
func (e *Engine) cycle(ctx context.Context, s driver.Session, st *state) (bool, error) {
	items, err := s.LocateAll(ctx, e.Item)
	if err != nil {
		return false, err
	}

	for _, item := range items {
		liked, err := e.alreadyLiked(ctx, item)
		if err != nil {
			return false, err
		}
		if liked {
			continue
		}
		visible, err := item.InViewport(ctx)
		if err != nil {
			return false, err
		}
		if !visible {
			continue
		}

		if err := item.Click(ctx); err != nil {
			return true, err
		}
		applied, err := e.alreadyLiked(ctx, item)
		if err != nil {
			return true, err
		}
		if applied {
			st.likes++
			st.consecutiveFail = 0
			st.scrollsSinceHit = 0
			e.log().WithField("likes", st.likes).Debug("like applied")
			e.sleep(ctx, e.jitter())
		} else {
			st.consecutiveFail++
			e.log().WithField("consecutive_failures", st.consecutiveFail).
				Debug("like did not apply")
		}
		return true, nil
	}
	return false, nil
}

// reveal scrolls forward to load more items. Scrolling without progress
// counts toward the failure budget so an exhausted feed terminates the loop.
func (e *Engine) reveal(ctx context.Context, s driver.Session, st *state) error {
	if err := s.ScrollBy(ctx, e.scrollFraction()); err != nil {
		return err
	}
	st.scrolls++
	st.scrollsSinceHit++
	if st.scrollsSinceHit >= e.scrollBatch() {
		st.scrollsSinceHit = 0
		st.consecutiveFail++
		e.log().WithField("consecutive_failures", st.consecutiveFail).
			Debug("scrolled without progress")
	}
	e.sleep(ctx, e.SettleDelay)
	return nil
}

func (e *Engine) alreadyLiked(ctx context.Context, item driver.Element) (bool, error) {
	if e.LikedAttr == "" {
		return false, nil
	}
	v, present, err := item.Attribute(ctx, e.LikedAttr)
	if err != nil {
		return false, err
	}
	if e.LikedValue == "" {
		return present, nil
	}
	return present && v == e.LikedValue, nil
}

// jitter returns a randomized delay between MinDelay and MaxDelay to avoid
// a uniform timing signature.
func (e *Engine) jitter() time.Duration {
	min, max := e.MinDelay, e.MaxDelay
	if max <= min {
		return min
	}
	span := max - min
	if e.Rand != nil {
		return min + time.Duration(e.Rand.Int63n(int64(span)))
	}
	return min + time.Duration(rand.Int63n(int64(span)))
}

func (e *Engine) result(st *state, reason StopReason) Result {
	return Result{Likes: st.likes, Scrolls: st.scrolls, Reason: reason}
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	if e.Sleep != nil {
		e.Sleep(ctx, d)
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (e *Engine) log() *logrus.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logrus.StandardLogger()
}
