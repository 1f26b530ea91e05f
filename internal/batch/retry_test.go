package batch

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/engage-agent/internal/accounts"
	"github.com/jonathan/engage-agent/internal/driver"
	"github.com/jonathan/engage-agent/internal/driver/drivertest"
	"github.com/jonathan/engage-agent/internal/workflow"
)

// scriptedPipeline returns one canned result per call and records which
// session each call ran on.
type scriptedPipeline struct {
	results  []workflow.Result
	sessions []driver.Session
	panicOn  int
}

func (p *scriptedPipeline) Run(ctx context.Context, s driver.Session, accountEmail string) workflow.Result {
	p.sessions = append(p.sessions, s)
	call := len(p.sessions)
	if p.panicOn == call {
		panic("pipeline blew up")
	}
	if call <= len(p.results) {
		return p.results[call-1]
	}
	return p.results[len(p.results)-1]
}

func failed(stage string) workflow.Result {
	return workflow.Result{OK: false, FailedStage: stage, Err: errors.New(stage + " broke")}
}

func succeeded(likes int) workflow.Result {
	return workflow.Result{OK: true, Likes: likes}
}

func testRunner(p Pipeline, l *drivertest.FakeLauncher, maxAttempts int) *Runner {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Runner{
		Launcher:    l,
		Workflow:    p,
		MaxAttempts: maxAttempts,
		RetryDelay:  5 * time.Second,
		Log:         log,
		Sleep:       func(context.Context, time.Duration) {},
	}
}

var testAccount = accounts.Account{Email: "a@x.com", Label: "primary"}

func TestRunWithRetries_SucceedsFirstTry(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{succeeded(30)}}
	l := &drivertest.FakeLauncher{}

	res := testRunner(p, l, 3).RunWithRetries(context.Background(), testAccount)

	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 30, res.Likes)
	require.Len(t, res.Attempts, 1)
	assert.True(t, res.Attempts[0].Succeeded)
	assert.Len(t, l.Sessions, 1)
}

func TestRunWithRetries_StopsOnFirstSuccess(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{
		failed("mailbox_login"),
		succeeded(12),
		succeeded(99),
	}}
	l := &drivertest.FakeLauncher{}

	res := testRunner(p, l, 3).RunWithRetries(context.Background(), testAccount)

	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Attempts, 2, "no attempts after the first success")
	assert.False(t, res.Attempts[0].Succeeded)
	assert.Equal(t, "mailbox_login", res.Attempts[0].FailedStage)
	assert.True(t, res.Attempts[1].Succeeded)
	assert.Equal(t, 12, res.Likes)
}

func TestRunWithRetries_ExhaustsAttempts(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{failed("locate_message")}}
	l := &drivertest.FakeLauncher{}

	res := testRunner(p, l, 3).RunWithRetries(context.Background(), testAccount)

	assert.Equal(t, StatusFailure, res.Status)
	require.Len(t, res.Attempts, 3)
	for i, rec := range res.Attempts {
		assert.Equal(t, i+1, rec.Number)
		assert.False(t, rec.Succeeded)
		assert.Contains(t, rec.Error, "locate_message")
	}
}

func TestRunWithRetries_FreshSessionPerAttempt(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{failed("like_sweep")}}
	l := &drivertest.FakeLauncher{}

	testRunner(p, l, 3).RunWithRetries(context.Background(), testAccount)

	require.Len(t, l.Sessions, 3)
	assert.NotSame(t, l.Sessions[0], l.Sessions[1])
	assert.NotSame(t, l.Sessions[1], l.Sessions[2])
	for i, s := range l.Sessions {
		assert.True(t, s.Closed, "session %d must be released", i+1)
	}
	// Pipeline call N ran on launched session N.
	require.Len(t, p.sessions, 3)
	for i := range p.sessions {
		assert.Same(t, l.Sessions[i], p.sessions[i])
	}
}

func TestRunWithRetries_PanicBecomesFailedAttempt(t *testing.T) {
	p := &scriptedPipeline{
		results: []workflow.Result{failed("navigate_feed"), succeeded(5)},
		panicOn: 1,
	}
	l := &drivertest.FakeLauncher{}

	res := testRunner(p, l, 2).RunWithRetries(context.Background(), testAccount)

	assert.Equal(t, StatusSuccess, res.Status, "a panic consumes one attempt, not the whole run")
	require.Len(t, res.Attempts, 2)
	assert.Contains(t, res.Attempts[0].Error, "panicked")
	assert.False(t, res.Attempts[0].EndedAt.IsZero())
	assert.True(t, l.Sessions[0].Closed, "session is released even when the attempt panics")
}

func TestRunWithRetries_LaunchFailureConsumesAttempt(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{succeeded(1)}}
	l := &drivertest.FakeLauncher{LaunchErr: errors.New("chrome missing")}

	res := testRunner(p, l, 2).RunWithRetries(context.Background(), testAccount)

	assert.Equal(t, StatusFailure, res.Status)
	require.Len(t, res.Attempts, 2)
	assert.Contains(t, res.Attempts[0].Error, "session launch failed")
	assert.Empty(t, p.sessions, "pipeline never runs without a session")
}

func TestRunWithRetries_DelaysBetweenFailedAttemptsOnly(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{failed("like_sweep")}}
	l := &drivertest.FakeLauncher{}
	r := testRunner(p, l, 3)
	var sleeps []time.Duration
	r.Sleep = func(_ context.Context, d time.Duration) { sleeps = append(sleeps, d) }

	r.RunWithRetries(context.Background(), testAccount)

	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, sleeps,
		"no delay after the final attempt")
}

func TestRunWithRetries_ZeroMaxAttemptsRunsOnce(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{failed("request_signin_email")}}
	l := &drivertest.FakeLauncher{}

	res := testRunner(p, l, 0).RunWithRetries(context.Background(), testAccount)

	assert.Len(t, res.Attempts, 1)
}
