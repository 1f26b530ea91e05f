package batch

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/engage-agent/internal/accounts"
	"github.com/jonathan/engage-agent/internal/driver/drivertest"
	"github.com/jonathan/engage-agent/internal/workflow"
)

// fakeDedup marks listed accounts as already done today and records writes.
type fakeDedup struct {
	done      map[string]bool
	successes []string
	writeErr  error
}

func (f *fakeDedup) WasCompletedToday(accountID string, now time.Time) bool {
	return f.done[accountID]
}

func (f *fakeDedup) RecordSuccess(accountID string, now time.Time) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.successes = append(f.successes, accountID)
	return nil
}

type fakeHistory struct {
	createErr error
	created   int
	recorded  []AccountResult
	completed int
}

func (f *fakeHistory) CreateBatchRun(ctx context.Context, id uuid.UUID, startedAt time.Time) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created++
	return nil
}

func (f *fakeHistory) RecordAccountResult(ctx context.Context, runID uuid.UUID, res AccountResult) error {
	f.recorded = append(f.recorded, res)
	return nil
}

func (f *fakeHistory) CompleteBatchRun(ctx context.Context, id uuid.UUID, totals Totals, endedAt time.Time) error {
	f.completed++
	return nil
}

func testScheduler(t *testing.T, p Pipeline, l *drivertest.FakeLauncher, store DedupStore) *Scheduler {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Scheduler{
		Store:     store,
		Runner:    testRunner(p, l, 2),
		ReportDir: t.TempDir(),
		Log:       log,
		Sleep:     func(context.Context, time.Duration) {},
	}
}

func twoAccounts() []accounts.Account {
	return []accounts.Account{
		{Email: "a@x.com", Label: "first"},
		{Email: "b@x.com", Label: "second"},
	}
}

func TestRunBatch_SkippedAccountTouchesNothing(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{succeeded(10)}}
	l := &drivertest.FakeLauncher{}
	store := &fakeDedup{done: map[string]bool{"a@x.com": true}}
	s := testScheduler(t, p, l, store)

	report, err := s.RunBatch(context.Background(), twoAccounts())
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	skipped := report.Results[0]
	assert.Equal(t, StatusSkipped, skipped.Status)
	assert.Equal(t, "already completed today", skipped.SkipReason)
	assert.Empty(t, skipped.Attempts, "a skip consumes no attempts")

	// Only the non-skipped account launched a session.
	assert.Len(t, l.Sessions, 1)
	assert.Equal(t, StatusSuccess, report.Results[1].Status)
	assert.Equal(t, 1, report.Totals.Skipped)
	assert.Equal(t, 1, report.Totals.Success)
}

func TestRunBatch_RecordsSuccessOnlyForSuccesses(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{
		succeeded(10),        // a@x.com attempt 1
		failed("like_sweep"), // b@x.com attempt 1
		failed("like_sweep"), // b@x.com attempt 2
	}}
	l := &drivertest.FakeLauncher{}
	store := &fakeDedup{done: map[string]bool{}}
	s := testScheduler(t, p, l, store)

	report, err := s.RunBatch(context.Background(), twoAccounts())
	require.NoError(t, err)

	assert.Equal(t, []string{"a@x.com"}, store.successes,
		"failed accounts stay eligible for the next run")
	assert.Equal(t, 1, report.Totals.Success)
	assert.Equal(t, 1, report.Totals.Failure)
	assert.Len(t, report.Results[1].Attempts, 2)
}

func TestRunBatch_MailboxFailsTwice(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{failed("mailbox_login")}}
	l := &drivertest.FakeLauncher{}
	store := &fakeDedup{done: map[string]bool{}}
	s := testScheduler(t, p, l, store)

	report, err := s.RunBatch(context.Background(), []accounts.Account{{Email: "a@x.com", Label: "only"}})
	require.NoError(t, err)

	res := report.Results[0]
	assert.Equal(t, StatusFailure, res.Status)
	require.Len(t, res.Attempts, 2)
	for _, rec := range res.Attempts {
		assert.Equal(t, "mailbox_login", rec.FailedStage)
	}
	assert.Empty(t, store.successes, "dedup store is untouched on failure")
	assert.Len(t, l.Sessions, 2, "each attempt used its own session")
}

func TestRunBatch_ReportFileIsParseable(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{succeeded(10)}}
	l := &drivertest.FakeLauncher{}
	store := &fakeDedup{done: map[string]bool{"b@x.com": true}}
	s := testScheduler(t, p, l, store)

	report, err := s.RunBatch(context.Background(), twoAccounts())
	require.NoError(t, err)

	entries, err := os.ReadDir(s.ReportDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(s.ReportDir, entries[0].Name()))
	require.NoError(t, err)

	var onDisk Report
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, report.ID, onDisk.ID)
	assert.Len(t, onDisk.Results, 2)
	assert.Equal(t, report.Totals, onDisk.Totals)
	assert.False(t, onDisk.EndTime.IsZero())
}

func TestRunBatch_HistoryRecordsEveryAccount(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{succeeded(10)}}
	l := &drivertest.FakeLauncher{}
	s := testScheduler(t, p, l, &fakeDedup{done: map[string]bool{"b@x.com": true}})
	h := &fakeHistory{}
	s.History = h

	_, err := s.RunBatch(context.Background(), twoAccounts())
	require.NoError(t, err)

	assert.Equal(t, 1, h.created)
	assert.Len(t, h.recorded, 2, "skipped accounts still appear in history")
	assert.Equal(t, 1, h.completed)
}

func TestRunBatch_HistoryCreateFailureIsNotFatal(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{succeeded(10)}}
	l := &drivertest.FakeLauncher{}
	s := testScheduler(t, p, l, &fakeDedup{done: map[string]bool{}})
	h := &fakeHistory{createErr: context.DeadlineExceeded}
	s.History = h

	report, err := s.RunBatch(context.Background(), twoAccounts())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Totals.Success)
	assert.Empty(t, h.recorded, "history is disabled after a failed run create")
}

func TestRunBatch_DelaysBetweenAccountsOnly(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{succeeded(1)}}
	l := &drivertest.FakeLauncher{}
	s := testScheduler(t, p, l, &fakeDedup{done: map[string]bool{}})
	s.AccountDelay = 30 * time.Second
	var sleeps int
	s.Sleep = func(context.Context, time.Duration) { sleeps++ }

	_, err := s.RunBatch(context.Background(), twoAccounts())
	require.NoError(t, err)

	assert.Equal(t, 1, sleeps, "no delay after the final account")
}

func TestRunBatch_DedupWriteFailureDoesNotFailBatch(t *testing.T) {
	p := &scriptedPipeline{results: []workflow.Result{succeeded(10)}}
	l := &drivertest.FakeLauncher{}
	store := &fakeDedup{done: map[string]bool{}, writeErr: os.ErrPermission}
	s := testScheduler(t, p, l, store)

	report, err := s.RunBatch(context.Background(), []accounts.Account{{Email: "a@x.com", Label: "only"}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Totals.Success)
}
