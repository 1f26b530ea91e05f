package observability

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/engage-agent/internal/accounts"
	"github.com/jonathan/engage-agent/internal/batch"
	"github.com/jonathan/engage-agent/internal/dedupe"
)

func TestPrintAccountResult(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	res := &batch.AccountResult{
		Account: accounts.Account{Email: "a@x.com", Label: "primary"},
		Status:  batch.StatusSuccess,
		Likes:   12,
		Attempts: []batch.AttemptRecord{
			{Number: 1, StartedAt: start, EndedAt: start.Add(time.Minute), Succeeded: false,
				FailedStage: "mailbox_login", Error: "wait timed out"},
			{Number: 2, StartedAt: start, EndedAt: start.Add(2 * time.Minute), Succeeded: true, Likes: 12},
		},
	}

	p.PrintAccountResult(res)
	out := buf.String()

	assert.Contains(t, out, "a@x.com")
	assert.Contains(t, out, "success")
	assert.Contains(t, out, "Attempts: 2")
	assert.Contains(t, out, "mailbox_login")
	assert.Contains(t, out, "#2 ok")
}

func TestPrintAccountResult_Skipped(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintAccountResult(&batch.AccountResult{
		Account:    accounts.Account{Email: "a@x.com", Label: "primary"},
		Status:     batch.StatusSkipped,
		SkipReason: "already completed today",
	})

	out := buf.String()
	assert.Contains(t, out, "already completed today")
	assert.NotContains(t, out, "Attempts:")
}

func TestPrintAccountResult_NilIsNoop(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintAccountResult(nil)
	assert.Empty(t, buf.String())
}

func TestPrintBatchSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	p.PrintBatchSummary(&batch.Report{
		ID:        uuid.New(),
		StartTime: start,
		EndTime:   start.Add(90 * time.Second),
		Totals:    batch.Totals{Success: 2, Failure: 1, Skipped: 1},
		Results:   make([]batch.AccountResult, 4),
	})

	out := buf.String()
	assert.Contains(t, out, "Batch Summary")
	assert.Contains(t, out, "Accounts: 4")
	assert.Contains(t, out, "Success:  2")
	assert.Contains(t, out, "Duration: 1m30s")
}

func TestPrintDedupRecords_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintDedupRecords(map[string]dedupe.Record{})
	assert.Contains(t, buf.String(), "(no records)")
}

func TestPrintDedupRecords(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintDedupRecords(map[string]dedupe.Record{
		"a@x.com": {LastRunDate: "2026-03-14", LastOutcome: "success"},
	})

	out := buf.String()
	assert.Contains(t, out, "2026-03-14")
	assert.Contains(t, out, "a@x.com")
}

func TestNewLogger_Levels(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, NewLogger(true, false).GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewLogger(false, false).GetLevel())
}
