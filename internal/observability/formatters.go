package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/engage-agent/internal/batch"
	"github.com/jonathan/engage-agent/internal/dedupe"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintAccountResult outputs a human-readable summary of one account's outcome.
func (p *Printer) PrintAccountResult(res *batch.AccountResult) {
	if res == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Status:   %s\n", res.Status))
	if res.SkipReason != "" {
		sb.WriteString(fmt.Sprintf("Reason:   %s\n", res.SkipReason))
	}
	if res.Status != batch.StatusSkipped {
		sb.WriteString(fmt.Sprintf("Attempts: %d\n", len(res.Attempts)))
		sb.WriteString(fmt.Sprintf("Likes:    %d\n", res.Likes))
	}
	for _, a := range res.Attempts {
		if a.Succeeded {
			sb.WriteString(fmt.Sprintf("  #%d ok (%s)\n", a.Number, a.EndedAt.Sub(a.StartedAt).Round(time.Second)))
			continue
		}
		sb.WriteString(fmt.Sprintf("  #%d failed at %s: %s\n", a.Number, a.FailedStage, a.Error))
	}

	p.printBox(fmt.Sprintf("Account: %s", res.Account.Email), sb.String())
}

// PrintBatchSummary outputs the final totals for a batch run.
func (p *Printer) PrintBatchSummary(report *batch.Report) {
	if report == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Accounts: %d\n", len(report.Results)))
	sb.WriteString(fmt.Sprintf("Success:  %d\n", report.Totals.Success))
	sb.WriteString(fmt.Sprintf("Failure:  %d\n", report.Totals.Failure))
	sb.WriteString(fmt.Sprintf("Skipped:  %d\n", report.Totals.Skipped))
	sb.WriteString(fmt.Sprintf("Duration: %s\n", report.EndTime.Sub(report.StartTime).Round(time.Second)))

	p.printBox("Batch Summary", sb.String())
}

// PrintDedupRecords outputs the dedup store contents for the status command.
func (p *Printer) PrintDedupRecords(records map[string]dedupe.Record) {
	var sb strings.Builder
	if len(records) == 0 {
		sb.WriteString("(no records)\n")
	}
	for id, rec := range records {
		sb.WriteString(fmt.Sprintf("%s  %s  %s\n", rec.LastRunDate, rec.LastOutcome, id))
	}
	p.printBox("Dedup Records", sb.String())
}
