package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Reporter persists batch report snapshots to a timestamped JSON file in
// the report directory, overwriting the same file on each flush.
type Reporter struct {
	path string
}

// NewReporter creates the report directory and returns a reporter writing
// to a file named after the report's start time.
func NewReporter(dir string, report *Report) (*Reporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create report dir %s: %w", dir, err)
	}
	name := fmt.Sprintf("run-%s.json", report.StartTime.Format("20060102-150405"))
	return &Reporter{path: filepath.Join(dir, name)}, nil
}

// Path returns the report file location.
func (r *Reporter) Path() string {
	return r.path
}

// Flush writes the current report snapshot atomically.
func (r *Reporter) Flush(report *Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("failed to replace report: %w", err)
	}
	return nil
}
