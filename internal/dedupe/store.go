// Package dedupe persists, per account, the date and outcome of the most
// recent completed run, answering "already succeeded today?". The store
// fails open: an absent or unreadable file never blocks a run.
package dedupe

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// dateLayout stores run dates at calendar-day granularity.
const dateLayout = "2006-01-02"

// Record is one account's most recent completed run.
type Record struct {
	LastRunDate string `json:"last_run_date"`
	LastOutcome string `json:"last_outcome"`
}

// Store is a JSON file keyed by account id. Reads and writes happen within
// the sequential batch loop, so atomic whole-file rewrite is the only
// locking discipline required.
type Store struct {
	path string
	log  *logrus.Logger
}

// NewStore returns a store backed by the given file path.
func NewStore(path string, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{path: path, log: log}
}

// WasCompletedToday reports whether the account already has a success
// record for now's calendar date.
func (s *Store) WasCompletedToday(accountID string, now time.Time) bool {
	records := s.load()
	rec, found := records[accountID]
	if !found {
		return false
	}
	return rec.LastOutcome == "success" && rec.LastRunDate == now.Format(dateLayout)
}

// RecordSuccess overwrites the account's record with a success on now's
// date and synchronously persists the whole mapping.
func (s *Store) RecordSuccess(accountID string, now time.Time) error {
	records := s.load()
	records[accountID] = Record{
		LastRunDate: now.Format(dateLayout),
		LastOutcome: "success",
	}
	return s.save(records)
}

// Records returns a copy of every persisted record, keyed by account id.
func (s *Store) Records() map[string]Record {
	return s.load()
}

// load reads the mapping, treating any failure as "no records".
func (s *Store) load() map[string]Record {
	records := make(map[string]Record)
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).Warn("dedup store unreadable, treating as empty")
		}
		return records
	}
	if err := json.Unmarshal(data, &records); err != nil {
		s.log.WithError(err).Warn("dedup store corrupt, treating as empty")
		return make(map[string]Record)
	}
	return records
}

// save rewrites the whole file atomically via a temp file and rename, so a
// crash mid-write retains prior days' history.
func (s *Store) save(records map[string]Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal dedup records: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".dedupe-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write dedup records: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace dedup store: %w", err)
	}
	return nil
}
