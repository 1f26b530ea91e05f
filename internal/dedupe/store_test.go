package dedupe

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "dedupe.json"), quietLogger())
}

func TestStore_RecordedSuccessBlocksSameDay(t *testing.T) {
	s := testStore(t)
	day := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	assert.False(t, s.WasCompletedToday("a@x.com", day))
	require.NoError(t, s.RecordSuccess("a@x.com", day))
	assert.True(t, s.WasCompletedToday("a@x.com", day))
}

func TestStore_NextDayIsEligibleAgain(t *testing.T) {
	s := testStore(t)
	day := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	nextDay := day.Add(2 * time.Minute)

	require.NoError(t, s.RecordSuccess("a@x.com", day))
	assert.True(t, s.WasCompletedToday("a@x.com", day))
	assert.False(t, s.WasCompletedToday("a@x.com", nextDay))
}

func TestStore_AccountsAreIndependent(t *testing.T) {
	s := testStore(t)
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordSuccess("a@x.com", day))
	assert.False(t, s.WasCompletedToday("b@x.com", day))
}

func TestStore_MissingFileFailsOpen(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "never-created.json"), quietLogger())

	assert.False(t, s.WasCompletedToday("a@x.com", time.Now()))
	assert.Empty(t, s.Records())
}

func TestStore_CorruptFileFailsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedupe.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	s := NewStore(path, quietLogger())

	assert.False(t, s.WasCompletedToday("a@x.com", time.Now()))

	// A write after a corrupt read starts from an empty mapping and
	// leaves the file valid again.
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordSuccess("a@x.com", day))
	assert.True(t, s.WasCompletedToday("a@x.com", day))
}

func TestStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedupe.json")
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, NewStore(path, quietLogger()).RecordSuccess("a@x.com", day))

	reopened := NewStore(path, quietLogger())
	assert.True(t, reopened.WasCompletedToday("a@x.com", day))

	recs := reopened.Records()
	require.Contains(t, recs, "a@x.com")
	assert.Equal(t, "2026-03-14", recs["a@x.com"].LastRunDate)
	assert.Equal(t, "success", recs["a@x.com"].LastOutcome)
}

func TestStore_SuccessOverwritesPriorRecord(t *testing.T) {
	s := testStore(t)
	monday := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	require.NoError(t, s.RecordSuccess("a@x.com", monday))
	require.NoError(t, s.RecordSuccess("a@x.com", tuesday))

	recs := s.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, "2026-03-10", recs["a@x.com"].LastRunDate)
}

func TestStore_FileIsWellFormedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "dedupe.json")
	s := NewStore(path, quietLogger())
	require.NoError(t, s.RecordSuccess("a@x.com", time.Now()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]Record
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "a@x.com")
}
