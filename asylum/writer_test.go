package asylum

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t testing.TB) *Tracker {
	t.Helper()
	tracker := NewTracker(newTestStore(t), nil)
	tracker.now = func() time.Time {
		return time.Date(2026, 8, 27, 12, 0, 0, 0, time.Local)
	}
	return tracker
}

func TestTrackerLogSession(t *testing.T) {
	tracker := newTestTracker(t)

	record, err := tracker.LogSession("user-1", 500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), record.TotalWords)
	assert.Equal(t, 1, record.StreakDays)
	assert.Equal(t, "2026-08-27", record.LastWriteDate)
}

func TestTrackerSameDaySessionsSumWordsStreakOnce(t *testing.T) {
	tracker := newTestTracker(t)

	_, err := tracker.LogSession("user-1", 300)
	require.NoError(t, err)

	record, err := tracker.LogSession("user-1", 200)
	require.NoError(t, err)

	assert.Equal(t, int64(500), record.TotalWords)
	assert.Equal(t, 1, record.StreakDays, "second session on the same date must not bump the streak")
}

func TestTrackerStreakAcrossDays(t *testing.T) {
	tracker := newTestTracker(t)
	day := time.Date(2026, 8, 27, 9, 0, 0, 0, time.Local)
	tracker.now = func() time.Time { return day }

	_, err := tracker.LogSession("user-1", 100)
	require.NoError(t, err)

	day = day.AddDate(0, 0, 1)
	record, err := tracker.LogSession("user-1", 100)
	require.NoError(t, err)
	assert.Equal(t, 2, record.StreakDays)

	// a missed day leaves the streak where it was
	day = day.AddDate(0, 0, 3)
	record, err = tracker.LogSession("user-1", 100)
	require.NoError(t, err)
	assert.Equal(t, 3, record.StreakDays)
	assert.Equal(t, int64(300), record.TotalWords)
}

func TestTrackerRejectsNonPositiveWordCount(t *testing.T) {
	tracker := newTestTracker(t)

	_, err := tracker.LogSession("user-1", 250)
	require.NoError(t, err)
	before := tracker.GetProfile("user-1")

	for _, words := range []int64{0, -1, -500} {
		_, err = tracker.LogSession("user-1", words)
		assert.ErrorIs(t, err, ErrInvalidWordCount)
	}

	assert.Equal(
		t,
		before,
		tracker.GetProfile("user-1"),
		"rejected sessions must leave the record unchanged",
	)
}

func TestTrackerGetOrCreateDoesNotPersist(t *testing.T) {
	store := newTestStore(t)
	tracker := NewTracker(store, nil)

	record := tracker.GetOrCreate("new-user")
	assert.Equal(t, "new-user", record.UserID)
	assert.Zero(t, record.TotalWords)
	assert.Zero(t, record.StreakDays)
	assert.Empty(t, record.LastWriteDate)

	assert.Empty(t, store.LoadWriters(), "reads must not write the table")
}

func TestTrackerPersistsAcrossRestart(t *testing.T) {
	store := newTestStore(t)

	tracker := NewTracker(store, nil)
	tracker.now = func() time.Time {
		return time.Date(2026, 8, 27, 12, 0, 0, 0, time.Local)
	}
	_, err := tracker.LogSession("user-1", 750)
	require.NoError(t, err)

	reloaded := NewTracker(store, nil)
	record := reloaded.GetProfile("user-1")
	assert.Equal(t, int64(750), record.TotalWords)
	assert.Equal(t, 1, record.StreakDays)
	assert.Equal(t, "2026-08-27", record.LastWriteDate)
}
