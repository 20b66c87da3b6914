package asylum

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// writeDateLayout is the day-granularity date format persisted in
// WriterRecord.LastWriteDate. Dates are taken in the process-local
// time zone, matching the behavior writers have come to expect.
const writeDateLayout = "2006-01-02"

// ErrInvalidWordCount is returned by Tracker.LogSession for a
// non-positive word count. The stored record is left unchanged.
var ErrInvalidWordCount = errors.New("word count must be a positive number")

// WriterRecord is the persisted writing-progress state for one user.
type WriterRecord struct {
	// UserID is the Discord user ID
	UserID string `json:"user_id"`

	// TotalWords is the cumulative logged word count. Monotonically
	// non-decreasing.
	TotalWords int64 `json:"total_words"`

	// StreakDays counts consecutive calendar days with at least one
	// logged session. It increments on the first session of each new
	// day and never decrements; a missed day leaves it as-is.
	StreakDays int `json:"streak_days"`

	// LastWriteDate is the calendar date (writeDateLayout) of the most
	// recent logged session, empty if the user has never logged one.
	LastWriteDate string `json:"last_write_date,omitempty"`
}

func (w WriterRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("user_id", w.UserID),
		slog.Int64("total_words", w.TotalWords),
		slog.Int("streak_days", w.StreakDays),
		slog.String("last_write_date", w.LastWriteDate),
	)
}

// WriterTable is the full persisted writer table, keyed by user ID.
type WriterTable map[string]*WriterRecord

// Tracker maintains per-user word totals and daily streaks, persisting
// the whole table through the Store after every mutation.
type Tracker struct {
	store  *Store
	table  WriterTable
	mu     sync.Mutex
	logger *slog.Logger

	// now is replaceable so tests can pin the calendar date
	now func() time.Time
}

// NewTracker loads the writer table from the store.
func NewTracker(store *Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		store:  store,
		table:  store.LoadWriters(),
		logger: logger.With(loggerNameKey, "tracker"),
		now:    time.Now,
	}
}

// GetOrCreate returns a copy of the user's record, materializing a
// default one if the user has never been seen. Nothing is persisted
// until a mutation occurs.
func (t *Tracker) GetOrCreate(userID string) WriterRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.getOrCreateLocked(userID)
}

// GetProfile is a read-only fetch with the same default materialization
// as GetOrCreate.
func (t *Tracker) GetProfile(userID string) WriterRecord {
	return t.GetOrCreate(userID)
}

// LogSession records a writing session of the given word count.
//
// The first session logged on a calendar date different from the
// record's last write date increments the streak by exactly one;
// further sessions the same day only add words. The updated table is
// persisted before returning.
func (t *Tracker) LogSession(userID string, words int64) (WriterRecord, error) {
	if words <= 0 {
		return WriterRecord{}, ErrInvalidWordCount
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	record := t.getOrCreateLocked(userID)
	today := t.now().Format(writeDateLayout)
	if record.LastWriteDate != today {
		record.StreakDays++
	}
	record.TotalWords += words
	record.LastWriteDate = today

	if err := t.store.SaveWriters(t.table); err != nil {
		return *record, err
	}

	t.logger.Info("logged session", "words", words, "record", *record)
	return *record, nil
}

func (t *Tracker) getOrCreateLocked(userID string) *WriterRecord {
	record, ok := t.table[userID]
	if !ok {
		record = &WriterRecord{UserID: userID}
		t.table[userID] = record
	}
	return record
}
