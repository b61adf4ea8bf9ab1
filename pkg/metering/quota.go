package metering

import (
	"fmt"
	"sync"
	"time"
)

// QuotaTracker counts free messages per user per local calendar date.
// The counter rolls over lazily: any record whose stored date is not the
// clock's current date is reset to zero before it is read or
// incremented, so crossing midnight resets each user exactly once with
// no scheduled job.
type QuotaTracker struct {
	mu         sync.Mutex
	store      QuotaStore
	nowFn      func() time.Time
	dailyLimit int
}

// NewQuotaTracker wires a QuotaTracker. dailyLimit is the number of free
// messages each user may send per calendar date.
func NewQuotaTracker(store QuotaStore, dailyLimit int, now func() time.Time) (*QuotaTracker, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if dailyLimit < 0 {
		return nil, fmt.Errorf("%w: daily limit must not be negative", ErrInvalidServiceConfig)
	}
	return &QuotaTracker{store: store, nowFn: now, dailyLimit: dailyLimit}, nil
}

// DailyLimit returns the configured free-message allowance.
func (tracker *QuotaTracker) DailyLimit() int {
	return tracker.dailyLimit
}

// RemainingFree returns how many free messages the user has left today,
// clamped at zero.
func (tracker *QuotaTracker) RemainingFree(userID UserID) int {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	record := tracker.recordLocked(userID)
	remaining := tracker.dailyLimit - record.MessageCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsWithinFree reports whether the user still has free messages today.
func (tracker *QuotaTracker) IsWithinFree(userID UserID) bool {
	return tracker.RemainingFree(userID) > 0
}

// MessageCount returns the user's message count for today.
func (tracker *QuotaTracker) MessageCount(userID UserID) int {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	return tracker.recordLocked(userID).MessageCount
}

// Increment advances the user's daily counter and returns the new count.
func (tracker *QuotaTracker) Increment(userID UserID) int {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	record := tracker.recordLocked(userID)
	record.MessageCount++
	_ = tracker.store.PutQuotaRecord(userID, record)
	return record.MessageCount
}

// recordLocked loads the user's record, applying the date rollover and
// persisting a fresh record when one was created or reset. The caller
// must hold the mutex.
func (tracker *QuotaTracker) recordLocked(userID UserID) QuotaRecord {
	today := tracker.nowFn().Format(quotaDateLayout)
	record, ok := tracker.store.QuotaRecord(userID)
	if !ok || record.LastResetDate != today {
		record = QuotaRecord{MessageCount: 0, LastResetDate: today}
		_ = tracker.store.PutQuotaRecord(userID, record)
	}
	return record
}
