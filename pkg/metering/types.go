package metering

import (
	"fmt"
	"strings"
)

// TokenAmount counts AI tokens. Amounts handed to Add and Spend may be
// any value; non-positive amounts are treated as sweep-only no-ops.
type TokenAmount int64

// Int64 returns the raw token count.
func (amount TokenAmount) Int64() int64 {
	return int64(amount)
}

// UserID identifies a metered user.
type UserID struct {
	value string
}

// NewUserID validates and normalizes a user id.
func NewUserID(raw string) (UserID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return UserID{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	return UserID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id UserID) String() string {
	return id.value
}

// CreditEntry is one grant of AI tokens with an optional expiry.
// A zero ExpiresAtUnixUTC means the entry never expires.
type CreditEntry struct {
	Tokens           TokenAmount
	ExpiresAtUnixUTC int64
}

// ExpiredAt reports whether the entry is past its expiry at the given instant.
func (entry CreditEntry) ExpiredAt(nowUnixUTC int64) bool {
	return entry.ExpiresAtUnixUTC != 0 && entry.ExpiresAtUnixUTC <= nowUnixUTC
}

// Dead reports whether a sweep should prune the entry.
func (entry CreditEntry) Dead(nowUnixUTC int64) bool {
	return entry.Tokens <= 0 || entry.ExpiredAt(nowUnixUTC)
}

// QuotaRecord tracks one user's free-message count for a calendar date.
// A record whose LastResetDate is not the current local date is reset
// before it is read or incremented.
type QuotaRecord struct {
	MessageCount  int
	LastResetDate string
}

// VoteRecord tracks one user's vote window, streak, and reward bookkeeping.
// Zero timestamps mean "never". LastRewardUnixUTC at or after
// LastVoteUnixUTC is the sole signal that the current window was already
// rewarded.
type VoteRecord struct {
	UserID            string
	IsVoter           bool
	VoterStreak       int
	LastVoteUnixUTC   int64
	LastRewardUnixUTC int64
	IsWeekend         bool
}

// Basis explains a CanSend decision.
type Basis string

const (
	BasisFree   Basis = "free"
	BasisCredit Basis = "credit"
	BasisDenied Basis = "denied"
)

// Decision is the Gate's answer to CanSend.
type Decision struct {
	Allow         bool
	Basis         Basis
	RemainingFree int
	Balance       TokenAmount
	EstimatedCost TokenAmount
}

// LedgerStore persists per-user credit entry lists.
// (filestore implements all three store contracts.)
type LedgerStore interface {
	CreditEntries(userID UserID) []CreditEntry
	PutCreditEntries(userID UserID, entries []CreditEntry) error
}

// QuotaStore persists per-user daily quota records.
type QuotaStore interface {
	QuotaRecord(userID UserID) (QuotaRecord, bool)
	PutQuotaRecord(userID UserID, record QuotaRecord) error
}

// VoteStore persists per-user vote records.
type VoteStore interface {
	VoteRecord(userID UserID) (VoteRecord, bool)
	PutVoteRecord(userID UserID, record VoteRecord) error
}
