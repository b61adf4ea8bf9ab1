package metering

import (
	"testing"
	"time"
)

// stubStore is an in-memory implementation of all three store contracts
// with a switchable save failure.
type stubStore struct {
	credits map[string][]CreditEntry
	quotas  map[string]QuotaRecord
	votes   map[string]VoteRecord
	saveErr error
}

func newStubStore() *stubStore {
	return &stubStore{
		credits: make(map[string][]CreditEntry),
		quotas:  make(map[string]QuotaRecord),
		votes:   make(map[string]VoteRecord),
	}
}

func (store *stubStore) CreditEntries(userID UserID) []CreditEntry {
	entries := store.credits[userID.String()]
	copied := make([]CreditEntry, len(entries))
	copy(copied, entries)
	return copied
}

func (store *stubStore) PutCreditEntries(userID UserID, entries []CreditEntry) error {
	if store.saveErr != nil {
		return store.saveErr
	}
	copied := make([]CreditEntry, len(entries))
	copy(copied, entries)
	store.credits[userID.String()] = copied
	return nil
}

func (store *stubStore) QuotaRecord(userID UserID) (QuotaRecord, bool) {
	record, ok := store.quotas[userID.String()]
	return record, ok
}

func (store *stubStore) PutQuotaRecord(userID UserID, record QuotaRecord) error {
	if store.saveErr != nil {
		return store.saveErr
	}
	store.quotas[userID.String()] = record
	return nil
}

func (store *stubStore) VoteRecord(userID UserID) (VoteRecord, bool) {
	record, ok := store.votes[userID.String()]
	return record, ok
}

func (store *stubStore) PutVoteRecord(userID UserID, record VoteRecord) error {
	if store.saveErr != nil {
		return store.saveErr
	}
	store.votes[userID.String()] = record
	return nil
}

// fakeClock is an adjustable clock for deterministic expiry tests.
type fakeClock struct {
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)}
}

func (clock *fakeClock) Now() time.Time {
	return clock.current
}

func (clock *fakeClock) Advance(delta time.Duration) {
	clock.current = clock.current.Add(delta)
}

// capturingLogger records every operation log entry it receives.
type capturingLogger struct {
	entries []OperationLog
}

func (logger *capturingLogger) LogOperation(entry OperationLog) {
	logger.entries = append(logger.entries, entry)
}

func mustUserID(t *testing.T, raw string) UserID {
	t.Helper()
	userID, err := NewUserID(raw)
	if err != nil {
		t.Fatalf("user id: %v", err)
	}
	return userID
}

func mustLedger(t *testing.T, store LedgerStore, clock *fakeClock, options ...LedgerOption) *Ledger {
	t.Helper()
	ledger, err := NewLedger(store, clock.Now, options...)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	return ledger
}

func mustQuotaTracker(t *testing.T, store QuotaStore, dailyLimit int, clock *fakeClock) *QuotaTracker {
	t.Helper()
	tracker, err := NewQuotaTracker(store, dailyLimit, clock.Now)
	if err != nil {
		t.Fatalf("quota tracker: %v", err)
	}
	return tracker
}

func mustVoteMachine(t *testing.T, store VoteStore, ledger *Ledger, rewardTokens TokenAmount, rewardTTL time.Duration, clock *fakeClock, options ...VoteOption) *VoteMachine {
	t.Helper()
	machine, err := NewVoteMachine(store, ledger, rewardTokens, rewardTTL, clock.Now, options...)
	if err != nil {
		t.Fatalf("vote machine: %v", err)
	}
	return machine
}

func mustGate(t *testing.T, quota *QuotaTracker, ledger *Ledger) *Gate {
	t.Helper()
	gate, err := NewGate(quota, ledger)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}
	return gate
}
