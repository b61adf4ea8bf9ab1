package metering

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Ledger is the expiring credit ledger. Every operation sweeps dead
// entries before acting, so stored state never accumulates garbage and a
// balance is always a pure function of the stored entries plus the
// injected clock. One mutex serializes the sweep+mutate+save sequence of
// each operation.
type Ledger struct {
	mu     sync.Mutex
	store  LedgerStore
	nowFn  func() time.Time
	logger OperationLogger
}

// NewLedger wires a Ledger.
func NewLedger(store LedgerStore, now func() time.Time, options ...LedgerOption) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	ledger := &Ledger{store: store, nowFn: now}
	for _, option := range options {
		if option != nil {
			option(ledger)
		}
	}
	return ledger, nil
}

// Balance returns the user's live token balance. Balance is a sweep.
func (ledger *Ledger) Balance(userID UserID) TokenAmount {
	return ledger.Sweep(userID)
}

// Sweep prunes dead entries, persists the pruned list, and returns the
// sum of the remaining amounts.
func (ledger *Ledger) Sweep(userID UserID) TokenAmount {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	_, balance, persistError := ledger.sweepLocked(userID)
	if persistError != nil {
		ledger.logOperation(OperationLog{
			Operation: operationSweep,
			UserID:    userID,
			Balance:   balance,
			Error:     persistError,
		})
	}
	return balance
}

// Add appends a credit entry and returns the new balance. A non-positive
// amount is treated as a sweep-only call: no entry is added and the
// current balance is returned. A ttl of zero or less means the entry
// never expires.
func (ledger *Ledger) Add(userID UserID, tokens TokenAmount, ttl time.Duration) TokenAmount {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	live, balance, persistError := ledger.sweepLocked(userID)
	if tokens <= 0 {
		ledger.logOperation(OperationLog{
			Operation: operationAdd,
			UserID:    userID,
			Amount:    tokens,
			Balance:   balance,
			Status:    operationStatusSkipped,
			Error:     persistError,
		})
		return balance
	}
	entry := CreditEntry{Tokens: tokens}
	if ttl > 0 {
		entry.ExpiresAtUnixUTC = ledger.nowFn().Add(ttl).Unix()
	}
	live = append(live, entry)
	if err := ledger.store.PutCreditEntries(userID, live); err != nil && persistError == nil {
		persistError = WrapError("ledger", "add", "persist", err)
	}
	balance += tokens
	ledger.logOperation(OperationLog{
		Operation: operationAdd,
		UserID:    userID,
		Amount:    tokens,
		Balance:   balance,
		Error:     persistError,
	})
	return balance
}

// Spend consumes tokens from the live entries, soonest-expiring first
// with never-expiring entries last, and returns the remaining balance. A
// non-positive amount is a sweep-only call. When the available balance is
// smaller than the requested amount the ledger drains to zero instead of
// failing; affordability is decided one layer up (see Gate.CanSend).
func (ledger *Ledger) Spend(userID UserID, tokens TokenAmount) TokenAmount {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()
	live, balance, persistError := ledger.sweepLocked(userID)
	if tokens <= 0 {
		ledger.logOperation(OperationLog{
			Operation: operationSpend,
			UserID:    userID,
			Amount:    tokens,
			Balance:   balance,
			Status:    operationStatusSkipped,
			Error:     persistError,
		})
		return balance
	}
	sortBySoonestExpiry(live)
	remainingToSpend := tokens
	kept := make([]CreditEntry, 0, len(live))
	for _, entry := range live {
		if remainingToSpend <= 0 {
			kept = append(kept, entry)
			continue
		}
		if entry.Tokens <= remainingToSpend {
			remainingToSpend -= entry.Tokens
			continue
		}
		entry.Tokens -= remainingToSpend
		remainingToSpend = 0
		kept = append(kept, entry)
	}
	if err := ledger.store.PutCreditEntries(userID, kept); err != nil && persistError == nil {
		persistError = WrapError("ledger", "spend", "persist", err)
	}
	spent := tokens - remainingToSpend
	balance -= spent
	ledger.logOperation(OperationLog{
		Operation: operationSpend,
		UserID:    userID,
		Amount:    spent,
		Balance:   balance,
		Error:     persistError,
	})
	return balance
}

// sweepLocked prunes dead entries and persists the pruned list. The
// caller must hold the mutex.
func (ledger *Ledger) sweepLocked(userID UserID) ([]CreditEntry, TokenAmount, error) {
	nowUnixUTC := ledger.nowFn().Unix()
	stored := ledger.store.CreditEntries(userID)
	live := make([]CreditEntry, 0, len(stored))
	var balance TokenAmount
	for _, entry := range stored {
		if entry.Dead(nowUnixUTC) {
			continue
		}
		live = append(live, entry)
		balance += entry.Tokens
	}
	if err := ledger.store.PutCreditEntries(userID, live); err != nil {
		return live, balance, WrapError("ledger", "sweep", "persist", err)
	}
	return live, balance, nil
}

func (ledger *Ledger) logOperation(entry OperationLog) {
	if ledger.logger == nil {
		return
	}
	ledger.logger.LogOperation(fillStatus(entry))
}

// sortBySoonestExpiry orders entries so spending consumes the credit
// closest to expiring first; never-expiring entries sort last. Without
// this order a user could lose fresh expiring credit while permanent
// credit sits untouched.
func sortBySoonestExpiry(entries []CreditEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		left, right := entries[i].ExpiresAtUnixUTC, entries[j].ExpiresAtUnixUTC
		if left == 0 {
			return false
		}
		if right == 0 {
			return true
		}
		return left < right
	})
}
