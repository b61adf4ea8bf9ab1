package metering

import (
	"fmt"
	"sync"
	"unicode/utf8"
)

// Gate composes the quota tracker and the credit ledger into the single
// decision surface callers use around a chat request: ask CanSend before
// invoking the model, report the actual cost back through RecordUsage.
type Gate struct {
	mu     sync.Mutex
	quota  *QuotaTracker
	ledger *Ledger
}

// NewGate wires a Gate.
func NewGate(quota *QuotaTracker, ledger *Ledger) (*Gate, error) {
	if quota == nil {
		return nil, fmt.Errorf("%w: quota dependency is nil", ErrInvalidServiceConfig)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	return &Gate{quota: quota, ledger: ledger}, nil
}

// CanSend decides whether the user may send a message costing
// estimatedCost tokens. Free quota is always preferred; the credit
// balance is consulted only once the daily allowance is gone.
func (gate *Gate) CanSend(userID UserID, estimatedCost TokenAmount) Decision {
	gate.mu.Lock()
	defer gate.mu.Unlock()
	remainingFree := gate.quota.RemainingFree(userID)
	if remainingFree > 0 {
		return Decision{
			Allow:         true,
			Basis:         BasisFree,
			RemainingFree: remainingFree,
			EstimatedCost: estimatedCost,
		}
	}
	balance := gate.ledger.Balance(userID)
	if balance >= estimatedCost {
		return Decision{
			Allow:         true,
			Basis:         BasisCredit,
			Balance:       balance,
			EstimatedCost: estimatedCost,
		}
	}
	return Decision{
		Basis:         BasisDenied,
		Balance:       balance,
		EstimatedCost: estimatedCost,
	}
}

// RecordUsage reports the actual cost of a message that was sent. The
// quota counter always advances; credit is debited only when the daily
// allowance was already exhausted before this message, so free messages
// are never charged against credit. Increment and spend run under one
// lock: two concurrent requests that both observe an exhausted quota
// cannot both debit credit for what should have been one free message.
func (gate *Gate) RecordUsage(userID UserID, actualCost TokenAmount) {
	gate.mu.Lock()
	defer gate.mu.Unlock()
	withinFree := gate.quota.IsWithinFree(userID)
	gate.quota.Increment(userID)
	if !withinFree {
		gate.ledger.Spend(userID, actualCost)
	}
}

// RemainingFree exposes the quota tracker's remaining free-message count.
func (gate *Gate) RemainingFree(userID UserID) int {
	return gate.quota.RemainingFree(userID)
}

// Balance exposes the ledger's live balance for the user.
func (gate *Gate) Balance(userID UserID) TokenAmount {
	return gate.ledger.Balance(userID)
}

// EstimateTokens approximates the token cost of a message body with a
// fixed characters-per-token heuristic. Non-empty text costs at least
// one token.
func EstimateTokens(text string) TokenAmount {
	if text == "" {
		return 0
	}
	estimated := TokenAmount(utf8.RuneCountInString(text) / defaultCharsPerToken)
	if estimated < 1 {
		return 1
	}
	return estimated
}
