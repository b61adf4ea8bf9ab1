package metering

import (
	"fmt"
	"sync"
	"time"
)

// VoteMachine tracks per-user vote windows and streaks and grants the
// configured expiring ledger reward at most once per window. Repeat
// notifications inside one window are idempotent: the streak does not
// advance, the window timestamp does not move, and no second grant is
// made. The reward-vs-vote timestamp comparison is the sole duplicate
// detection; after every grant LastRewardUnixUTC >= LastVoteUnixUTC must
// hold for the current window.
type VoteMachine struct {
	mu           sync.Mutex
	store        VoteStore
	ledger       *Ledger
	nowFn        func() time.Time
	rewardTokens TokenAmount
	rewardTTL    time.Duration
	logger       OperationLogger
}

// VoteResult reports the outcome of one processed vote event.
type VoteResult struct {
	Streak     int
	Rewarded   bool
	NewBalance TokenAmount
}

// NewVoteMachine wires a VoteMachine. rewardTokens is the base grant for
// a vote (doubled on weekends) and rewardTTL its expiry.
func NewVoteMachine(store VoteStore, ledger *Ledger, rewardTokens TokenAmount, rewardTTL time.Duration, now func() time.Time, options ...VoteOption) (*VoteMachine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if ledger == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	if rewardTokens <= 0 {
		return nil, fmt.Errorf("%w: reward tokens must be positive", ErrInvalidServiceConfig)
	}
	machine := &VoteMachine{
		store:        store,
		ledger:       ledger,
		nowFn:        now,
		rewardTokens: rewardTokens,
		rewardTTL:    rewardTTL,
	}
	for _, option := range options {
		if option != nil {
			option(machine)
		}
	}
	return machine, nil
}

// ProcessVote records an inbound vote event. A vote opens a new window
// when the user has no prior vote or the previous one is older than the
// window length; only a new window advances the streak and is eligible
// for a reward. The vote record is persisted whether or not a reward was
// granted.
func (machine *VoteMachine) ProcessVote(userID UserID, isWeekend bool) VoteResult {
	machine.mu.Lock()
	defer machine.mu.Unlock()

	now := machine.nowFn()
	record, _ := machine.store.VoteRecord(userID)
	record.UserID = userID.String()
	record.IsVoter = true
	record.IsWeekend = isWeekend

	isNewWindow := record.LastVoteUnixUTC == 0 ||
		now.Sub(time.Unix(record.LastVoteUnixUTC, 0)) > voteWindow
	if isNewWindow {
		record.VoterStreak++
		record.LastVoteUnixUTC = now.Unix()
	}

	result := VoteResult{Streak: record.VoterStreak}
	rewardEligible := isNewWindow &&
		(record.LastRewardUnixUTC == 0 || record.LastRewardUnixUTC < record.LastVoteUnixUTC)
	var grantedTokens TokenAmount
	if rewardEligible {
		grantedTokens = machine.rewardTokens
		if isWeekend {
			grantedTokens *= weekendRewardMultiplier
		}
		result.NewBalance = machine.ledger.Add(userID, grantedTokens, machine.rewardTTL)
		record.LastRewardUnixUTC = now.Unix()
		result.Rewarded = true
	}

	var persistError error
	if err := machine.store.PutVoteRecord(userID, record); err != nil {
		persistError = WrapError("vote", "process", "persist", err)
	}
	machine.logOperation(OperationLog{
		Operation: operationProcessVote,
		UserID:    userID,
		Amount:    grantedTokens,
		Balance:   result.NewBalance,
		Error:     persistError,
	})
	return result
}

// IsActiveVoter reports whether the user voted within the current window.
func (machine *VoteMachine) IsActiveVoter(userID UserID) bool {
	machine.mu.Lock()
	defer machine.mu.Unlock()
	record, ok := machine.store.VoteRecord(userID)
	if !ok || !record.IsVoter || record.LastVoteUnixUTC == 0 {
		return false
	}
	return machine.nowFn().Before(time.Unix(record.LastVoteUnixUTC, 0).Add(voteWindow))
}

// VoteInfo returns a read-only snapshot of the user's vote record.
func (machine *VoteMachine) VoteInfo(userID UserID) VoteRecord {
	machine.mu.Lock()
	defer machine.mu.Unlock()
	record, _ := machine.store.VoteRecord(userID)
	record.UserID = userID.String()
	return record
}

func (machine *VoteMachine) logOperation(entry OperationLog) {
	if machine.logger == nil {
		return
	}
	machine.logger.LogOperation(fillStatus(entry))
}
