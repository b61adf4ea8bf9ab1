package metering

import "time"

const (
	operationSweep       = "sweep"
	operationAdd         = "add"
	operationSpend       = "spend"
	operationProcessVote = "process_vote"

	operationStatusOK      = "ok"
	operationStatusError   = "error"
	operationStatusSkipped = "skipped"

	// voteWindow is the period after a vote during which repeat vote
	// notifications neither advance the streak nor grant again.
	voteWindow = 12 * time.Hour

	weekendRewardMultiplier = 2

	quotaDateLayout = "2006-01-02"

	// defaultCharsPerToken is the fixed heuristic used by EstimateTokens.
	defaultCharsPerToken = 4
)
