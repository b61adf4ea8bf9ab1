package metering

// OperationLogger records domain-level events emitted by metering operations.
type OperationLogger interface {
	LogOperation(entry OperationLog)
}

// OperationLog describes a state-changing metering operation. Error is
// non-nil when the in-memory state applied but persisting it failed; the
// in-memory state remains authoritative until the next successful save.
type OperationLog struct {
	Operation string
	UserID    UserID
	Amount    TokenAmount
	Balance   TokenAmount
	Status    string
	Error     error
}

// LedgerOption configures a Ledger instance.
type LedgerOption func(*Ledger)

// WithLedgerLogger wires a logger that receives callbacks for every
// ledger operation.
func WithLedgerLogger(logger OperationLogger) LedgerOption {
	return func(ledger *Ledger) {
		ledger.logger = logger
	}
}

// VoteOption configures a VoteMachine instance.
type VoteOption func(*VoteMachine)

// WithVoteLogger wires a logger that receives callbacks for every
// processed vote.
func WithVoteLogger(logger OperationLogger) VoteOption {
	return func(machine *VoteMachine) {
		machine.logger = logger
	}
}

func fillStatus(entry OperationLog) OperationLog {
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	return entry
}
