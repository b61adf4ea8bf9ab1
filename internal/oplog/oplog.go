package oplog

import (
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/tokengate/pkg/metering"
)

// Logger adapts zap to the metering OperationLogger contract.
type Logger struct {
	base *zap.Logger
}

// New wires a Logger over a zap logger.
func New(base *zap.Logger) *Logger {
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{base: base}
}

// LogOperation implements metering.OperationLogger. Persist failures
// surface as warnings; everything else is informational.
func (logger *Logger) LogOperation(entry metering.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.Int64("amount", entry.Amount.Int64()),
		zap.Int64("balance", entry.Balance.Int64()),
		zap.String("status", entry.Status),
	}
	if entry.Error != nil {
		logger.base.Warn("metering operation", append(fields, zap.Error(entry.Error))...)
		return
	}
	logger.base.Info("metering operation", fields...)
}
