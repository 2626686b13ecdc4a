// SPDX-License-Identifier: Apache-2.0

package control

import (
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
)

// Logger is responsible for structured logging of controller-wrapped
// operations, keyed on pggit verbs rather than individual DDL
// operations.
type Logger interface {
	LogOperationStart(operationID, verb, branch string)
	LogOperationComplete(operationID, verb, branch string, duration time.Duration)
	LogOperationError(operationID, verb, branch string, opErr *OperationError)
	Info(msg string, args ...any)
}

type pertmLogger struct {
	logger pterm.Logger
}

// NewLogger builds a Logger backed by pterm's structured logger.
func NewLogger() Logger {
	return &pertmLogger{logger: pterm.DefaultLogger}
}

func (l *pertmLogger) LogOperationStart(operationID, verb, branch string) {
	l.logger.Info("starting operation", l.logger.Args(
		"operation_id", operationID,
		"verb", verb,
		"branch", branch,
	))
}

func (l *pertmLogger) LogOperationComplete(operationID, verb, branch string, duration time.Duration) {
	l.logger.Info("completed operation", l.logger.Args(
		"operation_id", operationID,
		"verb", verb,
		"branch", branch,
		"duration_ms", duration.Milliseconds(),
	))
}

func (l *pertmLogger) LogOperationError(operationID, verb, branch string, opErr *OperationError) {
	l.logger.Error("operation failed", l.logger.Args(
		"operation_id", operationID,
		"verb", verb,
		"branch", branch,
		"kind", string(opErr.Kind),
		"severity", string(opErr.Severity),
		"message", opErr.Message,
	))
}

func (l *pertmLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, l.logger.Args(args...))
}

// NewOperationID generates the operation_id every error-log row and log
// line carries.
func NewOperationID() string {
	return uuid.NewString()
}
