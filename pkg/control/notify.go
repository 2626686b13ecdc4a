// SPDX-License-Identifier: Apache-2.0

package control

import "context"

// NotificationSink receives a notification-only event: an operation
// the recovery policy classified RecoveryNotifyOnly (CorruptionDetected
// is the only such kind today), where retrying would make things worse
// and the right move is to page someone rather than attempt recovery.
type NotificationSink interface {
	Notify(ctx context.Context, opErr *OperationError)
}

// LogNotificationSink is the default NotificationSink: it logs the
// event through the controller's own Logger (its Info method), carrying
// the error's severity, kind, branch and message as fields. Tests
// substitute a slice-backed fake to assert a notification fired without
// scraping log output.
type LogNotificationSink struct {
	Logger Logger
}

// NewLogNotificationSink builds a LogNotificationSink backed by logger.
func NewLogNotificationSink(logger Logger) *LogNotificationSink {
	return &LogNotificationSink{Logger: logger}
}

func (s *LogNotificationSink) Notify(_ context.Context, opErr *OperationError) {
	s.Logger.Info("notification", "severity", string(opErr.Severity), "kind", string(opErr.Kind), "branch", opErr.Branch, "message", opErr.Message)
}
