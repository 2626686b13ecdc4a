// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"time"

	"github.com/cloudflare/backoff"

	"github.com/evoludigit/pggit/pkg/db"
)

const (
	controlBackoffMax      = 8 * time.Second
	controlBackoffInterval = 2 * time.Second
	controlMaxAttempts     = 3
)

// Classifier turns an arbitrary error returned by a wrapped verb into the
// ErrorKind recovery dispatches on. Each pggit component (pkg/planner,
// pkg/merge, pkg/refstore, ...) supplies its own Classifier, since only
// it knows how to recognize its own error types.
type Classifier func(err error) (ErrorKind, string)

// Controller wraps every public pggit verb with named per-branch
// locking, structured logging and a recovery policy.
type Controller struct {
	Locks         *LockManager
	ErrorLog      *ErrorLog
	Logger        Logger
	Policy        RecoveryPolicy
	Classifier    Classifier
	Notifications NotificationSink
}

// New builds a Controller. conn and schema back both the lock table
// and the error_log table. Notifications defaults to a LogNotificationSink
// over the same Logger; override Controller.Notifications to substitute
// a different sink.
func New(conn db.DB, schema string, classifier Classifier) *Controller {
	logger := NewLogger()
	return &Controller{
		Locks:         NewLockManager(conn, schema),
		ErrorLog:      NewErrorLog(conn, schema),
		Logger:        logger,
		Policy:        DefaultRecoveryPolicy,
		Classifier:    classifier,
		Notifications: NewLogNotificationSink(logger),
	}
}

// Run executes fn under branch's operation lock, retrying per the
// RecoveryPolicy when fn's error classifies as RETRY_WITH_BACKOFF (and
// likewise when the branch lock is held and LockTimeout maps to
// RETRY_WITH_BACKOFF), and always logging start/completion/failure with
// a fresh operation id.
func (c *Controller) Run(ctx context.Context, branch, lockedBy, verb string, fn func(ctx context.Context) error) error {
	operationID := NewOperationID()
	start := time.Now()
	c.Logger.LogOperationStart(operationID, verb, branch)

	b := backoff.New(controlBackoffMax, controlBackoffInterval)
	var err error
	for attempt := 0; ; attempt++ {
		err = c.Locks.WithLock(ctx, branch, lockedBy, verb, func(ctx context.Context) error {
			return c.runWithRecovery(ctx, operationID, branch, verb, fn)
		})
		if !IsLockHeld(err) || c.Policy(ErrLockTimeout) != RecoveryRetryBackoff || attempt >= controlMaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Duration()):
		}
	}

	if err != nil {
		if IsLockHeld(err) {
			opErr := NewOperationError(operationID, ErrLockTimeout, branch, "operation lock already held", err)
			c.Logger.LogOperationError(operationID, verb, branch, opErr)
			_ = c.ErrorLog.Record(ctx, opErr, nil)
			return opErr
		}
		return err
	}

	c.Logger.LogOperationComplete(operationID, verb, branch, time.Since(start))
	return nil
}

func (c *Controller) runWithRecovery(ctx context.Context, operationID, branch, verb string, fn func(ctx context.Context) error) error {
	b := backoff.New(controlBackoffMax, controlBackoffInterval)

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		kind, message := c.Classifier(err)
		opErr := NewOperationError(operationID, kind, branch, message, err)
		action := c.Policy(kind)

		switch action {
		case RecoveryRetryBackoff:
			if attempt >= controlMaxAttempts-1 {
				c.Logger.LogOperationError(operationID, verb, branch, opErr)
				_ = c.ErrorLog.Record(ctx, opErr, nil)
				return opErr
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.Duration()):
			}
			continue
		case RecoveryDisableRetryReenable:
			// The caller's fn is expected to have already disabled the
			// violated dependency (e.g. a trigger) before returning this
			// error class; the controller retries once more and leaves
			// re-enabling to the caller's own deferred cleanup.
			if attempt >= 1 {
				c.Logger.LogOperationError(operationID, verb, branch, opErr)
				_ = c.ErrorLog.Record(ctx, opErr, nil)
				return opErr
			}
			continue
		case RecoveryNotifyOnly:
			c.Logger.LogOperationError(operationID, verb, branch, opErr)
			_ = c.ErrorLog.Record(ctx, opErr, nil)
			if c.Notifications != nil {
				c.Notifications.Notify(ctx, opErr)
			}
			return opErr
		case RecoveryManualResolution, RecoverySurface:
			c.Logger.LogOperationError(operationID, verb, branch, opErr)
			_ = c.ErrorLog.Record(ctx, opErr, nil)
			return opErr
		default:
			c.Logger.LogOperationError(operationID, verb, branch, opErr)
			_ = c.ErrorLog.Record(ctx, opErr, nil)
			return opErr
		}
	}
}

// DefaultClassifier classifies unrecognized errors as DdlExecutionFailed,
// the catch-all for errors a more specific Classifier doesn't recognize.
func DefaultClassifier(err error) (ErrorKind, string) {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Kind, opErr.Message
	}
	return ErrDdlExecutionFailed, err.Error()
}
