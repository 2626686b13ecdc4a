// SPDX-License-Identifier: Apache-2.0

package control

// RecoveryAction is the closed set of recovery behaviors assigned to
// each ErrorKind.
type RecoveryAction string

const (
	// RecoverySurface propagates the error to the caller immediately,
	// with no retry.
	RecoverySurface RecoveryAction = "SURFACE_IMMEDIATELY"
	// RecoveryRetryBackoff retries the operation with exponential
	// backoff (pkg/db's 2s/4s/8s, 3-attempt policy).
	RecoveryRetryBackoff RecoveryAction = "RETRY_WITH_BACKOFF"
	// RecoveryDisableRetryReenable disables the violated dependency
	// (e.g. a trigger), retries, then re-enables it regardless of
	// outcome.
	RecoveryDisableRetryReenable RecoveryAction = "DISABLE_RETRY_REENABLE"
	// RecoveryManualResolution never retries automatically; the caller
	// must supply a resolution before continuing.
	RecoveryManualResolution RecoveryAction = "MANUAL_RESOLUTION_REQUIRED"
	// RecoveryNotifyOnly logs and raises a notification event with no
	// automatic recovery attempted at all.
	RecoveryNotifyOnly RecoveryAction = "NOTIFY_NO_RECOVERY"
)

// RecoveryPolicy maps an ErrorKind to the action the controller should
// take.
type RecoveryPolicy func(ErrorKind) RecoveryAction

// DefaultRecoveryPolicy implements the following propagation table:
//   - ValidationError, SchemaConflict, DdlExecutionFailed, PermissionDenied,
//     CanonicalizationError, DdlTooLarge, CyclicDependency surface immediately.
//   - LockTimeout, NetworkError, StatementTimeout retry with backoff.
//   - DependencyViolation disables the violated dependency, retries, and
//     re-enables it regardless of outcome.
//   - MergeConflict is never retried automatically; it requires manual
//     resolution.
//   - CorruptionDetected is CRITICAL and raises a notification event with
//     no recovery attempted.
//   - ResourceExhausted retries with backoff; if still exhausted after
//     the backoff attempts it surfaces as CRITICAL.
func DefaultRecoveryPolicy(kind ErrorKind) RecoveryAction {
	switch kind {
	case ErrLockTimeout, ErrNetworkError, ErrStatementTimeout, ErrResourceExhausted:
		return RecoveryRetryBackoff
	case ErrDependencyViolation:
		return RecoveryDisableRetryReenable
	case ErrMergeConflict:
		return RecoveryManualResolution
	case ErrCorruptionDetected:
		return RecoveryNotifyOnly
	default:
		return RecoverySurface
	}
}
