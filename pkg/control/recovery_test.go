// SPDX-License-Identifier: Apache-2.0

package control_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evoludigit/pggit/pkg/control"
)

func TestDefaultRecoveryPolicy_SurfaceImmediately(t *testing.T) {
	for _, kind := range []control.ErrorKind{
		control.ErrValidation,
		control.ErrSchemaConflict,
		control.ErrDdlExecutionFailed,
		control.ErrPermissionDenied,
		control.ErrCanonicalization,
		control.ErrDdlTooLarge,
		control.ErrCyclicDependency,
	} {
		assert.Equal(t, control.RecoverySurface, control.DefaultRecoveryPolicy(kind), "kind %s", kind)
	}
}

func TestDefaultRecoveryPolicy_RetryWithBackoff(t *testing.T) {
	for _, kind := range []control.ErrorKind{
		control.ErrLockTimeout,
		control.ErrNetworkError,
		control.ErrStatementTimeout,
		control.ErrResourceExhausted,
	} {
		assert.Equal(t, control.RecoveryRetryBackoff, control.DefaultRecoveryPolicy(kind), "kind %s", kind)
	}
}

func TestDefaultRecoveryPolicy_SpecialCases(t *testing.T) {
	assert.Equal(t, control.RecoveryDisableRetryReenable, control.DefaultRecoveryPolicy(control.ErrDependencyViolation))
	assert.Equal(t, control.RecoveryManualResolution, control.DefaultRecoveryPolicy(control.ErrMergeConflict))
	assert.Equal(t, control.RecoveryNotifyOnly, control.DefaultRecoveryPolicy(control.ErrCorruptionDetected))
}

func TestErrorKind_Severity(t *testing.T) {
	assert.Equal(t, control.SevCritical, control.ErrCorruptionDetected.Severity())
	assert.Equal(t, control.SevCritical, control.ErrResourceExhausted.Severity())
	assert.Equal(t, control.SevWarning, control.ErrMergeConflict.Severity())
}

func TestOperationError_UnwrapsUnderlyingError(t *testing.T) {
	underlying := errors.New("boom")
	opErr := control.NewOperationError("op-1", control.ErrDdlExecutionFailed, "main", "ddl failed", underlying)

	assert.ErrorIs(t, opErr, underlying)
	assert.Contains(t, opErr.Error(), "main")
	assert.Contains(t, opErr.Error(), "DdlExecutionFailed")
}

func TestDefaultClassifier_PassesThroughOperationError(t *testing.T) {
	underlying := control.NewOperationError("op-1", control.ErrMergeConflict, "main", "conflict", nil)

	kind, msg := control.DefaultClassifier(underlying)
	assert.Equal(t, control.ErrMergeConflict, kind)
	assert.Equal(t, "conflict", msg)
}

func TestDefaultClassifier_FallsBackToDdlExecutionFailed(t *testing.T) {
	kind, msg := control.DefaultClassifier(errors.New("unexpected"))
	assert.Equal(t, control.ErrDdlExecutionFailed, kind)
	assert.Equal(t, "unexpected", msg)
}
