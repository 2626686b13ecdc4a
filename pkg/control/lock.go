// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/evoludigit/pggit/pkg/db"
)

// ErrLockHeld is returned when a branch's operation lock is already
// held by a different operation.
var ErrLockHeld = errors.New("operation lock already held for branch")

// LockManager acquires and releases per-branch operation locks backed
// by the operation_locks row-lock table (pkg/store/init.go). This is
// scoped per branch, rather than a single global lock, because pggit
// allows concurrent operations on independent branches.
type LockManager struct {
	conn   db.DB
	schema string
}

// NewLockManager builds a LockManager bound to conn, reading/writing
// the operation_locks table in schema.
func NewLockManager(conn db.DB, schema string) *LockManager {
	return &LockManager{conn: conn, schema: schema}
}

func (l *LockManager) table() string {
	return pq.QuoteIdentifier(l.schema) + "." + pq.QuoteIdentifier("operation_locks")
}

// Acquire takes the named branch's operation lock, failing immediately
// with ErrLockHeld if another operation already holds it. Locks do not
// block; contention is classified as LockTimeout and retried by the
// caller's RecoveryPolicy rather than by blocking here.
func (l *LockManager) Acquire(ctx context.Context, branch, lockedBy, operationKind string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (branch_name, locked_by, locked_at, operation_kind)
		VALUES ($1, $2, now(), $3)
		ON CONFLICT (branch_name) DO NOTHING`, l.table())

	res, err := l.conn.ExecContext(ctx, query, branch, lockedBy, operationKind)
	if err != nil {
		return fmt.Errorf("acquiring operation lock for branch %q: %w", branch, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking operation lock result for branch %q: %w", branch, err)
	}
	if n == 0 {
		return ErrLockHeld
	}
	return nil
}

// Release drops the named branch's operation lock.
func (l *LockManager) Release(ctx context.Context, branch string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE branch_name = $1`, l.table())
	_, err := l.conn.ExecContext(ctx, query, branch)
	if err != nil {
		return fmt.Errorf("releasing operation lock for branch %q: %w", branch, err)
	}
	return nil
}

// WithLock runs fn while holding branch's operation lock, always
// releasing it afterward regardless of fn's outcome.
func (l *LockManager) WithLock(ctx context.Context, branch, lockedBy, operationKind string, fn func(ctx context.Context) error) error {
	if err := l.Acquire(ctx, branch, lockedBy, operationKind); err != nil {
		return err
	}
	defer func() {
		// Best-effort release using a background context: the caller's
		// ctx may already be cancelled by the time fn returns.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Release(releaseCtx, branch)
	}()
	return fn(ctx)
}

// IsLockHeld reports whether err (or any error it wraps) indicates
// lock contention.
func IsLockHeld(err error) bool {
	return errors.Is(err, ErrLockHeld)
}
