// SPDX-License-Identifier: Apache-2.0

// Package db wraps database/sql with the lock-timeout retry behaviour that
// every layer of the store (refs, objects, planner) needs when running
// against a live Postgres instance.
package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/cloudflare/backoff"
	"github.com/lib/pq"
)

const (
	lockNotAvailableErrorCode pq.ErrorCode = "55P03"
	serializationFailureCode  pq.ErrorCode = "40001"
	deadlockDetectedCode      pq.ErrorCode = "40P01"
	maxBackoffDuration                     = 8 * time.Second
	backoffInterval                        = 2 * time.Second
	maxRetryAttempts                       = 3
)

// DB is the interface every pggit component depends on instead of *sql.DB
// directly, so that pkg/db.FakeDB can stand in during unit tests.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	WithRetryableTransaction(ctx context.Context, f func(context.Context, *sql.Tx) error) error
	Close() error
}

// RDB wraps a *sql.DB and retries queries using an exponential backoff on
// lock_timeout and serialization-failure errors, matching the
// LockTimeout/StatementTimeout recovery policy (2s, 4s, 8s; 3 attempts).
type RDB struct {
	DB *sql.DB
}

func isRetryable(err error) bool {
	pqErr := &pq.Error{}
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case lockNotAvailableErrorCode, serializationFailureCode, deadlockDetectedCode:
		return true
	default:
		return false
	}
}

// ExecContext wraps sql.DB.ExecContext, retrying queries on retryable errors.
func (db *RDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	b := backoff.New(maxBackoffDuration, backoffInterval)

	for attempt := 0; ; attempt++ {
		res, err := db.DB.ExecContext(ctx, query, args...)
		if err == nil {
			return res, nil
		}
		if attempt >= maxRetryAttempts-1 || !isRetryable(err) {
			return nil, err
		}
		if err := sleepCtx(ctx, b.Duration()); err != nil {
			return nil, err
		}
	}
}

// QueryContext wraps sql.DB.QueryContext, retrying queries on retryable errors.
func (db *RDB) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	b := backoff.New(maxBackoffDuration, backoffInterval)

	for attempt := 0; ; attempt++ {
		rows, err := db.DB.QueryContext(ctx, query, args...)
		if err == nil {
			return rows, nil
		}
		if attempt >= maxRetryAttempts-1 || !isRetryable(err) {
			return nil, err
		}
		if err := sleepCtx(ctx, b.Duration()); err != nil {
			return nil, err
		}
	}
}

// QueryRowContext wraps sql.DB.QueryRowContext. Single-row queries are not
// retried here: callers that need retry semantics on a row scan should use
// QueryContext with db.ScanFirstValue.
func (db *RDB) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return db.DB.QueryRowContext(ctx, query, args...)
}

// WithRetryableTransaction runs `f` in a transaction, retrying on retryable errors.
func (db *RDB) WithRetryableTransaction(ctx context.Context, f func(context.Context, *sql.Tx) error) error {
	b := backoff.New(maxBackoffDuration, backoffInterval)

	for attempt := 0; ; attempt++ {
		tx, err := db.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		err = f(ctx, tx)
		if err == nil {
			return tx.Commit()
		}

		if errRollback := tx.Rollback(); errRollback != nil {
			return errRollback
		}

		if attempt >= maxRetryAttempts-1 || !isRetryable(err) {
			return err
		}
		if err := sleepCtx(ctx, b.Duration()); err != nil {
			return err
		}
	}
}

func (db *RDB) Close() error {
	return db.DB.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ScanFirstValue is a helper function to scan the first value with the assumption that Rows contains
// a single row with a single value.
func ScanFirstValue[T any](rows *sql.Rows, dest *T) error {
	if rows.Next() {
		if err := rows.Scan(dest); err != nil {
			return err
		}
	}
	return rows.Err()
}
