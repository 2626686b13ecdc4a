// SPDX-License-Identifier: Apache-2.0

package planner

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/evoludigit/pggit/pkg/db"
)

// StepResult records the outcome of executing one planned step.
type StepResult struct {
	Statement DdlStatement
	Executed  bool
	Failed    bool
	Error     error
}

// ApplyResult is the outcome of applying an entire Plan.
type ApplyResult struct {
	TableName string
	Results   []StepResult
}

// Applier runs a Plan's steps against a live connection, one savepoint
// per step, scoped to a single transaction so a failed step can be
// rolled back without discarding prior steps.
type Applier struct {
	conn db.DB
}

// NewApplier builds an Applier bound to conn.
func NewApplier(conn db.DB) *Applier {
	return &Applier{conn: conn}
}

// Apply executes plan's steps in order inside one retryable transaction,
// using a SAVEPOINT per step so a single failing statement can be rolled
// back to without aborting steps already applied in the same
// transaction. The remaining steps still run after a failed one; the
// transaction commits whatever succeeded and Apply returns the first
// step failure.
func (a *Applier) Apply(ctx context.Context, plan *Plan) (*ApplyResult, error) {
	result := &ApplyResult{TableName: plan.TableName}

	var firstFailure error
	err := a.conn.WithRetryableTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		firstFailure = nil
		for i, step := range plan.Steps {
			sp := fmt.Sprintf("pggit_step_%d", i)
			stepResult := StepResult{Statement: step.Statement}

			if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
				return fmt.Errorf("creating savepoint %s: %w", sp, err)
			}

			runHelper := func() error {
				if step.Statement.DataMigrationHelper == "" {
					return nil
				}
				_, err := tx.ExecContext(ctx, step.Statement.DataMigrationHelper)
				return err
			}
			runSQL := func() error {
				if step.Statement.SQL == "" {
					return nil
				}
				_, err := tx.ExecContext(ctx, step.Statement.SQL)
				return err
			}

			var failErr error
			if step.Statement.HelperRunsAfterSQL {
				if err := runSQL(); err != nil {
					failErr = fmt.Errorf("executing statement: %w", err)
				} else if err := runHelper(); err != nil {
					failErr = fmt.Errorf("executing data migration helper: %w", err)
				}
			} else {
				if err := runHelper(); err != nil {
					failErr = fmt.Errorf("executing data migration helper: %w", err)
				} else if err := runSQL(); err != nil {
					failErr = fmt.Errorf("executing statement: %w", err)
				}
			}

			if failErr != nil {
				stepResult.Failed = true
				stepResult.Error = failErr
				if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
					return fmt.Errorf("rolling back savepoint %s after step failure: %w", sp, rbErr)
				}
				result.Results = append(result.Results, stepResult)
				if firstFailure == nil {
					firstFailure = fmt.Errorf("executing step %d (%s): %w", i, step.Statement.Description, failErr)
				}
				continue
			}

			stepResult.Executed = true
			result.Results = append(result.Results, stepResult)

			if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
				return fmt.Errorf("releasing savepoint %s: %w", sp, err)
			}
		}
		return nil
	})
	if err == nil {
		err = firstFailure
	}

	return result, err
}
