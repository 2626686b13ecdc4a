// SPDX-License-Identifier: Apache-2.0

package planner_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoludigit/pggit/internal/testutils"
	"github.com/evoludigit/pggit/pkg/db"
	"github.com/evoludigit/pggit/pkg/planner"
	"github.com/evoludigit/pggit/pkg/schemadiff"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func TestApplier_AppliesAddColumnStep(t *testing.T) {
	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		_, err := conn.ExecContext(ctx, "CREATE TABLE widgets (id integer PRIMARY KEY)")
		require.NoError(t, err)

		rdb := &db.RDB{DB: conn}
		plan := &planner.Plan{
			TableName: "widgets",
			Steps: []planner.Step{
				{Statement: planner.DdlStatement{
					SQL:    `ALTER TABLE "widgets" ADD COLUMN "label" text`,
					Change: schemadiff.Change{Kind: schemadiff.ChangeAddColumn, ObjectPath: "public.widgets.label"},
				}},
			},
		}

		applier := planner.NewApplier(rdb)
		result, err := applier.Apply(ctx, plan)
		require.NoError(t, err)
		require.Len(t, result.Results, 1)
		assert.True(t, result.Results[0].Executed)
		assert.False(t, result.Results[0].Failed)

		var colCount int
		row := conn.QueryRowContext(ctx, `SELECT count(*) FROM information_schema.columns WHERE table_name = 'widgets' AND column_name = 'label'`)
		require.NoError(t, row.Scan(&colCount))
		assert.Equal(t, 1, colCount)
	})
}

func TestApplier_FailedStepRollsBackToSavepoint(t *testing.T) {
	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		_, err := conn.ExecContext(ctx, "CREATE TABLE widgets (id integer PRIMARY KEY)")
		require.NoError(t, err)

		rdb := &db.RDB{DB: conn}
		plan := &planner.Plan{
			TableName: "widgets",
			Steps: []planner.Step{
				{Statement: planner.DdlStatement{
					SQL:    `ALTER TABLE "widgets" ADD COLUMN "bogus" no_such_type`,
					Change: schemadiff.Change{Kind: schemadiff.ChangeAddColumn, ObjectPath: "public.widgets.bogus"},
				}},
			},
		}

		applier := planner.NewApplier(rdb)
		result, err := applier.Apply(ctx, plan)
		require.Error(t, err)
		require.Len(t, result.Results, 1)
		assert.True(t, result.Results[0].Failed)
	})
}

func TestApplier_HelperRunsAfterSQLWhenColumnDoesNotExistYet(t *testing.T) {
	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		_, err := conn.ExecContext(ctx, "CREATE TABLE widgets (id integer PRIMARY KEY)")
		require.NoError(t, err)
		_, err = conn.ExecContext(ctx, "INSERT INTO widgets (id) VALUES (1), (2)")
		require.NoError(t, err)

		rdb := &db.RDB{DB: conn}
		plan := &planner.Plan{
			TableName: "widgets",
			Steps: []planner.Step{
				{Statement: planner.DdlStatement{
					SQL:                 `ALTER TABLE "widgets" ADD COLUMN "label" text`,
					DataMigrationHelper: `UPDATE "widgets" SET "label" = 'x' WHERE "label" IS NULL; ALTER TABLE "widgets" ALTER COLUMN "label" SET NOT NULL`,
					HelperRunsAfterSQL:  true,
					Change:              schemadiff.Change{Kind: schemadiff.ChangeAddColumn, ObjectPath: "public.widgets.label"},
				}},
			},
		}

		applier := planner.NewApplier(rdb)
		result, err := applier.Apply(ctx, plan)
		require.NoError(t, err)
		require.Len(t, result.Results, 1)
		assert.True(t, result.Results[0].Executed)
		assert.False(t, result.Results[0].Failed)

		var nullable string
		row := conn.QueryRowContext(ctx, `SELECT is_nullable FROM information_schema.columns WHERE table_name = 'widgets' AND column_name = 'label'`)
		require.NoError(t, row.Scan(&nullable))
		assert.Equal(t, "NO", nullable)
	})
}

func TestApplier_FailingHelperFailsTheStep(t *testing.T) {
	testutils.WithConnectionToContainer(t, func(conn *sql.DB, _ string) {
		ctx := context.Background()
		_, err := conn.ExecContext(ctx, "CREATE TABLE widgets (id integer PRIMARY KEY)")
		require.NoError(t, err)

		rdb := &db.RDB{DB: conn}
		plan := &planner.Plan{
			TableName: "widgets",
			Steps: []planner.Step{
				{Statement: planner.DdlStatement{
					SQL:                 `ALTER TABLE "widgets" ADD COLUMN "label" text`,
					DataMigrationHelper: `UPDATE "widgets" SET "nonexistent_column" = 'x'`,
					HelperRunsAfterSQL:  true,
					Change:              schemadiff.Change{Kind: schemadiff.ChangeAddColumn, ObjectPath: "public.widgets.label"},
				}},
			},
		}

		applier := planner.NewApplier(rdb)
		result, err := applier.Apply(ctx, plan)
		require.Error(t, err)
		require.Len(t, result.Results, 1)
		assert.True(t, result.Results[0].Failed)

		var colCount int
		row := conn.QueryRowContext(ctx, `SELECT count(*) FROM information_schema.columns WHERE table_name = 'widgets' AND column_name = 'label'`)
		require.NoError(t, row.Scan(&colCount))
		assert.Zero(t, colCount, "the ADD COLUMN must have rolled back along with the failing helper")
	})
}
