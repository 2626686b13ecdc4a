// SPDX-License-Identifier: Apache-2.0

package planner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoludigit/pggit/pkg/catalog"
	"github.com/evoludigit/pggit/pkg/planner"
	"github.com/evoludigit/pggit/pkg/schemadiff"
)

func strPtr(s string) *string { return &s }

func TestOrderChanges_DropsBeforeCreatesBeforeAlters(t *testing.T) {
	changes := []schemadiff.Change{
		{Kind: schemadiff.ChangeAlterColumnType, ObjectPath: "public.t.n"},
		{Kind: schemadiff.ChangeDropConstraint, ObjectPath: "public.t.fk"},
		{Kind: schemadiff.ChangeAddColumn, ObjectPath: "public.t.age"},
		{Kind: schemadiff.ChangeDropColumn, ObjectPath: "public.t.legacy"},
	}

	ordered := planner.OrderChanges(changes)

	kinds := make([]schemadiff.ChangeKind, len(ordered))
	for i, c := range ordered {
		kinds[i] = c.Kind
	}
	assert.Equal(t, []schemadiff.ChangeKind{
		schemadiff.ChangeDropConstraint,
		schemadiff.ChangeAddColumn,
		schemadiff.ChangeAlterColumnType,
		schemadiff.ChangeDropColumn,
	}, kinds)
}

func TestBuildPlan_AddColumnWithoutDefaultUsesTempDefaultHelper(t *testing.T) {
	changes := []schemadiff.Change{
		{Kind: schemadiff.ChangeAddColumn, ObjectPath: "public.t.age", Destructive: true, RequiresDataMigration: true},
	}
	newTable := &catalog.Table{Name: "t", Columns: map[string]*catalog.Column{
		"age": {Name: "age", Type: "integer", Nullable: false},
	}}

	plan := planner.BuildPlan("t", changes, nil, newTable)

	require.Len(t, plan.Steps, 1)
	step := plan.Steps[0].Statement
	assert.Contains(t, step.SQL, "ADD COLUMN")
	assert.NotEmpty(t, step.DataMigrationHelper, "NOT NULL column added without a default needs a backfill helper")
	assert.Equal(t, "HIGH", step.Risk)
}

func TestBuildPlan_AddColumnWithDefaultHasNoHelper(t *testing.T) {
	changes := []schemadiff.Change{
		{Kind: schemadiff.ChangeAddColumn, ObjectPath: "public.t.age", Destructive: false},
	}
	newTable := &catalog.Table{Name: "t", Columns: map[string]*catalog.Column{
		"age": {Name: "age", Type: "integer", Nullable: false, Default: strPtr("0")},
	}}

	plan := planner.BuildPlan("t", changes, nil, newTable)

	require.Len(t, plan.Steps, 1)
	assert.Empty(t, plan.Steps[0].Statement.DataMigrationHelper)
}

func TestBuildPlan_DropTableIsDestructiveHighRisk(t *testing.T) {
	changes := []schemadiff.Change{{Kind: schemadiff.ChangeDropTable, ObjectPath: "public.gone", Destructive: true}}

	plan := planner.BuildPlan("gone", changes, &catalog.Table{Name: "gone"}, nil)

	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "HIGH", plan.Steps[0].Statement.Risk)
	assert.Contains(t, plan.Steps[0].Statement.SQL, "DROP TABLE")
}

func TestBuildPlan_AddTableEmitsCreateTableFromCommittedColumns(t *testing.T) {
	changes := []schemadiff.Change{{Kind: schemadiff.ChangeAddTable, ObjectPath: "public.users"}}
	newTable := &catalog.Table{
		Name:       "users",
		PrimaryKey: []string{"id"},
		Columns: map[string]*catalog.Column{
			"id":   {Name: "id", Type: "integer", Nullable: false},
			"name": {Name: "name", Type: "text", Nullable: false},
		},
	}

	plan := planner.BuildPlan("users", changes, nil, newTable)

	require.Len(t, plan.Steps, 1)
	sql := plan.Steps[0].Statement.SQL
	assert.Contains(t, sql, `CREATE TABLE "users"`)
	assert.Contains(t, sql, `"id" integer NOT NULL`)
	assert.Contains(t, sql, `"name" text NOT NULL`)
	assert.Contains(t, sql, `PRIMARY KEY ("id")`)
}

func TestBuildPlan_AddConstraintEmitsAddConstraintFromCommittedTable(t *testing.T) {
	changes := []schemadiff.Change{{Kind: schemadiff.ChangeAddConstraint, ObjectPath: "public.orders.orders_total_check"}}
	newTable := &catalog.Table{
		Name: "orders",
		CheckConstraints: map[string]*catalog.CheckConstraint{
			"orders_total_check": {Name: "orders_total_check", Definition: "total >= 0"},
		},
	}

	plan := planner.BuildPlan("orders", changes, nil, newTable)

	require.Len(t, plan.Steps, 1)
	sql := plan.Steps[0].Statement.SQL
	assert.Contains(t, sql, `ADD CONSTRAINT "orders_total_check" CHECK (total >= 0)`)
}

func TestBuildPlan_AlterColumnNullAddsBackfillWhenDefaultPresent(t *testing.T) {
	changes := []schemadiff.Change{{Kind: schemadiff.ChangeAlterColumnNull, ObjectPath: "public.t.n", Destructive: true}}
	newTable := &catalog.Table{Name: "t", Columns: map[string]*catalog.Column{
		"n": {Name: "n", Type: "integer", Nullable: false, Default: strPtr("0")},
	}}

	plan := planner.BuildPlan("t", changes, nil, newTable)

	require.Len(t, plan.Steps, 1)
	assert.Contains(t, plan.Steps[0].Statement.SQL, "SET NOT NULL")
	assert.Contains(t, plan.Steps[0].Statement.DataMigrationHelper, "UPDATE")
}
