// SPDX-License-Identifier: Apache-2.0

// Package planner turns a schemadiff.Change list into an ordered,
// annotated migration plan and applies it step by step, following a
// coordinator/action pattern with an optional single data-migration
// helper statement for data-migrating steps.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/evoludigit/pggit/pkg/catalog"
	"github.com/evoludigit/pggit/pkg/schemadiff"
)

// DdlStatement is a single executable statement produced by the planner.
// The planner never hands callers a raw string outside this type, so
// every statement is traceable back to the Change that produced it.
type DdlStatement struct {
	SQL                 string
	Change              schemadiff.Change
	Destructive         bool
	RequiresSavepoint   bool
	DurationHintMs      int64
	Risk                string // LOW | MEDIUM | HIGH
	Description         string
	DataMigrationHelper string // non-empty when a helper statement must run alongside this one
	HelperRunsAfterSQL  bool   // helper runs after SQL instead of before it
}

// Step is one planned unit of work: the DDL statement itself plus an
// optional data migration helper, ordered before or after the
// statement per DdlStatement.HelperRunsAfterSQL.
type Step struct {
	Statement DdlStatement
}

// Plan is the ordered, annotated sequence of steps to bring a table
// from its old shape to its new shape.
type Plan struct {
	TableName string
	Steps     []Step
}

// phaseRank orders change kinds within a single table's plan, per the
// sequence: DROP_CONSTRAINT -> DROP_INDEX -> DROP_TABLE -> ADD_TABLE ->
// ADD_INDEX -> ADD_COLUMN -> ALTER_COLUMN_DEFAULT -> ADD_CONSTRAINT ->
// ALTER_COLUMN_NULL -> ALTER_COLUMN_TYPE -> RENAME_COLUMN ->
// RENAME_TABLE -> DROP_COLUMN.
var phaseRank = map[schemadiff.ChangeKind]int{
	schemadiff.ChangeDropConstraint:    0,
	schemadiff.ChangeDropIndex:         1,
	schemadiff.ChangeDropTable:         2,
	schemadiff.ChangeAddTable:          3,
	schemadiff.ChangeAddIndex:          4,
	schemadiff.ChangeAddColumn:         5,
	schemadiff.ChangeAlterColumnDflt: 6,
	schemadiff.ChangeAddConstraint:     7,
	schemadiff.ChangeAlterColumnNull:   8,
	schemadiff.ChangeAlterColumnType:   9,
	schemadiff.ChangeRenameColumn:      10,
	schemadiff.ChangeRenameTable:       11,
	schemadiff.ChangeDropColumn:        12,
	schemadiff.ChangeNoChange:          99,
}

// OrderChanges sorts a flat Change list into the execution order
// planner.Plan expects: destructive drops (constraints, indexes,
// tables) first, then additive creates, then the remaining ALTERs in
// dependency-safe order, with drop-column last.
func OrderChanges(changes []schemadiff.Change) []schemadiff.Change {
	ordered := make([]schemadiff.Change, len(changes))
	copy(ordered, changes)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, rj := phaseRank[ordered[i].Kind], phaseRank[ordered[j].Kind]
		if ri != rj {
			return ri < rj
		}
		return ordered[i].ObjectPath < ordered[j].ObjectPath
	})
	return ordered
}

// BuildPlan generates the annotated DDL plan for one table's fine-grained
// changes. old/new may be nil for ADD_TABLE/DROP_TABLE changes.
func BuildPlan(tableName string, changes []schemadiff.Change, old, newTable *catalog.Table) *Plan {
	plan := &Plan{TableName: tableName}
	for _, c := range OrderChanges(changes) {
		stmt := buildStatement(tableName, c, old, newTable)
		plan.Steps = append(plan.Steps, Step{Statement: stmt})
	}
	return plan
}

func buildStatement(tableName string, c schemadiff.Change, old, newTable *catalog.Table) DdlStatement {
	stmt := DdlStatement{
		Change:            c,
		Destructive:       c.Destructive,
		RequiresSavepoint: true,
		Description:       describeChange(c),
	}

	switch c.Kind {
	case schemadiff.ChangeAddTable:
		stmt.SQL = createTableSQL(tableName, newTable)
		stmt.DurationHintMs = 50
		stmt.Risk = "LOW"
	case schemadiff.ChangeDropTable:
		stmt.SQL = fmt.Sprintf("DROP TABLE IF EXISTS %s", pq.QuoteIdentifier(tableName))
		stmt.DurationHintMs = 50
		stmt.Risk = "HIGH"
	case schemadiff.ChangeAddColumn:
		col := columnFrom(newTable, columnName(c.ObjectPath))
		stmt.SQL, stmt.DataMigrationHelper = addColumnSQL(tableName, col)
		stmt.HelperRunsAfterSQL = stmt.DataMigrationHelper != ""
		stmt.DurationHintMs = 50
		stmt.Risk = riskFor(c.Destructive)
	case schemadiff.ChangeDropColumn:
		stmt.SQL = fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", pq.QuoteIdentifier(tableName), pq.QuoteIdentifier(columnName(c.ObjectPath)))
		stmt.DurationHintMs = 50
		stmt.Risk = "HIGH"
	case schemadiff.ChangeAlterColumnType:
		col := columnFrom(newTable, columnName(c.ObjectPath))
		stmt.SQL, stmt.DataMigrationHelper = alterColumnTypeSQL(tableName, col, c.Destructive)
		stmt.DurationHintMs = 500
		stmt.Risk = riskFor(c.Destructive)
	case schemadiff.ChangeAlterColumnNull:
		col := columnFrom(newTable, columnName(c.ObjectPath))
		stmt.SQL, stmt.DataMigrationHelper = alterColumnNullSQL(tableName, col)
		stmt.DurationHintMs = 300
		stmt.Risk = riskFor(c.Destructive)
	case schemadiff.ChangeAlterColumnDflt:
		col := columnFrom(newTable, columnName(c.ObjectPath))
		stmt.SQL = alterColumnDefaultSQL(tableName, col)
		stmt.DurationHintMs = 20
		stmt.Risk = "LOW"
	case schemadiff.ChangeAddConstraint:
		stmt.SQL = addConstraintSQL(tableName, newTable, constraintName(c.ObjectPath))
		stmt.DurationHintMs = 300
		stmt.Risk = riskFor(c.Destructive)
	case schemadiff.ChangeDropConstraint:
		stmt.SQL = fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", pq.QuoteIdentifier(tableName), pq.QuoteIdentifier(constraintName(c.ObjectPath)))
		stmt.DurationHintMs = 20
		stmt.Risk = "MEDIUM"
	case schemadiff.ChangeAddIndex:
		stmt.SQL = fmt.Sprintf("-- pending: emit CREATE INDEX CONCURRENTLY %s from committed tree", pq.QuoteIdentifier(indexName(c.ObjectPath)))
		stmt.DurationHintMs = 1000
		stmt.Risk = "LOW"
	case schemadiff.ChangeDropIndex:
		stmt.SQL = fmt.Sprintf("DROP INDEX CONCURRENTLY IF EXISTS %s", pq.QuoteIdentifier(indexName(c.ObjectPath)))
		stmt.DurationHintMs = 1000
		stmt.Risk = "LOW"
	case schemadiff.ChangeRenameTable:
		stmt.SQL = fmt.Sprintf("ALTER TABLE %s RENAME TO %s", pq.QuoteIdentifier(tableName), pq.QuoteIdentifier(c.Detail))
		stmt.DurationHintMs = 20
		stmt.Risk = "MEDIUM"
	case schemadiff.ChangeRenameColumn:
		stmt.SQL = fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", pq.QuoteIdentifier(tableName), pq.QuoteIdentifier(columnName(c.ObjectPath)), pq.QuoteIdentifier(c.Detail))
		stmt.DurationHintMs = 20
		stmt.Risk = "MEDIUM"
	default:
		stmt.SQL = ""
		stmt.Risk = "LOW"
	}

	return stmt
}

func riskFor(destructive bool) string {
	if destructive {
		return "HIGH"
	}
	return "MEDIUM"
}

func describeChange(c schemadiff.Change) string {
	return fmt.Sprintf("%s on %s", c.Kind, c.ObjectPath)
}

func columnName(objectPath string) string {
	idx := strings.LastIndex(objectPath, ".")
	if idx < 0 {
		return objectPath
	}
	return objectPath[idx+1:]
}

func constraintName(objectPath string) string { return columnName(objectPath) }
func indexName(objectPath string) string      { return columnName(objectPath) }

func columnFrom(table *catalog.Table, name string) *catalog.Column {
	if table == nil || table.Columns == nil {
		return &catalog.Column{Name: name}
	}
	if col, ok := table.Columns[name]; ok {
		return col
	}
	return &catalog.Column{Name: name}
}

// addColumnSQL emits ALTER TABLE ADD COLUMN. A NOT NULL column added
// without a default gets the column added nullable first; the helper
// (run after the ADD COLUMN, since it references the new column by
// name) backfills existing rows and then tightens NOT NULL.
func addColumnSQL(tableName string, col *catalog.Column) (ddl, helper string) {
	colSQL := quoteColumnDef(col, true)
	ddl = fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", pq.QuoteIdentifier(tableName), colSQL)
	if !col.Nullable && col.Default == nil {
		helper = fmt.Sprintf(
			"UPDATE %s SET %s = DEFAULT WHERE %s IS NULL; ALTER TABLE %s ALTER COLUMN %s SET NOT NULL",
			pq.QuoteIdentifier(tableName), pq.QuoteIdentifier(col.Name), pq.QuoteIdentifier(col.Name),
			pq.QuoteIdentifier(tableName), pq.QuoteIdentifier(col.Name))
	}
	return ddl, helper
}

// quoteColumnDef renders a column definition; forceNullable relaxes a
// NOT NULL column to nullable so it can be added without locking on
// existing rows (the temp-default pattern above re-tightens it).
func quoteColumnDef(col *catalog.Column, forceNullable bool) string {
	var b strings.Builder
	b.WriteString(pq.QuoteIdentifier(col.Name))
	b.WriteString(" ")
	b.WriteString(col.Type)
	if col.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(*col.Default)
	}
	if !col.Nullable && !forceNullable {
		b.WriteString(" NOT NULL")
	}
	return b.String()
}

// createTableSQL emits CREATE TABLE for a table being added wholesale,
// one column per newTable.Columns entry in name order, the same
// quoteColumnDef rendering ADD_COLUMN already uses.
func createTableSQL(tableName string, newTable *catalog.Table) string {
	if newTable == nil || len(newTable.Columns) == 0 {
		return fmt.Sprintf("CREATE TABLE %s ()", pq.QuoteIdentifier(tableName))
	}

	names := make([]string, 0, len(newTable.Columns))
	for n := range newTable.Columns {
		names = append(names, n)
	}
	sort.Strings(names)

	defs := make([]string, 0, len(names)+1)
	for _, n := range names {
		defs = append(defs, quoteColumnDef(newTable.Columns[n], false))
	}
	if len(newTable.PrimaryKey) > 0 {
		pkCols := append([]string(nil), newTable.PrimaryKey...)
		sort.Strings(pkCols)
		defs = append(defs, "PRIMARY KEY ("+quoteIdentifierList(pkCols)+")")
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", pq.QuoteIdentifier(tableName), strings.Join(defs, ", "))
}

// addConstraintSQL emits ALTER TABLE ... ADD CONSTRAINT for one named
// constraint, looked up by name across newTable's check, unique and
// foreign-key constraint sets (a table's constraint names are unique
// across all three kinds, so exactly one of these lookups hits).
func addConstraintSQL(tableName string, newTable *catalog.Table, name string) string {
	quotedTable := pq.QuoteIdentifier(tableName)
	quotedName := pq.QuoteIdentifier(name)

	if newTable == nil {
		return fmt.Sprintf("-- cannot emit ADD CONSTRAINT %s: no committed table descriptor available", quotedName)
	}

	if cc, ok := newTable.CheckConstraints[name]; ok {
		return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s CHECK (%s)", quotedTable, quotedName, cc.Definition)
	}
	if uc, ok := newTable.UniqueConstraints[name]; ok {
		return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s UNIQUE (%s)", quotedTable, quotedName, quoteIdentifierList(uc.Columns))
	}
	if fk, ok := newTable.ForeignKeys[name]; ok {
		sql := fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			quotedTable, quotedName, quoteIdentifierList(fk.Columns), fk.ReferencedTable, quoteIdentifierList(fk.ReferencedColumns))
		if fk.OnDelete != "" && fk.OnDelete != "NO ACTION" {
			sql += " ON DELETE " + fk.OnDelete
		}
		return sql
	}

	return fmt.Sprintf("-- cannot emit ADD CONSTRAINT %s: not found among %s's check/unique/foreign-key constraints", quotedName, quotedTable)
}

func quoteIdentifierList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pq.QuoteIdentifier(n)
	}
	return strings.Join(quoted, ", ")
}

// alterColumnTypeSQL emits ALTER COLUMN ... TYPE with a USING cast to
// the new type in the statement itself, for every type change. A
// destructive (incompatible) change also gets a helper, but that helper
// is only a SQL comment naming the cast to verify; it runs no UPDATE
// and converts no data. A compatible widening gets no helper.
func alterColumnTypeSQL(tableName string, col *catalog.Column, destructive bool) (ddl, helper string) {
	ddl = fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
		pq.QuoteIdentifier(tableName), pq.QuoteIdentifier(col.Name), col.Type,
		pq.QuoteIdentifier(col.Name), col.Type)
	if destructive {
		helper = fmt.Sprintf("-- verify %s values are castable to %s before running this step", col.Name, col.Type)
	}
	return ddl, helper
}

// alterColumnNullSQL emits SET/DROP NOT NULL. Adding NOT NULL first
// backfills any existing NULLs from the column default so the
// constraint can be applied without failing on pre-existing rows.
func alterColumnNullSQL(tableName string, col *catalog.Column) (ddl, helper string) {
	if col.Nullable {
		ddl = fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", pq.QuoteIdentifier(tableName), pq.QuoteIdentifier(col.Name))
		return ddl, ""
	}
	ddl = fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", pq.QuoteIdentifier(tableName), pq.QuoteIdentifier(col.Name))
	if col.Default != nil {
		helper = fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL",
			pq.QuoteIdentifier(tableName), pq.QuoteIdentifier(col.Name), *col.Default, pq.QuoteIdentifier(col.Name))
	}
	return ddl, helper
}

func alterColumnDefaultSQL(tableName string, col *catalog.Column) string {
	if col.Default == nil {
		return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", pq.QuoteIdentifier(tableName), pq.QuoteIdentifier(col.Name))
	}
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", pq.QuoteIdentifier(tableName), pq.QuoteIdentifier(col.Name), *col.Default)
}
