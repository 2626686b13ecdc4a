// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/evoludigit/pggit/pkg/db"
)

// PgReader is the Postgres-backed Reader. It issues one query per object
// kind against pg_catalog/information_schema rather than delegating to a
// stored PL/pgSQL function, so new object kinds only require a new query
// here, not a migration of database-resident introspection code.
type PgReader struct {
	Conn db.DB
}

// NewPgReader wraps a db.DB connection for catalog introspection.
func NewPgReader(conn db.DB) *PgReader {
	return &PgReader{Conn: conn}
}

// ReadSchema introspects every object kind pggit tracks for one Postgres
// schema.
func (r *PgReader) ReadSchema(ctx context.Context, schemaName string) (*Schema, error) {
	sc := &Schema{
		Name:      schemaName,
		Tables:    make(map[string]*Table),
		Views:     make(map[string]*View),
		Routines:  make(map[string]*Routine),
		Triggers:  make(map[string]*Trigger),
		Sequences: make(map[string]*Sequence),
		Types:     make(map[string]*TypeDef),
	}

	if err := r.readTables(ctx, schemaName, sc); err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}
	if err := r.readColumns(ctx, schemaName, sc); err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	if err := r.readIndexes(ctx, schemaName, sc); err != nil {
		return nil, fmt.Errorf("read indexes: %w", err)
	}
	if err := r.readConstraints(ctx, schemaName, sc); err != nil {
		return nil, fmt.Errorf("read constraints: %w", err)
	}
	if err := r.readInheritance(ctx, schemaName, sc); err != nil {
		return nil, fmt.Errorf("read inheritance: %w", err)
	}
	if err := r.readViews(ctx, schemaName, sc); err != nil {
		return nil, fmt.Errorf("read views: %w", err)
	}
	if err := r.readRoutines(ctx, schemaName, sc); err != nil {
		return nil, fmt.Errorf("read routines: %w", err)
	}
	if err := r.readTriggers(ctx, schemaName, sc); err != nil {
		return nil, fmt.Errorf("read triggers: %w", err)
	}
	if err := r.readSequences(ctx, schemaName, sc); err != nil {
		return nil, fmt.Errorf("read sequences: %w", err)
	}
	if err := r.readTypes(ctx, schemaName, sc); err != nil {
		return nil, fmt.Errorf("read types: %w", err)
	}

	return sc, nil
}

func (r *PgReader) readTables(ctx context.Context, schemaName string, sc *Schema) error {
	rows, err := r.Conn.QueryContext(ctx, `
		SELECT c.oid::text, c.relname, obj_description(c.oid, 'pg_class')
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind IN ('r', 'p')
	`, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var oid, name string
		var comment sql.NullString
		if err := rows.Scan(&oid, &name, &comment); err != nil {
			return err
		}
		sc.Tables[name] = &Table{
			OID:                oid,
			Schema:             schemaName,
			Name:               name,
			Comment:            comment.String,
			Columns:            make(map[string]*Column),
			Indexes:            make(map[string]*Index),
			ForeignKeys:        make(map[string]*ForeignKey),
			CheckConstraints:   make(map[string]*CheckConstraint),
			UniqueConstraints:  make(map[string]*UniqueConstraint),
			ExcludeConstraints: make(map[string]*ExcludeConstraint),
		}
	}
	return rows.Err()
}

func (r *PgReader) readColumns(ctx context.Context, schemaName string, sc *Schema) error {
	rows, err := r.Conn.QueryContext(ctx, `
		SELECT c.relname, a.attname, format_type(a.atttypid, a.atttypmod),
		       a.attnotnull, pg_get_expr(ad.adbin, ad.adrelid), col_description(c.oid, a.attnum)
		FROM pg_catalog.pg_attribute a
		JOIN pg_catalog.pg_class c ON c.oid = a.attrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_catalog.pg_attrdef ad ON ad.adrelid = c.oid AND ad.adnum = a.attnum
		WHERE n.nspname = $1 AND c.relkind IN ('r', 'p') AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY c.relname, a.attnum
	`, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, colName, colType string
		var notNull bool
		var def, comment sql.NullString
		if err := rows.Scan(&tableName, &colName, &colType, &notNull, &def, &comment); err != nil {
			return err
		}
		t, ok := sc.Tables[tableName]
		if !ok {
			continue
		}
		col := &Column{
			Name:     colName,
			Type:     colType,
			Nullable: !notNull,
			Comment:  comment.String,
		}
		if def.Valid {
			d := def.String
			col.Default = &d
		}
		t.Columns[colName] = col
	}
	return rows.Err()
}

func (r *PgReader) readIndexes(ctx context.Context, schemaName string, sc *Schema) error {
	rows, err := r.Conn.QueryContext(ctx, `
		SELECT ct.relname, ci.relname, ix.indisunique, ix.indisexclusion,
		       pg_get_indexdef(ix.indexrelid), am.amname
		FROM pg_catalog.pg_index ix
		JOIN pg_catalog.pg_class ct ON ct.oid = ix.indrelid
		JOIN pg_catalog.pg_class ci ON ci.oid = ix.indexrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = ct.relnamespace
		JOIN pg_catalog.pg_am am ON am.oid = ci.relam
		WHERE n.nspname = $1
	`, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, indexName, def, method string
		var unique, exclusion bool
		if err := rows.Scan(&tableName, &indexName, &unique, &exclusion, &def, &method); err != nil {
			return err
		}
		t, ok := sc.Tables[tableName]
		if !ok {
			continue
		}
		t.Indexes[indexName] = &Index{
			Name:       indexName,
			Unique:     unique,
			Exclusion:  exclusion,
			Method:     method,
			Definition: def,
		}
	}
	return rows.Err()
}

func (r *PgReader) readConstraints(ctx context.Context, schemaName string, sc *Schema) error {
	rows, err := r.Conn.QueryContext(ctx, `
		SELECT t.relname, con.conname, con.contype,
		       pg_get_constraintdef(con.oid),
		       coalesce(array(SELECT attname FROM pg_attribute
		                      WHERE attrelid = con.conrelid AND attnum = ANY(con.conkey)), '{}')
		FROM pg_catalog.pg_constraint con
		JOIN pg_catalog.pg_class t ON t.oid = con.conrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = t.relnamespace
		WHERE n.nspname = $1
	`, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tableName, conName, conType, def string
		var columns []string
		if err := rows.Scan(&tableName, &conName, &conType, &def, pq.Array(&columns)); err != nil {
			return err
		}
		t, ok := sc.Tables[tableName]
		if !ok {
			continue
		}
		switch conType {
		case "p":
			t.PrimaryKey = columns
		case "c":
			t.CheckConstraints[conName] = &CheckConstraint{Name: conName, Columns: columns, Definition: def}
		case "u":
			t.UniqueConstraints[conName] = &UniqueConstraint{Name: conName, Columns: columns}
		case "x":
			t.ExcludeConstraints[conName] = &ExcludeConstraint{Name: conName, Columns: columns, Definition: def}
		case "f":
			t.ForeignKeys[conName] = &ForeignKey{Name: conName, Columns: columns, ReferencedTable: def}
		}
	}
	return rows.Err()
}

func (r *PgReader) readInheritance(ctx context.Context, schemaName string, sc *Schema) error {
	rows, err := r.Conn.QueryContext(ctx, `
		SELECT c.relname, p.relname
		FROM pg_catalog.pg_inherits i
		JOIN pg_catalog.pg_class c ON c.oid = i.inhrelid
		JOIN pg_catalog.pg_class p ON p.oid = i.inhparent
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
	`, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var child, parent string
		if err := rows.Scan(&child, &parent); err != nil {
			return err
		}
		if t, ok := sc.Tables[child]; ok {
			t.Inherits = append(t.Inherits, parent)
		}
	}
	return rows.Err()
}

func (r *PgReader) readViews(ctx context.Context, schemaName string, sc *Schema) error {
	rows, err := r.Conn.QueryContext(ctx, `
		SELECT c.relname, pg_get_viewdef(c.oid, true), c.relkind = 'm'
		FROM pg_catalog.pg_class c
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relkind IN ('v', 'm')
	`, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, def string
		var materialized bool
		if err := rows.Scan(&name, &def, &materialized); err != nil {
			return err
		}
		sc.Views[name] = &View{
			Schema:       schemaName,
			Name:         name,
			Definition:   def,
			Materialized: materialized,
		}
	}
	return rows.Err()
}

func (r *PgReader) readRoutines(ctx context.Context, schemaName string, sc *Schema) error {
	rows, err := r.Conn.QueryContext(ctx, `
		SELECT p.proname, p.prokind = 'p', pg_get_function_arguments(p.oid),
		       pg_get_function_result(p.oid), l.lanname, pg_get_functiondef(p.oid)
		FROM pg_catalog.pg_proc p
		JOIN pg_catalog.pg_namespace n ON n.oid = p.pronamespace
		JOIN pg_catalog.pg_language l ON l.oid = p.prolang
		WHERE n.nspname = $1
	`, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, args, ret, lang, def string
		var isProcedure bool
		if err := rows.Scan(&name, &isProcedure, &args, &ret, &lang, &def); err != nil {
			return err
		}
		sc.Routines[name] = &Routine{
			Schema:      schemaName,
			Name:        name,
			IsProcedure: isProcedure,
			ReturnType:  ret,
			Language:    lang,
			Definition:  def,
		}
	}
	return rows.Err()
}

func (r *PgReader) readTriggers(ctx context.Context, schemaName string, sc *Schema) error {
	rows, err := r.Conn.QueryContext(ctx, `
		SELECT tg.tgname, c.relname, p.proname, pg_get_triggerdef(tg.oid)
		FROM pg_catalog.pg_trigger tg
		JOIN pg_catalog.pg_class c ON c.oid = tg.tgrelid
		JOIN pg_catalog.pg_proc p ON p.oid = tg.tgfoid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND NOT tg.tgisinternal
	`, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, table, fn, def string
		if err := rows.Scan(&name, &table, &fn, &def); err != nil {
			return err
		}
		sc.Triggers[name] = &Trigger{
			Schema:       schemaName,
			Name:         name,
			Table:        table,
			FunctionName: fn,
			Definition:   def,
		}
	}
	return rows.Err()
}

func (r *PgReader) readSequences(ctx context.Context, schemaName string, sc *Schema) error {
	rows, err := r.Conn.QueryContext(ctx, `
		SELECT c.relname, format_type(s.seqtypid, NULL),
		       coalesce(owner_rel.relname, ''), coalesce(owner_col.attname, '')
		FROM pg_catalog.pg_sequence s
		JOIN pg_catalog.pg_class c ON c.oid = s.seqrelid
		JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_catalog.pg_depend d ON d.objid = c.oid AND d.deptype = 'a'
		LEFT JOIN pg_catalog.pg_class owner_rel ON owner_rel.oid = d.refobjid
		LEFT JOIN pg_catalog.pg_attribute owner_col ON owner_col.attrelid = d.refobjid AND owner_col.attnum = d.refobjsubid
		WHERE n.nspname = $1
	`, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name, dataType, ownedByRel, ownedByCol string
		if err := rows.Scan(&name, &dataType, &ownedByRel, &ownedByCol); err != nil {
			return err
		}
		sc.Sequences[name] = &Sequence{
			Schema:     schemaName,
			Name:       name,
			DataType:   dataType,
			OwnedByRel: ownedByRel,
			OwnedByCol: ownedByCol,
		}
	}
	return rows.Err()
}

func (r *PgReader) readTypes(ctx context.Context, schemaName string, sc *Schema) error {
	rows, err := r.Conn.QueryContext(ctx, `
		SELECT t.typname, t.typtype
		FROM pg_catalog.pg_type t
		JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = $1 AND t.typtype IN ('e', 'c', 'd', 'r')
		  AND NOT EXISTS (SELECT 1 FROM pg_catalog.pg_class c WHERE c.oid = t.typrelid AND c.relkind <> 'c')
	`, schemaName)
	if err != nil {
		return err
	}
	defer rows.Close()

	kindNames := map[string]string{"e": "enum", "c": "composite", "d": "domain", "r": "range"}

	for rows.Next() {
		var name, typtype string
		if err := rows.Scan(&name, &typtype); err != nil {
			return err
		}
		td := &TypeDef{Schema: schemaName, Name: name, Kind: kindNames[typtype]}

		if typtype == "e" {
			labels, err := r.readEnumLabels(ctx, schemaName, name)
			if err != nil {
				return err
			}
			td.Labels = labels
		}

		sc.Types[name] = td
	}
	return rows.Err()
}

func (r *PgReader) readEnumLabels(ctx context.Context, schemaName, typeName string) ([]string, error) {
	rows, err := r.Conn.QueryContext(ctx, `
		SELECT e.enumlabel
		FROM pg_catalog.pg_enum e
		JOIN pg_catalog.pg_type t ON t.oid = e.enumtypid
		JOIN pg_catalog.pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = $1 AND t.typname = $2
		ORDER BY e.enumsortorder
	`, schemaName, typeName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}
