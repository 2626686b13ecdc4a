// SPDX-License-Identifier: Apache-2.0

// Package canon canonicalizes raw Postgres DDL into the normalized text
// pkg/objects hashes into blob ids: lowercase keywords,
// collapsed whitespace, normalized type aliases, sorted columns and
// constraints, and casts stripped from default expressions. It uses
// pg_query_go, a real Postgres SQL parser, to turn raw SQL into a
// canonical, re-parseable form rather than hand-rolling normalization
// with regular expressions.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	pgq "github.com/xataio/pg_query_go/v6"

	"github.com/evoludigit/pggit/pkg/catalog"
	"github.com/evoludigit/pggit/pkg/objects"
)

// DefaultMaxCanonicalBytes is the size budget this canonicalizer
// enforces: inputs longer than this are rejected rather than hashed.
const DefaultMaxCanonicalBytes = 100 * 1024

// SlowCanonicalizationWarning is the duration past which
// canonicalization logs a warning instead of failing outright.
const SlowCanonicalizationWarning = 1 * time.Second

// CanonicalizationError is returned when the normalizer cannot parse a
// definition.
type CanonicalizationError struct {
	ObjectType objects.ObjectType
	Name       string
	Err        error
}

func (e *CanonicalizationError) Error() string {
	return fmt.Sprintf("canonicalize %s %q: %v", e.ObjectType, e.Name, e.Err)
}

func (e *CanonicalizationError) Unwrap() error { return e.Err }

// DdlTooLarge is returned when canonical text exceeds the configured size
// budget.
type DdlTooLarge struct {
	Name    string
	Size    int
	MaxSize int
}

func (e *DdlTooLarge) Error() string {
	return fmt.Sprintf("canonical definition of %q is %d bytes, exceeds max %d", e.Name, e.Size, e.MaxSize)
}

// Canonicalizer produces canonical text and component hashes for
// first-class object kinds. Non-first-class kinds are
// passed through opaquely by callers; Canonicalizer never sees them.
type Canonicalizer struct {
	MaxCanonicalBytes int

	// WorkingSchema, when set, is stripped from schema-qualified
	// identifiers inside VIEW/FUNCTION/PROCEDURE/MATERIALIZED_VIEW
	// bodies, so a view defined against "public.users" hashes the same
	// whether or not the caller spelled out the schema explicitly.
	WorkingSchema string
}

// New returns a Canonicalizer configured with the spec's default size
// budget. Use the MaxCanonicalBytes field directly to override it.
func New() *Canonicalizer {
	return &Canonicalizer{MaxCanonicalBytes: DefaultMaxCanonicalBytes}
}

// Result is the output of canonicalizing one object definition.
type Result struct {
	CanonicalText string
	Components    *objects.ComponentHashes
	// Elapsed is exposed so callers can log a warning when
	// canonicalization exceeds SlowCanonicalizationWarning.
	Elapsed time.Duration
}

// Canonicalize normalizes raw DDL for a first-class object kind. Callers
// are responsible for checking objectType.IsFirstClass() first; unknown
// kinds are a programmer error here, not a runtime one.
func (c *Canonicalizer) Canonicalize(objectType objects.ObjectType, name, raw string) (*Result, error) {
	start := nowFunc()

	tree, err := pgq.Parse(raw)
	if err != nil {
		return nil, &CanonicalizationError{ObjectType: objectType, Name: name, Err: err}
	}

	if objectType == objects.ObjectTable && len(tree.GetStmts()) == 1 {
		if createStmt := tree.GetStmts()[0].GetStmt().GetCreateStmt(); createStmt != nil {
			normalizeCreateStmt(createStmt)
		}
	}

	normalized, err := pgq.Deparse(tree)
	if err != nil {
		return nil, &CanonicalizationError{ObjectType: objectType, Name: name, Err: err}
	}

	canonicalText := normalizeText(normalized)
	canonicalText = normalizeTypeAliases(canonicalText)
	if objectType != objects.ObjectTable {
		canonicalText = stripSchemaQualifier(canonicalText, c.WorkingSchema)
	}

	maxSize := c.MaxCanonicalBytes
	if maxSize <= 0 {
		maxSize = DefaultMaxCanonicalBytes
	}
	if len(canonicalText) > maxSize {
		return nil, &DdlTooLarge{Name: name, Size: len(canonicalText), MaxSize: maxSize}
	}

	result := &Result{
		CanonicalText: canonicalText,
		Elapsed:       nowFunc().Sub(start),
	}

	if objectType == objects.ObjectTable {
		result.Components = componentHashes(canonicalText)
	}

	return result, nil
}

// normalizeText applies whitespace normalization on top of what the
// deparser already produces (the deparser already emits lowercase
// keywords and a single canonical spacing; this pass only collapses any
// residual whitespace runs so hand-formatted input and
// machine-formatted input hash identically).
func normalizeText(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// typeAliases maps a deparsed type spelling to the single canonical
// spelling this package hashes, so two tables that differ only in which
// alias they used for the same type hash identically.
var typeAliases = []struct{ from, to string }{
	{"character varying", "varchar"},
	{"timestamp without time zone", "timestamp"},
	{"timestamp with time zone", "timestamptz"},
	{"double precision", "float8"},
}

func normalizeTypeAliases(s string) string {
	for _, a := range typeAliases {
		s = strings.ReplaceAll(s, a.from, a.to)
	}
	return s
}

// stripSchemaQualifier removes "schema." prefixes from canonical text, so
// a view/function body that spells out the working schema explicitly
// hashes the same as one that relies on search_path.
func stripSchemaQualifier(s, schema string) string {
	if schema == "" {
		return s
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(schema) + `\.`)
	return re.ReplaceAllString(s, "")
}

// normalizeCreateStmt rewrites a parsed CREATE TABLE statement in place
// before it is deparsed back to text: default expressions lose any
// top-level "::type" cast, and table-level constraints (PRIMARY
// KEY/UNIQUE/CHECK/FOREIGN KEY) are reordered by (kind, name) so a table
// whose constraints were merely declared in a different order hashes the
// same as one that wasn't.
func normalizeCreateStmt(stmt *pgq.CreateStmt) {
	var cols, consts []*pgq.Node
	for _, elt := range stmt.GetTableElts() {
		if cd := elt.GetColumnDef(); cd != nil {
			stripColumnDefaultCast(cd)
			cols = append(cols, elt)
			continue
		}
		if con := elt.GetConstraint(); con != nil {
			consts = append(consts, elt)
			continue
		}
		cols = append(cols, elt)
	}

	sort.SliceStable(consts, func(i, j int) bool {
		ri, ni := constraintSortKey(consts[i].GetConstraint())
		rj, nj := constraintSortKey(consts[j].GetConstraint())
		if ri != rj {
			return ri < rj
		}
		return ni < nj
	})

	stmt.TableElts = append(cols, consts...)
}

// constraintRank orders table-level constraint kinds within the sorted
// block: PRIMARY KEY, then UNIQUE, then CHECK, then FOREIGN KEY.
var constraintRank = map[pgq.ConstrType]int{
	pgq.ConstrType_CONSTR_PRIMARY: 0,
	pgq.ConstrType_CONSTR_UNIQUE:  1,
	pgq.ConstrType_CONSTR_CHECK:   2,
	pgq.ConstrType_CONSTR_FOREIGN: 3,
}

func constraintSortKey(c *pgq.Constraint) (int, string) {
	return constraintRank[c.GetContype()], c.GetConname()
}

func stripColumnDefaultCast(col *pgq.ColumnDef) {
	for _, cn := range col.GetConstraints() {
		constraint := cn.GetConstraint()
		if constraint == nil || constraint.GetContype() != pgq.ConstrType_CONSTR_DEFAULT {
			continue
		}
		if tc := constraint.GetRawExpr().GetTypeCast(); tc != nil {
			constraint.RawExpr = tc.GetArg()
		}
	}
}

// ParseTable parses a canonical CREATE TABLE definition (as produced by
// pkg/store's DDL renderer and this package's Canonicalize) back into a
// structured catalog.Table. This is the inverse of canonicalization:
// materialization needs a *catalog.Table to hand schemadiff.FineDiff and
// planner.BuildPlan, not just an opaque blob of text.
func ParseTable(canonicalText string) (*catalog.Table, error) {
	tree, err := pgq.Parse(canonicalText)
	if err != nil {
		return nil, fmt.Errorf("parsing canonical table definition: %w", err)
	}
	stmts := tree.GetStmts()
	if len(stmts) != 1 {
		return nil, fmt.Errorf("expected exactly one statement in canonical table definition, got %d", len(stmts))
	}
	createStmt := stmts[0].GetStmt().GetCreateStmt()
	if createStmt == nil {
		return nil, fmt.Errorf("expected a CREATE TABLE statement")
	}

	table := &catalog.Table{
		Name:               createStmt.GetRelation().GetRelname(),
		Schema:             createStmt.GetRelation().GetSchemaname(),
		Columns:            map[string]*catalog.Column{},
		Indexes:            map[string]*catalog.Index{},
		ForeignKeys:        map[string]*catalog.ForeignKey{},
		CheckConstraints:   map[string]*catalog.CheckConstraint{},
		UniqueConstraints:  map[string]*catalog.UniqueConstraint{},
		ExcludeConstraints: map[string]*catalog.ExcludeConstraint{},
	}

	for _, elt := range createStmt.GetTableElts() {
		if cd := elt.GetColumnDef(); cd != nil {
			col, pk, err := parseColumnDef(cd)
			if err != nil {
				return nil, err
			}
			table.Columns[col.Name] = col
			if pk {
				table.PrimaryKey = append(table.PrimaryKey, col.Name)
			}
			continue
		}
		if con := elt.GetConstraint(); con != nil {
			if err := addTableConstraint(table, con); err != nil {
				return nil, err
			}
		}
	}

	return table, nil
}

func parseColumnDef(col *pgq.ColumnDef) (*catalog.Column, bool, error) {
	typeString, err := pgq.DeparseTypeName(col.GetTypeName())
	if err != nil {
		return nil, false, fmt.Errorf("deparsing type of column %q: %w", col.GetColname(), err)
	}

	c := &catalog.Column{Name: col.GetColname(), Type: typeString, Nullable: true}
	var pk bool

	for _, cn := range col.GetConstraints() {
		constraint := cn.GetConstraint()
		if constraint == nil {
			continue
		}
		switch constraint.GetContype() {
		case pgq.ConstrType_CONSTR_NOTNULL:
			c.Nullable = false
		case pgq.ConstrType_CONSTR_NULL:
			c.Nullable = true
		case pgq.ConstrType_CONSTR_PRIMARY:
			pk = true
			c.Nullable = false
		case pgq.ConstrType_CONSTR_UNIQUE:
			c.Unique = true
		case pgq.ConstrType_CONSTR_DEFAULT:
			expr, err := pgq.DeparseExpr(constraint.GetRawExpr())
			if err != nil {
				return nil, false, fmt.Errorf("deparsing default of column %q: %w", col.GetColname(), err)
			}
			c.Default = &expr
		}
	}

	return c, pk, nil
}

func addTableConstraint(table *catalog.Table, con *pgq.Constraint) error {
	name := con.GetConname()
	cols := stringListFromNodes(con.GetKeys())

	switch con.GetContype() {
	case pgq.ConstrType_CONSTR_PRIMARY:
		table.PrimaryKey = append(table.PrimaryKey, cols...)
	case pgq.ConstrType_CONSTR_UNIQUE:
		if name == "" {
			name = table.Name + "_" + strings.Join(cols, "_") + "_key"
		}
		table.UniqueConstraints[name] = &catalog.UniqueConstraint{Name: name, Columns: cols}
	case pgq.ConstrType_CONSTR_CHECK:
		expr, err := pgq.DeparseExpr(con.GetRawExpr())
		if err != nil {
			return fmt.Errorf("deparsing check constraint %q: %w", name, err)
		}
		if name == "" {
			name = table.Name + "_check"
		}
		table.CheckConstraints[name] = &catalog.CheckConstraint{Name: name, Columns: cols, Definition: expr}
	case pgq.ConstrType_CONSTR_FOREIGN:
		fkCols := stringListFromNodes(con.GetFkAttrs())
		refCols := stringListFromNodes(con.GetPkAttrs())
		refTable := con.GetPktable().GetRelname()
		if schema := con.GetPktable().GetSchemaname(); schema != "" {
			refTable = schema + "." + refTable
		}
		if name == "" {
			name = table.Name + "_" + strings.Join(fkCols, "_") + "_fkey"
		}
		table.ForeignKeys[name] = &catalog.ForeignKey{
			Name:              name,
			Columns:           fkCols,
			ReferencedTable:   refTable,
			ReferencedColumns: refCols,
			OnDelete:          fkActionName(con.GetFkDelAction()),
		}
	}
	return nil
}

func stringListFromNodes(nodes []*pgq.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if s := n.GetString_(); s != nil {
			out = append(out, s.GetSval())
		}
	}
	return out
}

// fkActionName translates pg_query's single-character FK action codes
// (see Postgres's FKCONSTR_ACTION_* constants) into SQL keywords.
func fkActionName(code string) string {
	switch code {
	case "r":
		return "RESTRICT"
	case "c":
		return "CASCADE"
	case "n":
		return "SET NULL"
	case "d":
		return "SET DEFAULT"
	default: // "a" (no action) and anything unrecognized
		return "NO ACTION"
	}
}

// componentHashes computes per-category hashes for TABLE blobs by
// reparsing canonicalText through ParseTable and hashing a distinct
// textual projection of each category, so a change confined to one
// category (e.g. a new CHECK constraint with no column change) only
// moves that category's hash. Table-level canonical text carries no
// index definitions (those come from pkg/catalog's live introspection,
// not from CREATE TABLE DDL), so IndexesHash reflects whatever index
// names ParseTable attached to the table, which today is always none;
// it is still hashed through its own salted section so it never
// collides with StructureHash/ConstraintsHash by construction.
func componentHashes(canonicalText string) *objects.ComponentHashes {
	table, err := ParseTable(canonicalText)
	if err != nil {
		return &objects.ComponentHashes{
			StructureHash:   hashSection("structure", canonicalText),
			ConstraintsHash: hashSection("constraints", canonicalText),
			IndexesHash:     hashSection("indexes", canonicalText),
		}
	}

	return &objects.ComponentHashes{
		StructureHash:   hashSection("structure", structureText(table)),
		ConstraintsHash: hashSection("constraints", constraintsText(table)),
		IndexesHash:     hashSection("indexes", indexesText(table)),
	}
}

func structureText(t *catalog.Table) string {
	names := make([]string, 0, len(t.Columns))
	for n := range t.Columns {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		c := t.Columns[n]
		b.WriteString(c.Name)
		b.WriteString(":")
		b.WriteString(c.Type)
		b.WriteString(":")
		if c.Nullable {
			b.WriteString("null")
		} else {
			b.WriteString("notnull")
		}
		if c.Default != nil {
			b.WriteString(":")
			b.WriteString(*c.Default)
		}
		b.WriteString("|")
	}

	pk := append([]string(nil), t.PrimaryKey...)
	sort.Strings(pk)
	b.WriteString("pk:")
	b.WriteString(strings.Join(pk, ","))
	return b.String()
}

func constraintsText(t *catalog.Table) string {
	var parts []string
	for name, cc := range t.CheckConstraints {
		parts = append(parts, "check:"+name+":"+cc.Definition)
	}
	for name, uc := range t.UniqueConstraints {
		parts = append(parts, "unique:"+name+":"+strings.Join(uc.Columns, ","))
	}
	for name, fk := range t.ForeignKeys {
		parts = append(parts, "fk:"+name+":"+strings.Join(fk.Columns, ",")+"->"+fk.ReferencedTable+":"+fk.OnDelete)
	}
	sort.Strings(parts)
	return strings.Join(parts, "|")
}

func indexesText(t *catalog.Table) string {
	names := make([]string, 0, len(t.Indexes))
	for n := range t.Indexes {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func hashSection(section, text string) string {
	h := sha256.New()
	h.Write([]byte(section))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// nowFunc is a seam for tests; production code always uses time.Now.
var nowFunc = time.Now
