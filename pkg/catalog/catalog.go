// SPDX-License-Identifier: Apache-2.0

// Package catalog introspects a live Postgres schema and produces the
// descriptors pkg/canon hashes into blobs and pkg/depgraph wires into
// edges. It reads pg_catalog directly from Go rather than through a
// bundled PL/pgSQL function, so that full object-kind coverage (views,
// materialized views, functions, procedures, triggers, sequences, types,
// partitions) doesn't require maintaining a second copy of the
// introspection logic inside the database itself.
package catalog

import "context"

// ObjectRef identifies one schema object for dependency and diff purposes.
type ObjectRef struct {
	Schema string
	Name   string
	Kind   string // matches objects.ObjectType
}

func (r ObjectRef) Key() string { return r.Schema + "." + r.Name }

// Table describes one introspected table, extended with OIDs for the
// additional object kinds pggit tracks.
type Table struct {
	OID     string
	Schema  string
	Name    string
	Comment string

	Columns            map[string]*Column
	Indexes            map[string]*Index
	PrimaryKey         []string
	ForeignKeys        map[string]*ForeignKey
	CheckConstraints   map[string]*CheckConstraint
	UniqueConstraints  map[string]*UniqueConstraint
	ExcludeConstraints map[string]*ExcludeConstraint

	// Inherits lists the immediate parent tables of this table, when it
	// participates in table inheritance (pg_inherits).
	Inherits []string

	// Partition, when non-nil, describes this table's position in a
	// partitioning hierarchy.
	Partition *PartitionInfo
}

// Column describes one introspected table column.
type Column struct {
	Name         string
	Type         string
	Default      *string
	Nullable     bool
	Unique       bool
	Comment      string
	EnumValues   []string
	PostgresType string
}

// Index describes one introspected index.
type Index struct {
	Name       string
	Unique     bool
	Exclusion  bool
	Columns    []string
	Predicate  *string
	Method     string
	Definition string
}

// ForeignKey describes one introspected foreign key constraint.
type ForeignKey struct {
	Name              string
	Columns           []string
	ReferencedTable   string
	ReferencedColumns []string
	OnDelete          string
	OnUpdate          string
	MatchType         string
}

type CheckConstraint struct {
	Name       string
	Columns    []string
	Definition string
}

type UniqueConstraint struct {
	Name    string
	Columns []string
}

type ExcludeConstraint struct {
	Name       string
	Method     string
	Predicate  string
	Columns    []string
	Definition string
}

// PartitionInfo describes a table's place in a PARTITION BY hierarchy.
type PartitionInfo struct {
	Parent     string
	Strategy   string // RANGE, LIST, HASH
	Expression string
	Bound      string
}

// View describes a VIEW or MATERIALIZED_VIEW.
type View struct {
	Schema        string
	Name          string
	Definition    string
	Materialized  bool
	DependsOnRefs []ObjectRef
}

// Routine describes a FUNCTION or PROCEDURE.
type Routine struct {
	Schema      string
	Name        string
	IsProcedure bool
	ArgTypes    []string
	ReturnType  string
	Language    string
	Definition  string
}

// Trigger describes a TRIGGER object.
type Trigger struct {
	Schema       string
	Name         string
	Table        string
	FunctionName string
	Definition   string
	Timing       string // BEFORE, AFTER, INSTEAD OF
	Events       []string
}

// Sequence describes a SEQUENCE object.
type Sequence struct {
	Schema     string
	Name       string
	OwnedByRel string
	OwnedByCol string
	DataType   string
}

// TypeDef describes a user-defined TYPE (enum, composite, domain, range).
type TypeDef struct {
	Schema string
	Name   string
	Kind   string // enum, composite, domain, range
	Labels []string
}

// Schema is the full set of descriptors for one Postgres schema, keyed so
// pkg/depgraph and pkg/schemadiff can look objects up by name without a
// second pass over the catalog.
type Schema struct {
	Name string

	Tables     map[string]*Table
	Views      map[string]*View
	Routines   map[string]*Routine
	Triggers   map[string]*Trigger
	Sequences  map[string]*Sequence
	Types      map[string]*TypeDef
}

// Reader introspects a live Postgres schema. The Postgres-backed
// implementation lives in reader.go; FakeReader in fake.go lets
// pkg/depgraph and pkg/schemadiff unit tests avoid a live database.
type Reader interface {
	ReadSchema(ctx context.Context, schemaName string) (*Schema, error)
}
