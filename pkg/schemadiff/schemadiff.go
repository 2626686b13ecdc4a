// SPDX-License-Identifier: Apache-2.0

// Package schemadiff implements a two-level diff engine: a coarse
// commit-vs-live comparison over blob hashes, and a fine
// column/constraint/index diff between two table descriptors. It also
// implements the three-way object classification the merge engine
// consumes.
package schemadiff

import (
	"sort"

	"github.com/evoludigit/pggit/pkg/catalog"
	"github.com/evoludigit/pggit/pkg/objects"
)

// ChangeKind is the closed set of change kinds a fine diff can produce.
type ChangeKind string

const (
	ChangeAddColumn        ChangeKind = "ADD_COLUMN"
	ChangeDropColumn       ChangeKind = "DROP_COLUMN"
	ChangeAlterColumnType  ChangeKind = "ALTER_COLUMN_TYPE"
	ChangeAlterColumnNull  ChangeKind = "ALTER_COLUMN_NULL"
	ChangeAlterColumnDflt  ChangeKind = "ALTER_COLUMN_DEFAULT"
	ChangeRenameColumn     ChangeKind = "RENAME_COLUMN"
	ChangeAddConstraint    ChangeKind = "ADD_CONSTRAINT"
	ChangeDropConstraint   ChangeKind = "DROP_CONSTRAINT"
	ChangeAddIndex         ChangeKind = "ADD_INDEX"
	ChangeDropIndex        ChangeKind = "DROP_INDEX"
	ChangeRenameTable      ChangeKind = "RENAME_TABLE"
	ChangeAddTable         ChangeKind = "ADD_TABLE"
	ChangeDropTable        ChangeKind = "DROP_TABLE"
	ChangeNoChange         ChangeKind = "NO_CHANGE"
)

// Change is one schema-diff record.
type Change struct {
	Kind                  ChangeKind
	ObjectPath            string
	Detail                string
	Destructive           bool
	RequiresDataMigration bool
	EstimatedDurationHint string
}

// CoarseKind is the ADD/MODIFY/DELETE classification produced by the
// coarse, hash-level comparison pass.
type CoarseKind string

const (
	CoarseAdd    CoarseKind = "ADD"
	CoarseModify CoarseKind = "MODIFY"
	CoarseDelete CoarseKind = "DELETE"
)

// CoarseChange is one row of the coarse diff.
type CoarseChange struct {
	Path    string
	Kind    CoarseKind
	OldHash objects.ID
	NewHash objects.ID
}

// CoarseDiff compares a commit's tree against the live catalog's blob
// hashes, emitting ADD/MODIFY/DELETE rows. liveHash
// maps object path -> computed blob hash for every object currently in
// the live catalog (the caller computes these via pkg/canon, reusing
// component hashes where available to skip rehashing unchanged tables).
func CoarseDiff(committedTree *objects.Tree, liveHash map[string]objects.ID) []CoarseChange {
	paths := make(map[string]bool)
	committedHash := make(map[string]objects.ID)
	if committedTree != nil {
		for _, e := range committedTree.Entries {
			paths[e.Path] = true
			committedHash[e.Path] = e.BlobID
		}
	}
	for p := range liveHash {
		paths[p] = true
	}

	sortedPaths := make([]string, 0, len(paths))
	for p := range paths {
		sortedPaths = append(sortedPaths, p)
	}
	sort.Strings(sortedPaths)

	var out []CoarseChange
	for _, p := range sortedPaths {
		oldHash, hadOld := committedHash[p]
		newHash, hasNew := liveHash[p]

		switch {
		case !hadOld && hasNew:
			out = append(out, CoarseChange{Path: p, Kind: CoarseAdd, NewHash: newHash})
		case hadOld && !hasNew:
			out = append(out, CoarseChange{Path: p, Kind: CoarseDelete, OldHash: oldHash})
		case oldHash != newHash:
			out = append(out, CoarseChange{Path: p, Kind: CoarseModify, OldHash: oldHash, NewHash: newHash})
		}
	}
	return out
}

// FineDiff compares two table descriptors column-by-column,
// constraint-by-constraint, and index-by-index.
// old may be nil (table being added) and new may be nil (table being
// dropped).
func FineDiff(tablePath string, old, new *catalog.Table) []Change {
	if old == nil && new == nil {
		return nil
	}
	if old == nil {
		return []Change{{Kind: ChangeAddTable, ObjectPath: tablePath, Destructive: false}}
	}
	if new == nil {
		return []Change{{Kind: ChangeDropTable, ObjectPath: tablePath, Destructive: true, EstimatedDurationHint: "fast (metadata only)"}}
	}

	var changes []Change
	changes = append(changes, diffColumns(tablePath, old, new)...)
	changes = append(changes, diffConstraints(tablePath, old, new)...)
	changes = append(changes, diffIndexes(tablePath, old, new)...)

	if len(changes) == 0 {
		return []Change{{Kind: ChangeNoChange, ObjectPath: tablePath}}
	}
	return changes
}

func diffColumns(tablePath string, old, new *catalog.Table) []Change {
	var changes []Change

	oldNames := sortedColumnNames(old.Columns)
	newNames := sortedColumnNames(new.Columns)

	newSet := toSet(newNames)
	oldSet := toSet(oldNames)

	for _, name := range oldNames {
		if !newSet[name] {
			changes = append(changes, Change{
				Kind: ChangeDropColumn, ObjectPath: tablePath + "." + name, Destructive: true,
			})
		}
	}

	for _, name := range newNames {
		oc, existed := old.Columns[name]
		nc := new.Columns[name]
		if !oldSet[name] {
			destructive := !nc.Nullable && nc.Default == nil
			changes = append(changes, Change{
				Kind: ChangeAddColumn, ObjectPath: tablePath + "." + name,
				Destructive: destructive, RequiresDataMigration: destructive,
			})
			continue
		}
		if !existed {
			continue
		}

		if oc.Type != nc.Type {
			compatible := typesCompatible(oc.Type, nc.Type)
			changes = append(changes, Change{
				Kind: ChangeAlterColumnType, ObjectPath: tablePath + "." + name,
				Destructive: !compatible, RequiresDataMigration: !compatible,
			})
		}

		if oc.Nullable != nc.Nullable {
			addingNotNull := oc.Nullable && !nc.Nullable
			changes = append(changes, Change{
				Kind: ChangeAlterColumnNull, ObjectPath: tablePath + "." + name,
				Destructive: addingNotNull, RequiresDataMigration: addingNotNull,
			})
		}

		if !stringPtrEqual(oc.Default, nc.Default) {
			changes = append(changes, Change{
				Kind: ChangeAlterColumnDflt, ObjectPath: tablePath + "." + name,
			})
		}
	}

	return changes
}

func diffConstraints(tablePath string, old, new *catalog.Table) []Change {
	var changes []Change

	oldNames := map[string]bool{}
	for n := range old.CheckConstraints {
		oldNames[n] = true
	}
	for n := range old.UniqueConstraints {
		oldNames[n] = true
	}
	for n := range old.ForeignKeys {
		oldNames[n] = true
	}

	newNames := map[string]bool{}
	for n := range new.CheckConstraints {
		newNames[n] = true
	}
	for n := range new.UniqueConstraints {
		newNames[n] = true
	}
	for n := range new.ForeignKeys {
		newNames[n] = true
	}

	for n := range oldNames {
		if !newNames[n] {
			changes = append(changes, Change{Kind: ChangeDropConstraint, ObjectPath: tablePath + "." + n})
		}
	}
	for n := range newNames {
		if !oldNames[n] {
			_, isCheck := new.CheckConstraints[n]
			changes = append(changes, Change{
				Kind: ChangeAddConstraint, ObjectPath: tablePath + "." + n,
				// CHECK constraints require validation against existing
				// rows: "ADD_CONSTRAINT of type CHECK
				// requires validation".
				RequiresDataMigration: isCheck,
			})
		}
	}
	// A constraint kept under the same name can still have changed
	// definition (a CHECK's condition, a UNIQUE/FOREIGN KEY's column
	// list, a FK's referenced table). Postgres has no ALTER CONSTRAINT
	// for rewriting one in place, so a definition change becomes a
	// drop-and-readd pair, ordered by phaseRank like any other
	// drop/add.
	for n := range oldNames {
		if !newNames[n] || constraintUnchanged(old, new, n) {
			continue
		}
		_, isCheck := new.CheckConstraints[n]
		changes = append(changes,
			Change{Kind: ChangeDropConstraint, ObjectPath: tablePath + "." + n},
			Change{Kind: ChangeAddConstraint, ObjectPath: tablePath + "." + n, RequiresDataMigration: isCheck},
		)
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].ObjectPath < changes[j].ObjectPath })
	return changes
}

// constraintUnchanged reports whether the constraint named n has the same
// definition in old and new. Only called for names present in both.
func constraintUnchanged(old, new *catalog.Table, n string) bool {
	if oc, ok := old.CheckConstraints[n]; ok {
		nc, ok := new.CheckConstraints[n]
		return ok && oc.Definition == nc.Definition && stringsEqual(oc.Columns, nc.Columns)
	}
	if ou, ok := old.UniqueConstraints[n]; ok {
		nu, ok := new.UniqueConstraints[n]
		return ok && stringsEqual(ou.Columns, nu.Columns)
	}
	if of, ok := old.ForeignKeys[n]; ok {
		nf, ok := new.ForeignKeys[n]
		return ok && of.ReferencedTable == nf.ReferencedTable && of.OnDelete == nf.OnDelete &&
			stringsEqual(of.Columns, nf.Columns) && stringsEqual(of.ReferencedColumns, nf.ReferencedColumns)
	}
	return true
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func diffIndexes(tablePath string, old, new *catalog.Table) []Change {
	var changes []Change

	for n := range old.Indexes {
		if _, ok := new.Indexes[n]; !ok {
			changes = append(changes, Change{Kind: ChangeDropIndex, ObjectPath: tablePath + "." + n})
		}
	}
	for n := range new.Indexes {
		if _, ok := old.Indexes[n]; !ok {
			changes = append(changes, Change{Kind: ChangeAddIndex, ObjectPath: tablePath + "." + n})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].ObjectPath < changes[j].ObjectPath })
	return changes
}

// typesCompatible implements the type-compatibility matrix: widening
// within the integer family, widening within the string family, or
// staying within the same timestamp family is compatible; everything
// else is not.
func typesCompatible(oldType, newType string) bool {
	if oldType == newType {
		return true
	}

	integerWidths := map[string]int{"smallint": 1, "integer": 2, "bigint": 3}
	if ow, ok := integerWidths[oldType]; ok {
		if nw, ok := integerWidths[newType]; ok {
			return nw >= ow
		}
	}

	stringFamily := map[string]bool{"character varying": true, "varchar": true, "text": true}
	if stringFamily[oldType] && stringFamily[newType] {
		// text is the widest; varchar/character varying without an
		// explicit narrower length is treated as compatible in both
		// directions when both sides are already in the string family.
		return true
	}

	timestampFamily := map[string]bool{
		"timestamp without time zone": true,
		"timestamp with time zone":    true,
		"date":                        true,
	}
	if timestampFamily[oldType] && timestampFamily[newType] {
		return true
	}

	return false
}

func sortedColumnNames(cols map[string]*catalog.Column) []string {
	names := make([]string, 0, len(cols))
	for n := range cols {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func stringPtrEqual(a, b *string) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return *a == *b
}

// Classification is the three-way classification consumed by the merge
// engine.
type Classification string

const (
	ClassNoChange              Classification = "no_change"
	ClassTakeOurs              Classification = "take_ours"
	ClassTakeTheirs            Classification = "take_theirs"
	ClassBothSame              Classification = "both_same"
	ClassConflict              Classification = "conflict"
	ClassDeleteModifyConflict  Classification = "delete_modify_conflict"
	ClassModifyDeleteConflict  Classification = "modify_delete_conflict"
	ClassAddOurs               Classification = "add_ours"
	ClassAddTheirs             Classification = "add_theirs"
	ClassBothDeleted           Classification = "both_deleted"
)

// ClassifyThreeWay classifies one path given base/ours/theirs blob
// hashes, any of which may be "" to mean "absent".
func ClassifyThreeWay(base, ours, theirs objects.ID) Classification {
	baseAbsent := base == ""
	oursAbsent := ours == ""
	theirsAbsent := theirs == ""

	switch {
	case baseAbsent && oursAbsent && theirsAbsent:
		return ClassNoChange
	case baseAbsent && !oursAbsent && theirsAbsent:
		return ClassAddOurs
	case baseAbsent && oursAbsent && !theirsAbsent:
		return ClassAddTheirs
	case baseAbsent && !oursAbsent && !theirsAbsent:
		if ours == theirs {
			return ClassBothSame
		}
		return ClassConflict
	case !baseAbsent && oursAbsent && theirsAbsent:
		return ClassBothDeleted
	case !baseAbsent && oursAbsent && !theirsAbsent:
		if base == theirs {
			return ClassTakeOurs // ours deleted, theirs unchanged: deletion wins
		}
		return ClassDeleteModifyConflict
	case !baseAbsent && !oursAbsent && theirsAbsent:
		if base == ours {
			return ClassTakeTheirs // theirs deleted, ours unchanged: deletion wins
		}
		return ClassModifyDeleteConflict
	default: // all three present
		switch {
		case ours == theirs:
			return ClassBothSame
		case base == ours:
			return ClassTakeTheirs
		case base == theirs:
			return ClassTakeOurs
		default:
			return ClassConflict
		}
	}
}
