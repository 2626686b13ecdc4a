// SPDX-License-Identifier: Apache-2.0

// Package merge implements the three-way merge engine: fast-forward
// detection, per-path classification via pkg/schemadiff, and conflict
// resolution under auto/strict/ours/theirs strategies.
package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/evoludigit/pggit/pkg/canon"
	"github.com/evoludigit/pggit/pkg/catalog"
	"github.com/evoludigit/pggit/pkg/objects"
	"github.com/evoludigit/pggit/pkg/schemadiff"
)

// Strategy is the closed set of merge strategies.
type Strategy string

const (
	StrategyAuto   Strategy = "auto"
	StrategyStrict Strategy = "strict"
	StrategyOurs   Strategy = "ours"
	StrategyTheirs Strategy = "theirs"
)

// ErrAlreadyUpToDate is returned when source and target are the same
// commit.
var ErrAlreadyUpToDate = errors.New("already up to date")

// Conflict describes one unresolved path.
type Conflict struct {
	Path           string
	Classification schemadiff.Classification
	Base, Ours, Theirs objects.ID
}

// MergeConflicts is returned when strategy is strict or auto and
// conflicts remain.
type MergeConflicts struct {
	Conflicts []Conflict
}

func (e *MergeConflicts) Error() string {
	return fmt.Sprintf("%d unresolved merge conflicts", len(e.Conflicts))
}

// Resolution records a manual conflict resolution consulted on retry.
type Resolution struct {
	Path           string
	Kind           string // ours | theirs | manual
	ResolvedBlobID objects.ID
}

// Result is the outcome of a merge attempt.
type Result struct {
	// FastForward is true when no merge commit was needed; the target
	// ref simply advanced to source.
	FastForward bool
	// NoOp is true when target was already at or ahead of source.
	NoOp bool

	MergedTreeBlobs []objects.ID
	NewBlobs        []*objects.Blob
	Conflicts       []Conflict
}

// CommitGetter is the read surface merge needs to walk ancestry and
// fetch trees.
type CommitGetter = objects.CommitGetter

// TreeGetter fetches a tree by id.
type TreeGetter interface {
	GetTree(ctx context.Context, id objects.ID) (*objects.Tree, error)
}

// BlobStore is the blob read/write surface the auto strategy needs to
// inspect conflicting table definitions and store a synthesized merge
// result.
type BlobStore interface {
	GetBlob(ctx context.Context, id objects.ID) (*objects.Blob, error)
	PutBlob(ctx context.Context, b *objects.Blob) error
}

// Engine runs three-way merges.
type Engine struct {
	Commits CommitGetter
	Trees   TreeGetter
	Blobs   BlobStore
}

// New builds a merge Engine.
func New(commits CommitGetter, trees TreeGetter, blobs BlobStore) *Engine {
	return &Engine{Commits: commits, Trees: trees, Blobs: blobs}
}

// Merge runs the three-way merge algorithm for merging source into
// target.
func (e *Engine) Merge(ctx context.Context, source, target objects.ID, strategy Strategy, resolutions map[string]Resolution) (*Result, error) {
	if source == target {
		return &Result{NoOp: true}, ErrAlreadyUpToDate
	}

	base, err := objects.FindMergeBase(ctx, e.Commits, source, target)
	if err != nil {
		return nil, fmt.Errorf("find merge base: %w", err)
	}

	if base == target {
		return &Result{FastForward: true}, nil
	}
	if base == source {
		return &Result{NoOp: true}, nil
	}

	sourceCommit, err := e.Commits.GetCommit(ctx, source)
	if err != nil {
		return nil, err
	}
	targetCommit, err := e.Commits.GetCommit(ctx, target)
	if err != nil {
		return nil, err
	}
	baseCommit, err := e.Commits.GetCommit(ctx, base)
	if err != nil {
		return nil, err
	}

	sourceTree, err := e.Trees.GetTree(ctx, sourceCommit.TreeID)
	if err != nil {
		return nil, err
	}
	targetTree, err := e.Trees.GetTree(ctx, targetCommit.TreeID)
	if err != nil {
		return nil, err
	}
	baseTree, err := e.Trees.GetTree(ctx, baseCommit.TreeID)
	if err != nil {
		return nil, err
	}

	classified := classifyTrees(baseTree, targetTree, sourceTree)

	var conflicts []Conflict
	var mergedBlobs []objects.ID

	for _, c := range classified {
		if resolution, ok := resolutions[c.Path]; ok {
			switch resolution.Kind {
			case "ours":
				if c.Ours != "" {
					mergedBlobs = append(mergedBlobs, c.Ours)
				}
				continue
			case "theirs":
				if c.Theirs != "" {
					mergedBlobs = append(mergedBlobs, c.Theirs)
				}
				continue
			case "manual":
				if resolution.ResolvedBlobID != "" {
					mergedBlobs = append(mergedBlobs, resolution.ResolvedBlobID)
				}
				continue
			}
		}

		switch c.Classification {
		case schemadiff.ClassNoChange, schemadiff.ClassBothSame:
			if c.Ours != "" {
				mergedBlobs = append(mergedBlobs, c.Ours)
			}
		case schemadiff.ClassTakeOurs, schemadiff.ClassAddOurs:
			if c.Ours != "" {
				mergedBlobs = append(mergedBlobs, c.Ours)
			}
		case schemadiff.ClassTakeTheirs, schemadiff.ClassAddTheirs:
			if c.Theirs != "" {
				mergedBlobs = append(mergedBlobs, c.Theirs)
			}
		case schemadiff.ClassBothDeleted:
			// nothing to add
		default: // conflict, delete_modify_conflict, modify_delete_conflict
			switch strategy {
			case StrategyOurs:
				if c.Ours != "" {
					mergedBlobs = append(mergedBlobs, c.Ours)
				}
			case StrategyTheirs:
				if c.Theirs != "" {
					mergedBlobs = append(mergedBlobs, c.Theirs)
				}
			case StrategyAuto:
				mergedBlobID, resolved, mergeErr := e.tryMergeIndependentAddColumns(ctx, c)
				if mergeErr != nil {
					return nil, fmt.Errorf("auto-merging %q: %w", c.Path, mergeErr)
				}
				if resolved {
					mergedBlobs = append(mergedBlobs, mergedBlobID)
					continue
				}
				conflicts = append(conflicts, c)
			default: // strict
				conflicts = append(conflicts, c)
			}
		}
	}

	if len(conflicts) > 0 && (strategy == StrategyStrict || strategy == StrategyAuto) {
		sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })
		return &Result{Conflicts: conflicts}, &MergeConflicts{Conflicts: conflicts}
	}

	sort.Slice(mergedBlobs, func(i, j int) bool { return mergedBlobs[i] < mergedBlobs[j] })

	return &Result{MergedTreeBlobs: mergedBlobs}, nil
}

func classifyTrees(base, ours, theirs *objects.Tree) []Conflict {
	paths := map[string]bool{}
	baseBlobs := map[string]objects.ID{}
	oursBlobs := map[string]objects.ID{}
	theirsBlobs := map[string]objects.ID{}

	collect := func(t *objects.Tree, dst map[string]objects.ID) {
		if t == nil {
			return
		}
		for _, e := range t.Entries {
			paths[e.Path] = true
			dst[e.Path] = e.BlobID
		}
	}
	collect(base, baseBlobs)
	collect(ours, oursBlobs)
	collect(theirs, theirsBlobs)

	sortedPaths := make([]string, 0, len(paths))
	for p := range paths {
		sortedPaths = append(sortedPaths, p)
	}
	sort.Strings(sortedPaths)

	out := make([]Conflict, 0, len(sortedPaths))
	for _, p := range sortedPaths {
		b, o, th := baseBlobs[p], oursBlobs[p], theirsBlobs[p]
		class := schemadiff.ClassifyThreeWay(b, o, th)
		out = append(out, Conflict{Path: p, Classification: class, Base: b, Ours: o, Theirs: th})
	}
	return out
}

// tryMergeIndependentAddColumns implements the one auto-mergeable shape:
// both sides added disjoint sets of columns to the same base table and
// changed nothing else. On success it stores a synthesized blob
// carrying the union of both column sets and returns its id.
func (e *Engine) tryMergeIndependentAddColumns(ctx context.Context, c Conflict) (objects.ID, bool, error) {
	if e.Blobs == nil || c.Base == "" || c.Ours == "" || c.Theirs == "" {
		return "", false, nil
	}

	baseBlob, err := e.Blobs.GetBlob(ctx, c.Base)
	if err != nil || baseBlob.ObjectType != objects.ObjectTable {
		return "", false, nil
	}
	oursBlob, err := e.Blobs.GetBlob(ctx, c.Ours)
	if err != nil {
		return "", false, nil
	}
	theirsBlob, err := e.Blobs.GetBlob(ctx, c.Theirs)
	if err != nil {
		return "", false, nil
	}

	baseTable, err := canon.ParseTable(baseBlob.CanonicalDefinition)
	if err != nil {
		return "", false, nil
	}
	oursTable, err := canon.ParseTable(oursBlob.CanonicalDefinition)
	if err != nil {
		return "", false, nil
	}
	theirsTable, err := canon.ParseTable(theirsBlob.CanonicalDefinition)
	if err != nil {
		return "", false, nil
	}

	oursAdded, oursPure := addedColumnsOnly(baseTable, oursTable)
	theirsAdded, theirsPure := addedColumnsOnly(baseTable, theirsTable)
	if !oursPure || !theirsPure || len(oursAdded) == 0 || len(theirsAdded) == 0 {
		return "", false, nil
	}
	for name := range oursAdded {
		if _, clash := theirsAdded[name]; clash {
			return "", false, nil
		}
	}

	merged := &catalog.Table{
		Name:       baseTable.Name,
		Schema:     baseTable.Schema,
		PrimaryKey: baseTable.PrimaryKey,
		Columns:    map[string]*catalog.Column{},
	}
	for name, col := range baseTable.Columns {
		merged.Columns[name] = col
	}
	for name, col := range oursAdded {
		merged.Columns[name] = col
	}
	for name, col := range theirsAdded {
		merged.Columns[name] = col
	}

	ddl := renderAddColumnsMergeDDL(merged)
	result, err := canon.New().Canonicalize(objects.ObjectTable, merged.Name, ddl)
	if err != nil {
		return "", false, fmt.Errorf("canonicalizing auto-merged table %q: %w", merged.Name, err)
	}

	mergedBlob := objects.NewBlob(objects.ObjectTable, baseBlob.Schema, baseBlob.Name, result.CanonicalText, baseBlob.Dependencies, result.Components)
	if err := e.Blobs.PutBlob(ctx, mergedBlob); err != nil {
		return "", false, fmt.Errorf("storing auto-merged blob for %q: %w", merged.Name, err)
	}
	return mergedBlob.ID, true, nil
}

// addedColumnsOnly returns the columns present in next but absent from
// base, and false if next differs from base in any other way - a
// dropped, renamed or retyped column makes the change unsafe to
// auto-merge alongside an independent addition on the other side.
func addedColumnsOnly(base, next *catalog.Table) (map[string]*catalog.Column, bool) {
	added := map[string]*catalog.Column{}
	for name, col := range next.Columns {
		if _, existed := base.Columns[name]; !existed {
			added[name] = col
		}
	}
	for name, baseCol := range base.Columns {
		nextCol, stillPresent := next.Columns[name]
		if !stillPresent {
			return nil, false
		}
		if nextCol.Type != baseCol.Type || nextCol.Nullable != baseCol.Nullable {
			return nil, false
		}
	}
	return added, true
}

// renderAddColumnsMergeDDL renders the minimal CREATE TABLE text needed
// to re-canonicalize a table synthesized by tryMergeIndependentAddColumns.
func renderAddColumnsMergeDDL(t *catalog.Table) string {
	names := make([]string, 0, len(t.Columns))
	for n := range t.Columns {
		names = append(names, n)
	}
	sort.Strings(names)

	defs := make([]string, 0, len(names))
	for _, n := range names {
		col := t.Columns[n]
		def := n + " " + col.Type
		if col.Default != nil {
			def += " DEFAULT " + *col.Default
		}
		if !col.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", t.Name, strings.Join(defs, ", "))
}

// NewMergeCommit builds the merge commit object: both parents,
// merge_base_id set, metadata naming the source branch.
func NewMergeCommit(mergedTreeID objects.ID, sourceCommit, targetCommit, mergeBase objects.ID, author, committer, sourceBranch, message string, now time.Time) *objects.Commit {
	if message == "" {
		message = fmt.Sprintf("merge %s", sourceBranch)
	}
	metadata := map[string]string{"source_branch": sourceBranch}
	return objects.NewCommit(mergedTreeID, []objects.ID{targetCommit, sourceCommit}, author, committer, message, now, now, &mergeBase, metadata)
}
