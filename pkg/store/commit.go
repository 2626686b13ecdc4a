// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/evoludigit/pggit/pkg/catalog"
	"github.com/evoludigit/pggit/pkg/objects"
	"github.com/evoludigit/pggit/pkg/schemadiff"
)

// StagedChange is one row of stage_changes()'s coarse change set.
type StagedChange struct {
	ObjectName string
	ChangeType schemadiff.CoarseKind
	OldHash    objects.ID
	NewHash    objects.ID
}

// StageChanges diffs the live catalog in workingSchema against HEAD's
// current commit's tree and returns the coarse change set.
func (s *Store) StageChanges(ctx context.Context) ([]StagedChange, error) {
	head, err := s.Refs.GetHead(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading HEAD: %w", err)
	}

	var tree *objects.Tree
	if head.CurrentCommitID != objects.NullID && head.CurrentCommitID != "" {
		commit, err := s.Objects.GetCommit(ctx, head.CurrentCommitID)
		if err != nil {
			return nil, fmt.Errorf("reading current commit: %w", err)
		}
		tree, err = s.Objects.GetTree(ctx, commit.TreeID)
		if err != nil {
			return nil, fmt.Errorf("reading current tree: %w", err)
		}
	} else {
		tree = &objects.Tree{}
	}

	liveHashes, err := s.liveBlobHashes(ctx)
	if err != nil {
		return nil, err
	}

	coarse := schemadiff.CoarseDiff(tree, liveHashes)
	out := make([]StagedChange, len(coarse))
	for i, c := range coarse {
		out[i] = StagedChange{ObjectName: c.Path, ChangeType: c.Kind, OldHash: c.OldHash, NewHash: c.NewHash}
	}
	return out, nil
}

// liveBlobHashes canonicalizes every table in the working schema and
// returns the path -> blob-hash map stage_changes/commit compare
// against the committed tree.
func (s *Store) liveBlobHashes(ctx context.Context) (map[string]objects.ID, error) {
	sc, err := s.Catalog.ReadSchema(ctx, s.workingSchema)
	if err != nil {
		return nil, fmt.Errorf("reading live schema: %w", err)
	}

	hashes := map[string]objects.ID{}
	for name, tbl := range sc.Tables {
		ddl := renderTableDDL(tbl)
		result, err := s.Canon.Canonicalize(objects.ObjectTable, name, ddl)
		if err != nil {
			return nil, fmt.Errorf("canonicalizing table %q: %w", name, err)
		}
		hashes[s.workingSchema+"."+name] = objects.HashBlob(objects.ObjectTable, result.CanonicalText)
	}
	return hashes, nil
}

// renderTableDDL produces a CREATE TABLE statement from a catalog
// descriptor, carrying every column's nullability/default and the
// table's check/unique/foreign-key constraints, so the canonical text
// pkg/canon hashes round-trips losslessly back through
// canon.ParseTable. A richer DDL event capture collaborator may instead
// supply the literal DDL text pggit received for an object; this
// fallback covers tables discovered purely via catalog introspection.
func renderTableDDL(tbl *catalog.Table) string {
	colNames := make([]string, 0, len(tbl.Columns))
	for _, c := range tbl.Columns {
		colNames = append(colNames, c.Name)
	}
	sort.Strings(colNames)

	pk := map[string]bool{}
	for _, name := range tbl.PrimaryKey {
		pk[name] = true
	}
	singleColumnPK := len(tbl.PrimaryKey) == 1

	var elts []string
	for _, name := range colNames {
		col := tbl.Columns[name]
		elt := name + " " + col.Type
		if col.Default != nil {
			elt += " DEFAULT " + *col.Default
		}
		if singleColumnPK && pk[name] {
			elt += " PRIMARY KEY"
		} else if !col.Nullable {
			elt += " NOT NULL"
		}
		if col.Unique {
			elt += " UNIQUE"
		}
		elts = append(elts, elt)
	}
	if len(tbl.PrimaryKey) > 1 {
		pkCols := append([]string(nil), tbl.PrimaryKey...)
		sort.Strings(pkCols)
		elts = append(elts, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pkCols, ", ")))
	}

	checkNames := make([]string, 0, len(tbl.CheckConstraints))
	for n := range tbl.CheckConstraints {
		checkNames = append(checkNames, n)
	}
	sort.Strings(checkNames)
	for _, n := range checkNames {
		cc := tbl.CheckConstraints[n]
		elts = append(elts, fmt.Sprintf("CONSTRAINT %s CHECK (%s)", n, cc.Definition))
	}

	uniqueNames := make([]string, 0, len(tbl.UniqueConstraints))
	for n := range tbl.UniqueConstraints {
		uniqueNames = append(uniqueNames, n)
	}
	sort.Strings(uniqueNames)
	for _, n := range uniqueNames {
		uc := tbl.UniqueConstraints[n]
		elts = append(elts, fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", n, strings.Join(uc.Columns, ", ")))
	}

	fkNames := make([]string, 0, len(tbl.ForeignKeys))
	for n := range tbl.ForeignKeys {
		fkNames = append(fkNames, n)
	}
	sort.Strings(fkNames)
	for _, n := range fkNames {
		fk := tbl.ForeignKeys[n]
		elt := fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			n, strings.Join(fk.Columns, ", "), fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ", "))
		if fk.OnDelete != "" && fk.OnDelete != "NO ACTION" {
			elt += " ON DELETE " + fk.OnDelete
		}
		elts = append(elts, elt)
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", tbl.Name, strings.Join(elts, ", "))
}

// Commit creates a new commit from the working schema's current state,
// updating the current branch ref and HEAD. Returns a zero ID with no
// error when nothing is staged. Runs under the current branch's
// operation lock, with structured logging and retry on a transient
// failure.
func (s *Store) Commit(ctx context.Context, message, author string, now time.Time) (objects.ID, error) {
	head, err := s.Refs.GetHead(ctx)
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}

	var commitID objects.ID
	err = s.Controller.Run(ctx, head.CurrentBranch, author, "commit", func(ctx context.Context) error {
		id, err := s.commitLocked(ctx, message, author, now)
		if err != nil {
			return err
		}
		commitID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return commitID, nil
}

func (s *Store) commitLocked(ctx context.Context, message, author string, now time.Time) (objects.ID, error) {
	staged, err := s.StageChanges(ctx)
	if err != nil {
		return "", err
	}
	if len(staged) == 0 {
		return "", nil
	}

	sc, err := s.Catalog.ReadSchema(ctx, s.workingSchema)
	if err != nil {
		return "", fmt.Errorf("reading live schema: %w", err)
	}

	blobs := make([]*objects.Blob, 0, len(sc.Tables))
	for name, tbl := range sc.Tables {
		ddl := renderTableDDL(tbl)
		result, err := s.Canon.Canonicalize(objects.ObjectTable, name, ddl)
		if err != nil {
			return "", fmt.Errorf("canonicalizing table %q: %w", name, err)
		}
		blob := objects.NewBlob(objects.ObjectTable, s.workingSchema, name, result.CanonicalText, nil, result.Components)
		if err := s.Objects.PutBlob(ctx, blob); err != nil {
			return "", fmt.Errorf("storing blob for %q: %w", name, err)
		}
		blobs = append(blobs, blob)
	}

	tree, err := objects.NewTree(blobs, nil)
	if err != nil {
		return "", fmt.Errorf("building tree: %w", err)
	}
	if err := s.Objects.PutTree(ctx, tree); err != nil {
		return "", fmt.Errorf("storing tree: %w", err)
	}

	head, err := s.Refs.GetHead(ctx)
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}

	var parents []objects.ID
	if head.CurrentCommitID != objects.NullID && head.CurrentCommitID != "" {
		parents = []objects.ID{head.CurrentCommitID}
	}

	commit := objects.NewCommit(tree.ID, parents, author, author, message, now, now, nil, nil)
	if _, err := s.Objects.PutCommit(ctx, commit); err != nil {
		return "", fmt.Errorf("storing commit: %w", err)
	}

	if err := s.Refs.AdvanceHead(ctx, commit.ID); err != nil {
		return "", fmt.Errorf("advancing HEAD: %w", err)
	}

	return commit.ID, nil
}

// Status is status()'s single-row result.
type Status struct {
	Branch        string
	StagedCount   int
	CurrentCommit objects.ID
	LastMessage   string
}

// Status reports the current branch, staged change count, current
// commit and last commit message.
func (s *Store) Status(ctx context.Context) (*Status, error) {
	head, err := s.Refs.GetHead(ctx)
	if err != nil {
		return nil, err
	}

	staged, err := s.StageChanges(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Branch:        head.CurrentBranch,
		StagedCount:   len(staged),
		CurrentCommit: head.CurrentCommitID,
	}

	if head.CurrentCommitID != objects.NullID && head.CurrentCommitID != "" {
		commit, err := s.Objects.GetCommit(ctx, head.CurrentCommitID)
		if err != nil {
			return nil, err
		}
		status.LastMessage = commit.Message
	}

	return status, nil
}

// LogEntry is one row of log(limit)'s result.
type LogEntry struct {
	ID        objects.ID
	Message   string
	Author    string
	Committer string
	CreatedAt time.Time
}

// Log walks ancestors of HEAD and returns up to limit commits, most
// recent first.
func (s *Store) Log(ctx context.Context, limit int) ([]LogEntry, error) {
	head, err := s.Refs.GetHead(ctx)
	if err != nil {
		return nil, err
	}
	if head.CurrentCommitID == objects.NullID || head.CurrentCommitID == "" {
		return nil, nil
	}

	entries, err := objects.WalkAncestors(ctx, s.Objects, head.CurrentCommitID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]LogEntry, 0, len(entries))
	for _, e := range entries {
		commit, err := s.Objects.GetCommit(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, LogEntry{
			ID:        commit.ID,
			Message:   commit.Message,
			Author:    commit.Author,
			Committer: commit.Committer,
			CreatedAt: commit.CommittedAt,
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}
