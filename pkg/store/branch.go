// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"github.com/evoludigit/pggit/pkg/canon"
	"github.com/evoludigit/pggit/pkg/catalog"
	"github.com/evoludigit/pggit/pkg/depgraph"
	"github.com/evoludigit/pggit/pkg/objects"
	"github.com/evoludigit/pggit/pkg/planner"
	"github.com/evoludigit/pggit/pkg/refstore"
	"github.com/evoludigit/pggit/pkg/schemadiff"
)

// CreateBranch snapshots the source branch's current commit target and
// inserts a new branch ref, under name's own operation lock.
func (s *Store) CreateBranch(ctx context.Context, name, from, createdBy string) (*refstore.Ref, error) {
	var ref *refstore.Ref
	err := s.Controller.Run(ctx, name, createdBy, "create_branch", func(ctx context.Context) error {
		r, err := s.createBranchLocked(ctx, name, from, createdBy)
		if err != nil {
			return err
		}
		ref = r
		return nil
	})
	return ref, err
}

func (s *Store) createBranchLocked(ctx context.Context, name, from, createdBy string) (*refstore.Ref, error) {
	if from == "" {
		head, err := s.Refs.GetHead(ctx)
		if err != nil {
			return nil, err
		}
		from = head.CurrentBranch
	}
	return s.Refs.CreateBranch(ctx, name, from, createdBy)
}

// Checkout switches HEAD to the named branch (creating it from the
// current branch first when createNew is set) and materializes its
// commit's tree into the live working schema, under name's operation
// lock.
func (s *Store) Checkout(ctx context.Context, name string, createNew bool, createdBy string) (*refstore.Head, error) {
	var head *refstore.Head
	err := s.Controller.Run(ctx, name, createdBy, "checkout", func(ctx context.Context) error {
		if createNew {
			if _, err := s.createBranchLocked(ctx, name, "", createdBy); err != nil {
				return fmt.Errorf("creating branch %q: %w", name, err)
			}
		}

		h, err := s.Refs.Checkout(ctx, name)
		if err != nil {
			return fmt.Errorf("checking out %q: %w", name, err)
		}

		if err := s.materialize(ctx, h.CurrentCommitID); err != nil {
			return fmt.Errorf("materializing %q: %w", name, err)
		}
		head = h
		return nil
	})
	return head, err
}

// ApplyResult summarizes apply_tree_state()'s outcome.
type ApplyResult struct {
	ObjectsProcessed int
	DdlExecuted      int
	Failures         []string
}

// ApplyTreeState materializes treeID's objects into the live working
// schema, planning and applying the diff between the live catalog and
// the tree's tables, under the current branch's operation lock.
func (s *Store) ApplyTreeState(ctx context.Context, treeID objects.ID) (*ApplyResult, error) {
	head, err := s.Refs.GetHead(ctx)
	if err != nil {
		return nil, err
	}

	var result *ApplyResult
	err = s.Controller.Run(ctx, head.CurrentBranch, defaultLockedBy, "apply_tree_state", func(ctx context.Context) error {
		tree, err := s.Objects.GetTree(ctx, treeID)
		if err != nil {
			return err
		}

		if err := s.materializeTree(ctx, tree); err != nil {
			return err
		}

		result = &ApplyResult{ObjectsProcessed: len(tree.Entries)}
		return nil
	})
	return result, err
}

// materialize drives the planner/applier over the diff between the
// live working schema and commitID's tree, bringing the live schema to
// that tree's state. commitID may be objects.NullID, meaning "empty
// schema".
func (s *Store) materialize(ctx context.Context, commitID objects.ID) error {
	var tree *objects.Tree
	if commitID != objects.NullID && commitID != "" {
		commit, err := s.Objects.GetCommit(ctx, commitID)
		if err != nil {
			return fmt.Errorf("reading commit: %w", err)
		}
		t, err := s.Objects.GetTree(ctx, commit.TreeID)
		if err != nil {
			return fmt.Errorf("reading tree: %w", err)
		}
		tree = t
	} else {
		tree = &objects.Tree{}
	}
	return s.materializeTree(ctx, tree)
}

// materializeTree brings the live working schema to tree's state.
func (s *Store) materializeTree(ctx context.Context, tree *objects.Tree) error {
	liveHashes, err := s.liveBlobHashes(ctx)
	if err != nil {
		return err
	}

	// CoarseDiff treats its first argument as the baseline and its
	// second as the current state; to bring the live schema to match
	// the target commit's tree, the live schema is the baseline and the
	// target tree's blobs are the state live needs to reach.
	coarse := schemadiff.CoarseDiff(treeFromBlobHashes(liveHashes), blobHashesFromTree(tree))
	if len(coarse) == 0 {
		return nil
	}

	liveSchema, err := s.Catalog.ReadSchema(ctx, s.workingSchema)
	if err != nil {
		return fmt.Errorf("reading live schema: %w", err)
	}

	applier := planner.NewApplier(s.db)
	for _, change := range coarse {
		tableName := tableNameFromPath(change.Path)

		switch change.Kind {
		case schemadiff.CoarseDelete:
			// Live has this table but the target tree doesn't: drop it.
			plan := planner.BuildPlan(tableName, []schemadiff.Change{
				{Kind: schemadiff.ChangeDropTable, ObjectPath: change.Path, Destructive: true},
			}, &catalog.Table{Name: tableName}, nil)
			if _, err := applier.Apply(ctx, plan); err != nil {
				return fmt.Errorf("dropping %q during materialization: %w", change.Path, err)
			}
		case schemadiff.CoarseAdd:
			// Target tree has this table but live doesn't: create it
			// wholesale from the committed blob's canonical definition.
			newTable, err := s.tableFromBlob(ctx, change.NewHash)
			if err != nil {
				return fmt.Errorf("materializing %q: %w", change.Path, err)
			}
			fine := schemadiff.FineDiff(change.Path, nil, newTable)
			plan := planner.BuildPlan(tableName, fine, nil, newTable)
			if _, err := applier.Apply(ctx, plan); err != nil {
				return fmt.Errorf("creating %q during materialization: %w", change.Path, err)
			}
		case schemadiff.CoarseModify:
			// Present on both sides under a different definition: diff
			// the live shape against the committed shape and apply only
			// the delta, rather than drop-and-recreate.
			newTable, err := s.tableFromBlob(ctx, change.NewHash)
			if err != nil {
				return fmt.Errorf("materializing %q: %w", change.Path, err)
			}
			oldTable := liveSchema.Tables[tableName]
			fine := schemadiff.FineDiff(change.Path, oldTable, newTable)
			plan := planner.BuildPlan(tableName, fine, oldTable, newTable)
			if _, err := applier.Apply(ctx, plan); err != nil {
				return fmt.Errorf("altering %q during materialization: %w", change.Path, err)
			}
		}
	}

	return nil
}

// tableFromBlob fetches blobID and parses its canonical definition back
// into a structured catalog.Table for schemadiff.FineDiff/planner.BuildPlan
// to consume.
func (s *Store) tableFromBlob(ctx context.Context, blobID objects.ID) (*catalog.Table, error) {
	blob, err := s.Objects.GetBlob(ctx, blobID)
	if err != nil {
		return nil, fmt.Errorf("reading blob %q: %w", blobID, err)
	}
	return canon.ParseTable(blob.CanonicalDefinition)
}

// blobHashesFromTree flattens a tree's entries into the path -> blob id
// map schemadiff.CoarseDiff's second argument expects.
func blobHashesFromTree(tree *objects.Tree) map[string]objects.ID {
	out := map[string]objects.ID{}
	if tree == nil {
		return out
	}
	for _, e := range tree.Entries {
		out[e.Path] = e.BlobID
	}
	return out
}

// treeFromBlobHashes is the inverse of blobHashesFromTree, letting the
// live schema's hash map stand in as schemadiff.CoarseDiff's tree-shaped
// baseline argument.
func treeFromBlobHashes(hashes map[string]objects.ID) *objects.Tree {
	entries := make([]objects.TreeEntry, 0, len(hashes))
	for path, id := range hashes {
		entries = append(entries, objects.TreeEntry{Path: path, BlobID: id})
	}
	return &objects.Tree{Entries: entries}
}

func tableNameFromPath(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return path
}

// DependencyImpact is one row of analyze_dependency_impact()'s result.
type DependencyImpact = depgraph.Impact

// AnalyzeDependencyImpact builds the dependency graph from the live
// working schema and returns the impact of performing op on name.
func (s *Store) AnalyzeDependencyImpact(ctx context.Context, name string, op depgraph.Operation, maxDepth int) ([]DependencyImpact, error) {
	sc, err := s.Catalog.ReadSchema(ctx, s.workingSchema)
	if err != nil {
		return nil, err
	}
	g := depgraph.Build(sc)
	return g.Impact(name, op, maxDepth), nil
}

// ValidateSchema builds the dependency graph from the live working
// schema and runs its structural validations.
func (s *Store) ValidateSchema(ctx context.Context) ([]depgraph.ValidationIssue, error) {
	sc, err := s.Catalog.ReadSchema(ctx, s.workingSchema)
	if err != nil {
		return nil, err
	}
	g := depgraph.Build(sc)
	return g.Validate(depgraph.DefaultValidateOptions()), nil
}
