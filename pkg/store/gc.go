// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"github.com/evoludigit/pggit/pkg/objects"
)

// gcLockBranch is the reserved lock name GC holds for the duration of its
// mark-and-sweep pass, so a concurrent commit/merge can't advance a ref
// into the reachable set while GC is computing it.
const gcLockBranch = "*"

// GCResult summarizes one collection pass.
type GCResult struct {
	PrunedCommits int
	PrunedTrees   int
	PrunedBlobs   int
}

// GC prunes commits, trees and blobs no branch or tag ref can reach:
// dangling commits left behind by reset_hard moving a ref backward or a
// deleted branch, and the trees and blobs only those commits referenced.
// Reachable objects, including ones shared across branches, are never
// touched.
func (s *Store) GC(ctx context.Context) (GCResult, error) {
	var result GCResult
	err := s.Controller.Run(ctx, gcLockBranch, defaultLockedBy, "gc", func(ctx context.Context) error {
		r, err := s.gcLocked(ctx)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}

func (s *Store) gcLocked(ctx context.Context) (GCResult, error) {
	refs, err := s.Refs.ListRefs(ctx, "")
	if err != nil {
		return GCResult{}, fmt.Errorf("listing refs: %w", err)
	}

	reachableCommits := map[objects.ID]bool{}
	for _, ref := range refs {
		if ref.Target == "" || ref.Target == objects.NullID {
			continue
		}
		entries, err := objects.WalkAncestors(ctx, s.Objects, ref.Target, 0)
		if err != nil {
			return GCResult{}, fmt.Errorf("walking ancestors of ref %q: %w", ref.Name, err)
		}
		for _, e := range entries {
			reachableCommits[e.ID] = true
		}
	}

	allCommits, err := s.Objects.ListCommitIDs(ctx)
	if err != nil {
		return GCResult{}, fmt.Errorf("listing commits: %w", err)
	}

	reachableTrees := map[objects.ID]bool{}
	var danglingCommits []objects.ID
	for _, id := range allCommits {
		if !reachableCommits[id] {
			danglingCommits = append(danglingCommits, id)
			continue
		}
		c, err := s.Objects.GetCommit(ctx, id)
		if err != nil {
			return GCResult{}, fmt.Errorf("loading reachable commit %q: %w", id, err)
		}
		reachableTrees[c.TreeID] = true
	}

	allTrees, err := s.Objects.ListTreeIDs(ctx)
	if err != nil {
		return GCResult{}, fmt.Errorf("listing trees: %w", err)
	}

	reachableBlobs := map[objects.ID]bool{}
	var danglingTrees []objects.ID
	for _, id := range allTrees {
		if !reachableTrees[id] {
			danglingTrees = append(danglingTrees, id)
			continue
		}
		t, err := s.Objects.GetTree(ctx, id)
		if err != nil {
			return GCResult{}, fmt.Errorf("loading reachable tree %q: %w", id, err)
		}
		for _, blobID := range t.BlobIDs() {
			reachableBlobs[blobID] = true
		}
	}

	allBlobs, err := s.Objects.ListBlobIDs(ctx)
	if err != nil {
		return GCResult{}, fmt.Errorf("listing blobs: %w", err)
	}

	var danglingBlobs []objects.ID
	for _, id := range allBlobs {
		if !reachableBlobs[id] {
			danglingBlobs = append(danglingBlobs, id)
		}
	}

	// Commits before trees: commits.tree_id is a foreign key into trees.
	if err := s.Objects.DeleteCommits(ctx, danglingCommits); err != nil {
		return GCResult{}, fmt.Errorf("pruning dangling commits: %w", err)
	}
	if err := s.Objects.DeleteTrees(ctx, danglingTrees); err != nil {
		return GCResult{}, fmt.Errorf("pruning dangling trees: %w", err)
	}
	if err := s.Objects.DeleteBlobs(ctx, danglingBlobs); err != nil {
		return GCResult{}, fmt.Errorf("pruning dangling blobs: %w", err)
	}

	return GCResult{
		PrunedCommits: len(danglingCommits),
		PrunedTrees:   len(danglingTrees),
		PrunedBlobs:   len(danglingBlobs),
	}, nil
}
