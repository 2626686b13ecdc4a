// SPDX-License-Identifier: Apache-2.0

package objects

import (
	"context"
	"fmt"
)

// CommitGetter is the minimal read surface ancestry walks need, satisfied
// by *Store and easy to fake in unit tests.
type CommitGetter interface {
	GetCommit(ctx context.Context, id ID) (*Commit, error)
}

// WalkAncestors returns the commit's ancestors in breadth-first order,
// each annotated with its depth from start (start itself is depth 0).
// maxDepth <= 0 means unbounded. Used by FindMergeBase and by `pggit log`.
func WalkAncestors(ctx context.Context, g CommitGetter, start ID, maxDepth int) ([]AncestorEntry, error) {
	visited := map[ID]bool{}
	queue := []AncestorEntry{{ID: start, Depth: 0}}
	visited[start] = true

	var out []AncestorEntry
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		out = append(out, cur)

		if maxDepth > 0 && cur.Depth >= maxDepth {
			continue
		}

		c, err := g.GetCommit(ctx, cur.ID)
		if err != nil {
			return nil, fmt.Errorf("walk ancestors of %q: %w", cur.ID, err)
		}
		for _, p := range c.Parents {
			if visited[p] {
				continue
			}
			visited[p] = true
			queue = append(queue, AncestorEntry{ID: p, Depth: cur.Depth + 1})
		}
	}
	return out, nil
}

// AncestorEntry pairs a commit id with its breadth-first depth from the
// walk's starting commit.
type AncestorEntry struct {
	ID    ID
	Depth int
}

// FindMergeBase collects ancestors of a in breadth-first order with depth
// labels, then walks ancestors of b and returns the first encountered
// ancestor of a, breaking ties by earliest depth in a's ordering. Returns
// ("", nil) if a and b share no ancestor (e.g. two independent root
// commits).
func FindMergeBase(ctx context.Context, g CommitGetter, a, b ID) (ID, error) {
	aAncestors, err := WalkAncestors(ctx, g, a, 0)
	if err != nil {
		return "", fmt.Errorf("merge base: %w", err)
	}
	aDepth := make(map[ID]int, len(aAncestors))
	for _, e := range aAncestors {
		if _, ok := aDepth[e.ID]; !ok {
			aDepth[e.ID] = e.Depth
		}
	}

	bAncestors, err := WalkAncestors(ctx, g, b, 0)
	if err != nil {
		return "", fmt.Errorf("merge base: %w", err)
	}

	best := ID("")
	bestDepth := -1
	for _, e := range bAncestors {
		depth, ok := aDepth[e.ID]
		if !ok {
			continue
		}
		if bestDepth == -1 || depth < bestDepth {
			best = e.ID
			bestDepth = depth
		}
	}
	return best, nil
}

// IsAncestor reports whether candidate is an ancestor of (or equal to)
// descendant.
func IsAncestor(ctx context.Context, g CommitGetter, candidate, descendant ID) (bool, error) {
	if candidate == descendant {
		return true, nil
	}
	ancestors, err := WalkAncestors(ctx, g, descendant, 0)
	if err != nil {
		return false, fmt.Errorf("is ancestor: %w", err)
	}
	for _, e := range ancestors {
		if e.ID == candidate {
			return true, nil
		}
	}
	return false, nil
}
