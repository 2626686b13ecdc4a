// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"github.com/evoludigit/pggit/pkg/objects"
	"github.com/evoludigit/pggit/pkg/schemadiff"
)

// Diff compares two commits' trees, or a commit against the live
// working schema when to is objects.NullID. include_data rows (table
// snapshot comparisons) are left to the DDL-capture collaborator; pggit
// only emits schema-level change rows here.
func (s *Store) Diff(ctx context.Context, from, to objects.ID) ([]schemadiff.CoarseChange, error) {
	fromTree, err := s.treeFor(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("resolving from=%q: %w", from, err)
	}

	var toHashes map[string]objects.ID
	if to == objects.NullID || to == "" {
		toHashes, err = s.liveBlobHashes(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		toTree, err := s.treeFor(ctx, to)
		if err != nil {
			return nil, fmt.Errorf("resolving to=%q: %w", to, err)
		}
		toHashes = map[string]objects.ID{}
		for _, e := range toTree.Entries {
			toHashes[e.Path] = e.BlobID
		}
	}

	return schemadiff.CoarseDiff(fromTree, toHashes), nil
}

func (s *Store) treeFor(ctx context.Context, commitID objects.ID) (*objects.Tree, error) {
	if commitID == objects.NullID || commitID == "" {
		return &objects.Tree{}, nil
	}
	commit, err := s.Objects.GetCommit(ctx, commitID)
	if err != nil {
		return nil, err
	}
	return s.Objects.GetTree(ctx, commit.TreeID)
}
