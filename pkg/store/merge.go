// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/evoludigit/pggit/pkg/merge"
	"github.com/evoludigit/pggit/pkg/objects"
)

// Merge merges sourceBranch into the current branch under strategy,
// returning the new merge commit id, or a *merge.MergeConflicts error
// when strategy is strict/auto and conflicts remain. Runs under the
// target branch's operation lock.
func (s *Store) Merge(ctx context.Context, sourceBranch string, message, author string, strategy merge.Strategy, now time.Time) (objects.ID, error) {
	head, err := s.Refs.GetHead(ctx)
	if err != nil {
		return "", err
	}

	var mergeCommitID objects.ID
	err = s.Controller.Run(ctx, head.CurrentBranch, author, "merge", func(ctx context.Context) error {
		id, err := s.mergeLocked(ctx, sourceBranch, message, author, strategy, now, head.CurrentBranch)
		if err != nil {
			return err
		}
		mergeCommitID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return mergeCommitID, nil
}

func (s *Store) mergeLocked(ctx context.Context, sourceBranch string, message, author string, strategy merge.Strategy, now time.Time, targetBranch string) (objects.ID, error) {
	sourceRef, err := s.Refs.GetRef(ctx, sourceBranch)
	if err != nil {
		return "", fmt.Errorf("reading source branch %q: %w", sourceBranch, err)
	}
	targetRef, err := s.Refs.GetRef(ctx, targetBranch)
	if err != nil {
		return "", fmt.Errorf("reading target branch %q: %w", targetBranch, err)
	}

	engine := merge.New(s.Objects, s.Objects, s.Objects)
	result, err := engine.Merge(ctx, sourceRef.Target, targetRef.Target, strategy, nil)
	if err != nil {
		if result != nil && len(result.Conflicts) > 0 {
			return "", err
		}
		if err == merge.ErrAlreadyUpToDate {
			return "", err
		}
		return "", err
	}

	if result.NoOp {
		return targetRef.Target, nil
	}

	if result.FastForward {
		if err := s.Refs.MoveRef(ctx, targetBranch, sourceRef.Target); err != nil {
			return "", fmt.Errorf("fast-forwarding %q: %w", targetBranch, err)
		}
		if err := s.Refs.AdvanceHead(ctx, sourceRef.Target); err != nil {
			return "", fmt.Errorf("advancing HEAD: %w", err)
		}
		if err := s.materialize(ctx, sourceRef.Target); err != nil {
			return "", fmt.Errorf("materializing fast-forward: %w", err)
		}
		return sourceRef.Target, nil
	}

	blobs := make([]*objects.Blob, 0, len(result.MergedTreeBlobs))
	for _, id := range result.MergedTreeBlobs {
		b, err := s.Objects.GetBlob(ctx, id)
		if err != nil {
			return "", fmt.Errorf("reading merged blob %q: %w", id, err)
		}
		blobs = append(blobs, b)
	}

	mergedTree, err := objects.NewTree(blobs, nil)
	if err != nil {
		return "", fmt.Errorf("building merged tree: %w", err)
	}
	if err := s.Objects.PutTree(ctx, mergedTree); err != nil {
		return "", fmt.Errorf("storing merged tree: %w", err)
	}

	base, err := objects.FindMergeBase(ctx, s.Objects, sourceRef.Target, targetRef.Target)
	if err != nil {
		return "", fmt.Errorf("finding merge base: %w", err)
	}

	mergeCommit := merge.NewMergeCommit(mergedTree.ID, sourceRef.Target, targetRef.Target, base, author, author, sourceBranch, message, now)
	if _, err := s.Objects.PutCommit(ctx, mergeCommit); err != nil {
		return "", fmt.Errorf("storing merge commit: %w", err)
	}

	if err := s.Refs.MoveRef(ctx, targetBranch, mergeCommit.ID); err != nil {
		return "", fmt.Errorf("advancing %q: %w", targetBranch, err)
	}
	if err := s.Refs.AdvanceHead(ctx, mergeCommit.ID); err != nil {
		return "", fmt.Errorf("advancing HEAD: %w", err)
	}

	if err := s.materialize(ctx, mergeCommit.ID); err != nil {
		return "", fmt.Errorf("materializing merge result: %w", err)
	}

	return mergeCommit.ID, nil
}
