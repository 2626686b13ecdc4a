// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/evoludigit/pggit/pkg/objects"
)

// ResetHard moves the current branch's ref (and HEAD) back to commitID
// and materializes its tree into the live schema. This is the only
// operation that rewrites a ref backwards; the prior target is logged
// via the controller's Logger for recovery. Runs under the current
// branch's operation lock.
func (s *Store) ResetHard(ctx context.Context, commitID objects.ID) error {
	head, err := s.Refs.GetHead(ctx)
	if err != nil {
		return err
	}

	return s.Controller.Run(ctx, head.CurrentBranch, defaultLockedBy, "reset_hard", func(ctx context.Context) error {
		prior, err := s.Refs.GetRef(ctx, head.CurrentBranch)
		if err != nil {
			return fmt.Errorf("reading %q before reset: %w", head.CurrentBranch, err)
		}
		s.Controller.Logger.Info("reset_hard", "branch", head.CurrentBranch, "prior_target", string(prior.Target), "new_target", string(commitID))

		if err := s.Refs.MoveRef(ctx, head.CurrentBranch, commitID); err != nil {
			return fmt.Errorf("resetting %q to %q: %w", head.CurrentBranch, commitID, err)
		}
		if err := s.Refs.AdvanceHead(ctx, commitID); err != nil {
			return fmt.Errorf("advancing HEAD: %w", err)
		}

		if err := s.materialize(ctx, commitID); err != nil {
			return fmt.Errorf("materializing reset target: %w", err)
		}

		return nil
	})
}

// RevertCommit creates a new commit whose tree equals parentCommitID's
// tree (the commit being reverted's own parent), with parents
// [commitID] and metadata {revert: true, reverted_commit: commitID}.
// Runs under the current branch's operation lock.
func (s *Store) RevertCommit(ctx context.Context, commitID objects.ID, message, author string, now time.Time) (objects.ID, error) {
	head, err := s.Refs.GetHead(ctx)
	if err != nil {
		return "", err
	}

	var revertID objects.ID
	err = s.Controller.Run(ctx, head.CurrentBranch, author, "revert_commit", func(ctx context.Context) error {
		id, err := s.revertCommitLocked(ctx, commitID, message, author, now)
		if err != nil {
			return err
		}
		revertID = id
		return nil
	})
	if err != nil {
		return "", err
	}
	return revertID, nil
}

func (s *Store) revertCommitLocked(ctx context.Context, commitID objects.ID, message, author string, now time.Time) (objects.ID, error) {
	target, err := s.Objects.GetCommit(ctx, commitID)
	if err != nil {
		return "", fmt.Errorf("reading commit to revert: %w", err)
	}
	if len(target.Parents) == 0 {
		return "", fmt.Errorf("cannot revert the root commit %q: it has no parent state to restore", commitID)
	}

	parentCommit, err := s.Objects.GetCommit(ctx, target.Parents[0])
	if err != nil {
		return "", fmt.Errorf("reading reverted commit's parent: %w", err)
	}

	if message == "" {
		message = fmt.Sprintf("revert %q", commitID)
	}

	revertCommit := objects.NewCommit(
		parentCommit.TreeID,
		[]objects.ID{commitID},
		author, author, message, now, now, nil,
		map[string]string{"revert": "true", "reverted_commit": string(commitID)},
	)
	if _, err := s.Objects.PutCommit(ctx, revertCommit); err != nil {
		return "", fmt.Errorf("storing revert commit: %w", err)
	}

	if err := s.Refs.AdvanceHead(ctx, revertCommit.ID); err != nil {
		return "", fmt.Errorf("advancing HEAD: %w", err)
	}
	head, err := s.Refs.GetHead(ctx)
	if err != nil {
		return "", err
	}
	if err := s.Refs.MoveRef(ctx, head.CurrentBranch, revertCommit.ID); err != nil {
		return "", fmt.Errorf("advancing %q: %w", head.CurrentBranch, err)
	}

	if err := s.materialize(ctx, revertCommit.ID); err != nil {
		return "", fmt.Errorf("materializing revert result: %w", err)
	}

	return revertCommit.ID, nil
}
