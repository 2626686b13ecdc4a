// SPDX-License-Identifier: Apache-2.0

package objects_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoludigit/pggit/pkg/objects"
)

// memCommits is an in-memory CommitGetter used to exercise ancestry walks
// without a live store.
type memCommits map[objects.ID]*objects.Commit

func (m memCommits) GetCommit(_ context.Context, id objects.ID) (*objects.Commit, error) {
	c, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("commit %q not found", id)
	}
	return c, nil
}

// Linear history: root -> c1 -> c2
func TestWalkAncestors_Linear(t *testing.T) {
	ctx := context.Background()
	root := &objects.Commit{ID: "root"}
	c1 := &objects.Commit{ID: "c1", Parents: []objects.ID{"root"}}
	c2 := &objects.Commit{ID: "c2", Parents: []objects.ID{"c1"}}
	store := memCommits{"root": root, "c1": c1, "c2": c2}

	entries, err := objects.WalkAncestors(ctx, store, "c2", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, objects.ID("c2"), entries[0].ID)
	assert.Equal(t, 0, entries[0].Depth)
	assert.Equal(t, objects.ID("c1"), entries[1].ID)
	assert.Equal(t, 1, entries[1].Depth)
	assert.Equal(t, objects.ID("root"), entries[2].ID)
	assert.Equal(t, 2, entries[2].Depth)
}

func TestWalkAncestors_MaxDepth(t *testing.T) {
	ctx := context.Background()
	root := &objects.Commit{ID: "root"}
	c1 := &objects.Commit{ID: "c1", Parents: []objects.ID{"root"}}
	c2 := &objects.Commit{ID: "c2", Parents: []objects.ID{"c1"}}
	store := memCommits{"root": root, "c1": c1, "c2": c2}

	entries, err := objects.WalkAncestors(ctx, store, "c2", 1)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, objects.ID("c2"), entries[0].ID)
	assert.Equal(t, objects.ID("c1"), entries[1].ID)
}

// Two branches off one root: root -> a, root -> b
func TestFindMergeBase_Diamond(t *testing.T) {
	ctx := context.Background()
	root := &objects.Commit{ID: "root"}
	a := &objects.Commit{ID: "a", Parents: []objects.ID{"root"}}
	b := &objects.Commit{ID: "b", Parents: []objects.ID{"root"}}
	store := memCommits{"root": root, "a": a, "b": b}

	base, err := objects.FindMergeBase(ctx, store, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, objects.ID("root"), base)
}

func TestFindMergeBase_NoCommonAncestor(t *testing.T) {
	ctx := context.Background()
	a := &objects.Commit{ID: "a"}
	b := &objects.Commit{ID: "b"}
	store := memCommits{"a": a, "b": b}

	base, err := objects.FindMergeBase(ctx, store, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, objects.ID(""), base)
}

func TestFindMergeBase_PicksClosestOnTie(t *testing.T) {
	ctx := context.Background()
	// root -> mid -> a
	// root -> mid -> b
	// mid is the closest common ancestor, not root.
	root := &objects.Commit{ID: "root"}
	mid := &objects.Commit{ID: "mid", Parents: []objects.ID{"root"}}
	a := &objects.Commit{ID: "a", Parents: []objects.ID{"mid"}}
	b := &objects.Commit{ID: "b", Parents: []objects.ID{"mid"}}
	store := memCommits{"root": root, "mid": mid, "a": a, "b": b}

	base, err := objects.FindMergeBase(ctx, store, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, objects.ID("mid"), base)
}

func TestIsAncestor(t *testing.T) {
	ctx := context.Background()
	root := &objects.Commit{ID: "root"}
	c1 := &objects.Commit{ID: "c1", Parents: []objects.ID{"root"}}
	store := memCommits{"root": root, "c1": c1}

	ok, err := objects.IsAncestor(ctx, store, "root", "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = objects.IsAncestor(ctx, store, "c1", "root")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = objects.IsAncestor(ctx, store, "c1", "c1")
	require.NoError(t, err)
	assert.True(t, ok)
}
