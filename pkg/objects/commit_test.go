// SPDX-License-Identifier: Apache-2.0

package objects_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/evoludigit/pggit/pkg/objects"
)

func TestHashCommit_ParentOrderIndependent(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	a := objects.HashCommit("tree1", []objects.ID{"p2", "p1"}, "alice", "alice", now, now, "merge")
	b := objects.HashCommit("tree1", []objects.ID{"p1", "p2"}, "alice", "alice", now, now, "merge")
	assert.Equal(t, a, b)
}

func TestHashCommit_DiffersByMessage(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	a := objects.HashCommit("tree1", nil, "alice", "alice", now, now, "one")
	b := objects.HashCommit("tree1", nil, "alice", "alice", now, now, "two")
	assert.NotEqual(t, a, b)
}

func TestNewCommit_RootAndMerge(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)

	root := objects.NewCommit("tree1", nil, "alice", "alice", "init", now, now, nil, nil)
	assert.True(t, root.IsRoot())
	assert.False(t, root.IsMerge())

	base := objects.ID("base")
	merge := objects.NewCommit("tree2", []objects.ID{"p1", "p2"}, "alice", "alice", "merge", now, now, &base, nil)
	assert.False(t, merge.IsRoot())
	assert.True(t, merge.IsMerge())
	assert.Equal(t, &base, merge.MergeBaseID)
}

func TestNullID_Length(t *testing.T) {
	// A SHA-256 hex digest is 64 characters; NullID must match that width
	// so it can never collide with a real object id.
	assert.Len(t, string(objects.NullID), 64)
	for _, r := range string(objects.NullID) {
		assert.Equal(t, byte('0'), byte(r))
	}
}
