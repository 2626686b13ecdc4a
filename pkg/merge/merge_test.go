// SPDX-License-Identifier: Apache-2.0

package merge_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoludigit/pggit/pkg/merge"
	"github.com/evoludigit/pggit/pkg/objects"
)

var testTimestamp = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedTime() time.Time { return testTimestamp }

type fakeStore struct {
	commits map[objects.ID]*objects.Commit
	trees   map[objects.ID]*objects.Tree
	blobs   map[objects.ID]*objects.Blob
}

func (f *fakeStore) GetCommit(_ context.Context, id objects.ID) (*objects.Commit, error) {
	c, ok := f.commits[id]
	if !ok {
		return nil, fmt.Errorf("commit %q not found", id)
	}
	return c, nil
}

func (f *fakeStore) GetTree(_ context.Context, id objects.ID) (*objects.Tree, error) {
	t, ok := f.trees[id]
	if !ok {
		return nil, fmt.Errorf("tree %q not found", id)
	}
	return t, nil
}

func (f *fakeStore) GetBlob(_ context.Context, id objects.ID) (*objects.Blob, error) {
	b, ok := f.blobs[id]
	if !ok {
		return nil, fmt.Errorf("blob %q not found", id)
	}
	return b, nil
}

func (f *fakeStore) PutBlob(_ context.Context, b *objects.Blob) error {
	if f.blobs == nil {
		f.blobs = map[objects.ID]*objects.Blob{}
	}
	f.blobs[b.ID] = b
	return nil
}

func blob(name, ddl string) *objects.Blob {
	return objects.NewBlob(objects.ObjectTable, "public", name, ddl, nil, nil)
}

// blobsByID indexes a set of blobs for fakeStore.blobs.
func blobsByID(bs ...*objects.Blob) map[objects.ID]*objects.Blob {
	out := make(map[objects.ID]*objects.Blob, len(bs))
	for _, b := range bs {
		out[b.ID] = b
	}
	return out
}

func TestMerge_FastForward(t *testing.T) {
	ctx := context.Background()

	rootTree, err := objects.NewTree([]*objects.Blob{blob("users", "create table users ()")}, nil)
	require.NoError(t, err)
	root := objects.NewCommit(rootTree.ID, nil, "a", "a", "root", fixedTime(), fixedTime(), nil, nil)

	aheadTree, err := objects.NewTree([]*objects.Blob{
		blob("users", "create table users ()"),
		blob("orders", "create table orders ()"),
	}, nil)
	require.NoError(t, err)
	ahead := objects.NewCommit(aheadTree.ID, []objects.ID{root.ID}, "a", "a", "add orders", fixedTime(), fixedTime(), nil, nil)

	fs := &fakeStore{
		commits: map[objects.ID]*objects.Commit{root.ID: root, ahead.ID: ahead},
		trees:   map[objects.ID]*objects.Tree{rootTree.ID: rootTree, aheadTree.ID: aheadTree},
	}
	e := merge.New(fs, fs, fs)

	result, err := e.Merge(ctx, ahead.ID, root.ID, merge.StrategyAuto, nil)
	require.NoError(t, err)
	assert.True(t, result.FastForward)
}

func TestMerge_NoOpWhenTargetAhead(t *testing.T) {
	ctx := context.Background()

	rootTree, err := objects.NewTree([]*objects.Blob{blob("users", "create table users ()")}, nil)
	require.NoError(t, err)
	root := objects.NewCommit(rootTree.ID, nil, "a", "a", "root", fixedTime(), fixedTime(), nil, nil)

	aheadTree, err := objects.NewTree([]*objects.Blob{
		blob("users", "create table users ()"),
		blob("orders", "create table orders ()"),
	}, nil)
	require.NoError(t, err)
	ahead := objects.NewCommit(aheadTree.ID, []objects.ID{root.ID}, "a", "a", "add orders", fixedTime(), fixedTime(), nil, nil)

	fs := &fakeStore{
		commits: map[objects.ID]*objects.Commit{root.ID: root, ahead.ID: ahead},
		trees:   map[objects.ID]*objects.Tree{rootTree.ID: rootTree, aheadTree.ID: aheadTree},
	}
	e := merge.New(fs, fs, fs)

	result, err := e.Merge(ctx, root.ID, ahead.ID, merge.StrategyAuto, nil)
	require.NoError(t, err)
	assert.True(t, result.NoOp)
}

func TestMerge_SameCommitIsAlreadyUpToDate(t *testing.T) {
	ctx := context.Background()
	rootTree, err := objects.NewTree([]*objects.Blob{blob("users", "create table users ()")}, nil)
	require.NoError(t, err)
	root := objects.NewCommit(rootTree.ID, nil, "a", "a", "root", fixedTime(), fixedTime(), nil, nil)

	fs := &fakeStore{
		commits: map[objects.ID]*objects.Commit{root.ID: root},
		trees:   map[objects.ID]*objects.Tree{rootTree.ID: rootTree},
	}
	e := merge.New(fs, fs, fs)

	_, err = e.Merge(ctx, root.ID, root.ID, merge.StrategyAuto, nil)
	assert.ErrorIs(t, err, merge.ErrAlreadyUpToDate)
}

// Diverging auto-merge of independent paths: base has "users" only;
// target branch adds "orders", source branch adds "products". Neither
// side touches the other's table, so both survive in the merged tree.
func TestMerge_AutoMergesDisjointTableAdds(t *testing.T) {
	ctx := context.Background()

	baseTree, err := objects.NewTree([]*objects.Blob{blob("users", "create table users ()")}, nil)
	require.NoError(t, err)
	base := objects.NewCommit(baseTree.ID, nil, "a", "a", "root", fixedTime(), fixedTime(), nil, nil)

	targetTree, err := objects.NewTree([]*objects.Blob{
		blob("users", "create table users ()"),
		blob("orders", "create table orders ()"),
	}, nil)
	require.NoError(t, err)
	target := objects.NewCommit(targetTree.ID, []objects.ID{base.ID}, "a", "a", "add orders", fixedTime(), fixedTime(), nil, nil)

	sourceTree, err := objects.NewTree([]*objects.Blob{
		blob("users", "create table users ()"),
		blob("products", "create table products ()"),
	}, nil)
	require.NoError(t, err)
	source := objects.NewCommit(sourceTree.ID, []objects.ID{base.ID}, "b", "b", "add products", fixedTime(), fixedTime(), nil, nil)

	fs := &fakeStore{
		commits: map[objects.ID]*objects.Commit{base.ID: base, target.ID: target, source.ID: source},
		trees:   map[objects.ID]*objects.Tree{baseTree.ID: baseTree, targetTree.ID: targetTree, sourceTree.ID: sourceTree},
	}
	e := merge.New(fs, fs, fs)

	result, err := e.Merge(ctx, source.ID, target.ID, merge.StrategyAuto, nil)
	require.NoError(t, err)
	assert.False(t, result.FastForward)
	assert.False(t, result.NoOp)
	assert.Empty(t, result.Conflicts)
	assert.Len(t, result.MergedTreeBlobs, 3)
}

// Both branches add a different column to the same table: auto must
// synthesize one merged definition carrying both columns rather than
// report a conflict.
func TestMerge_AutoMergesIndependentColumnAddsOnSameTable(t *testing.T) {
	ctx := context.Background()

	baseBlob := blob("users", "create table users (id integer not null)")
	baseTree, err := objects.NewTree([]*objects.Blob{baseBlob}, nil)
	require.NoError(t, err)
	base := objects.NewCommit(baseTree.ID, nil, "a", "a", "root", fixedTime(), fixedTime(), nil, nil)

	targetBlob := blob("users", "create table users (id integer not null, email text)")
	targetTree, err := objects.NewTree([]*objects.Blob{targetBlob}, nil)
	require.NoError(t, err)
	target := objects.NewCommit(targetTree.ID, []objects.ID{base.ID}, "a", "a", "add email", fixedTime(), fixedTime(), nil, nil)

	sourceBlob := blob("users", "create table users (id integer not null, created_at timestamp)")
	sourceTree, err := objects.NewTree([]*objects.Blob{sourceBlob}, nil)
	require.NoError(t, err)
	source := objects.NewCommit(sourceTree.ID, []objects.ID{base.ID}, "b", "b", "add created_at", fixedTime(), fixedTime(), nil, nil)

	fs := &fakeStore{
		commits: map[objects.ID]*objects.Commit{base.ID: base, target.ID: target, source.ID: source},
		trees:   map[objects.ID]*objects.Tree{baseTree.ID: baseTree, targetTree.ID: targetTree, sourceTree.ID: sourceTree},
		blobs:   blobsByID(baseBlob, targetBlob, sourceBlob),
	}
	e := merge.New(fs, fs, fs)

	result, err := e.Merge(ctx, source.ID, target.ID, merge.StrategyAuto, nil)
	require.NoError(t, err)
	require.Empty(t, result.Conflicts)
	require.Len(t, result.MergedTreeBlobs, 1)

	merged, err := fs.GetBlob(ctx, result.MergedTreeBlobs[0])
	require.NoError(t, err)
	assert.Contains(t, merged.CanonicalDefinition, "email")
	assert.Contains(t, merged.CanonicalDefinition, "created_at")
	assert.Contains(t, merged.CanonicalDefinition, "id")
}

// Both branches modify the same table differently: strict strategy
// must surface a conflict rather than silently picking a side.
func TestMerge_StrictFailsOnConflict(t *testing.T) {
	ctx := context.Background()

	baseTree, err := objects.NewTree([]*objects.Blob{blob("users", "create table users ()")}, nil)
	require.NoError(t, err)
	base := objects.NewCommit(baseTree.ID, nil, "a", "a", "root", fixedTime(), fixedTime(), nil, nil)

	targetTree, err := objects.NewTree([]*objects.Blob{blob("users", "create table users (id int)")}, nil)
	require.NoError(t, err)
	target := objects.NewCommit(targetTree.ID, []objects.ID{base.ID}, "a", "a", "add id", fixedTime(), fixedTime(), nil, nil)

	sourceTree, err := objects.NewTree([]*objects.Blob{blob("users", "create table users (name text)")}, nil)
	require.NoError(t, err)
	source := objects.NewCommit(sourceTree.ID, []objects.ID{base.ID}, "b", "b", "add name", fixedTime(), fixedTime(), nil, nil)

	fs := &fakeStore{
		commits: map[objects.ID]*objects.Commit{base.ID: base, target.ID: target, source.ID: source},
		trees:   map[objects.ID]*objects.Tree{baseTree.ID: baseTree, targetTree.ID: targetTree, sourceTree.ID: sourceTree},
	}
	e := merge.New(fs, fs, fs)

	result, err := e.Merge(ctx, source.ID, target.ID, merge.StrategyStrict, nil)
	require.Error(t, err)
	var conflictErr *merge.MergeConflicts
	require.ErrorAs(t, err, &conflictErr)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "public.users", result.Conflicts[0].Path)
}

// ours/theirs strategies resolve the same conflict deterministically.
func TestMerge_OursStrategyPicksTargetSide(t *testing.T) {
	ctx := context.Background()

	baseTree, err := objects.NewTree([]*objects.Blob{blob("users", "create table users ()")}, nil)
	require.NoError(t, err)
	base := objects.NewCommit(baseTree.ID, nil, "a", "a", "root", fixedTime(), fixedTime(), nil, nil)

	targetBlob := blob("users", "create table users (id int)")
	targetTree, err := objects.NewTree([]*objects.Blob{targetBlob}, nil)
	require.NoError(t, err)
	target := objects.NewCommit(targetTree.ID, []objects.ID{base.ID}, "a", "a", "add id", fixedTime(), fixedTime(), nil, nil)

	sourceTree, err := objects.NewTree([]*objects.Blob{blob("users", "create table users (name text)")}, nil)
	require.NoError(t, err)
	source := objects.NewCommit(sourceTree.ID, []objects.ID{base.ID}, "b", "b", "add name", fixedTime(), fixedTime(), nil, nil)

	fs := &fakeStore{
		commits: map[objects.ID]*objects.Commit{base.ID: base, target.ID: target, source.ID: source},
		trees:   map[objects.ID]*objects.Tree{baseTree.ID: baseTree, targetTree.ID: targetTree, sourceTree.ID: sourceTree},
	}
	e := merge.New(fs, fs, fs)

	result, err := e.Merge(ctx, source.ID, target.ID, merge.StrategyOurs, nil)
	require.NoError(t, err)
	require.Len(t, result.MergedTreeBlobs, 1)
	assert.Equal(t, targetBlob.ID, result.MergedTreeBlobs[0])
}
