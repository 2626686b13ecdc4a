// SPDX-License-Identifier: Apache-2.0

package schemadiff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoludigit/pggit/pkg/catalog"
	"github.com/evoludigit/pggit/pkg/objects"
	"github.com/evoludigit/pggit/pkg/schemadiff"
)

func TestCoarseDiff(t *testing.T) {
	tree, err := objects.NewTree([]*objects.Blob{
		objects.NewBlob(objects.ObjectTable, "public", "users", "create table users ()", nil, nil),
		objects.NewBlob(objects.ObjectTable, "public", "gone", "create table gone ()", nil, nil),
	}, nil)
	require.NoError(t, err)

	usersOldHash, _ := tree.Lookup("public.users")
	liveHash := map[string]objects.ID{
		"public.users": usersOldHash,
		"public.new":   objects.HashBlob(objects.ObjectTable, "create table new ()"),
	}

	changes := schemadiff.CoarseDiff(tree, liveHash)

	byPath := map[string]schemadiff.CoarseChange{}
	for _, c := range changes {
		byPath[c.Path] = c
	}

	assert.Equal(t, schemadiff.CoarseAdd, byPath["public.new"].Kind)
	assert.Equal(t, schemadiff.CoarseDelete, byPath["public.gone"].Kind)
	_, unchanged := byPath["public.users"]
	assert.False(t, unchanged, "unchanged object should not appear in the coarse diff")
}

func TestFineDiff_AddAndDropTable(t *testing.T) {
	added := schemadiff.FineDiff("public.new", nil, &catalog.Table{Name: "new"})
	require.Len(t, added, 1)
	assert.Equal(t, schemadiff.ChangeAddTable, added[0].Kind)

	dropped := schemadiff.FineDiff("public.gone", &catalog.Table{Name: "gone"}, nil)
	require.Len(t, dropped, 1)
	assert.Equal(t, schemadiff.ChangeDropTable, dropped[0].Kind)
	assert.True(t, dropped[0].Destructive)
}

func TestFineDiff_AddColumnWithoutDefaultIsDestructive(t *testing.T) {
	old := &catalog.Table{Name: "t", Columns: map[string]*catalog.Column{}}
	newTable := &catalog.Table{Name: "t", Columns: map[string]*catalog.Column{
		"age": {Name: "age", Type: "integer", Nullable: false},
	}}

	changes := schemadiff.FineDiff("public.t", old, newTable)
	require.Len(t, changes, 1)
	assert.Equal(t, schemadiff.ChangeAddColumn, changes[0].Kind)
	assert.True(t, changes[0].Destructive)
	assert.True(t, changes[0].RequiresDataMigration)
}

func TestFineDiff_AlterColumnTypeWidening(t *testing.T) {
	old := &catalog.Table{Name: "t", Columns: map[string]*catalog.Column{
		"n": {Name: "n", Type: "smallint", Nullable: true},
	}}
	newTable := &catalog.Table{Name: "t", Columns: map[string]*catalog.Column{
		"n": {Name: "n", Type: "bigint", Nullable: true},
	}}

	changes := schemadiff.FineDiff("public.t", old, newTable)
	require.Len(t, changes, 1)
	assert.Equal(t, schemadiff.ChangeAlterColumnType, changes[0].Kind)
	assert.False(t, changes[0].Destructive, "widening int family should be non-destructive")
}

func TestFineDiff_AlterColumnTypeIncompatible(t *testing.T) {
	old := &catalog.Table{Name: "t", Columns: map[string]*catalog.Column{
		"n": {Name: "n", Type: "bigint", Nullable: true},
	}}
	newTable := &catalog.Table{Name: "t", Columns: map[string]*catalog.Column{
		"n": {Name: "n", Type: "boolean", Nullable: true},
	}}

	changes := schemadiff.FineDiff("public.t", old, newTable)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Destructive)
	assert.True(t, changes[0].RequiresDataMigration)
}

func TestClassifyThreeWay(t *testing.T) {
	cases := []struct {
		name                string
		base, ours, theirs  objects.ID
		want                schemadiff.Classification
	}{
		{"no change", "", "", "", schemadiff.ClassNoChange},
		{"add ours", "", "x", "", schemadiff.ClassAddOurs},
		{"add theirs", "", "", "x", schemadiff.ClassAddTheirs},
		{"both added same", "", "x", "x", schemadiff.ClassBothSame},
		{"both added different", "", "x", "y", schemadiff.ClassConflict},
		{"both deleted", "b", "", "", schemadiff.ClassBothDeleted},
		{"ours deleted theirs unchanged", "b", "", "b", schemadiff.ClassTakeOurs},
		{"ours deleted theirs modified", "b", "", "y", schemadiff.ClassDeleteModifyConflict},
		{"theirs deleted ours unchanged", "b", "b", "", schemadiff.ClassTakeTheirs},
		{"theirs deleted ours modified", "b", "x", "", schemadiff.ClassModifyDeleteConflict},
		{"both unchanged", "b", "b", "b", schemadiff.ClassBothSame},
		{"ours changed", "b", "x", "b", schemadiff.ClassTakeOurs},
		{"theirs changed", "b", "b", "y", schemadiff.ClassTakeTheirs},
		{"both changed same", "b", "x", "x", schemadiff.ClassBothSame},
		{"both changed differently", "b", "x", "y", schemadiff.ClassConflict},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := schemadiff.ClassifyThreeWay(c.base, c.ours, c.theirs)
			assert.Equal(t, c.want, got)
		})
	}
}
