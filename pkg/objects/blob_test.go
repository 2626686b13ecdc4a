// SPDX-License-Identifier: Apache-2.0

package objects_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evoludigit/pggit/pkg/objects"
)

func TestHashBlob_Deterministic(t *testing.T) {
	a := objects.HashBlob(objects.ObjectTable, "CREATE TABLE foo (id integer)")
	b := objects.HashBlob(objects.ObjectTable, "CREATE TABLE foo (id integer)")
	assert.Equal(t, a, b)
}

func TestHashBlob_DiffersByObjectType(t *testing.T) {
	table := objects.HashBlob(objects.ObjectTable, "CREATE TABLE foo (id integer)")
	view := objects.HashBlob(objects.ObjectView, "CREATE TABLE foo (id integer)")
	assert.NotEqual(t, table, view)
}

func TestHashBlob_DiffersByText(t *testing.T) {
	a := objects.HashBlob(objects.ObjectTable, "CREATE TABLE foo (id integer)")
	b := objects.HashBlob(objects.ObjectTable, "CREATE TABLE foo (id bigint)")
	assert.NotEqual(t, a, b)
}

func TestNewBlob_Path(t *testing.T) {
	b := objects.NewBlob(objects.ObjectTable, "public", "foo", "CREATE TABLE foo ()", nil, nil)
	assert.Equal(t, "public.foo", b.Path())
	assert.NotEmpty(t, b.ID)
}

func TestNewBlob_PathWithoutSchema(t *testing.T) {
	b := objects.NewBlob(objects.ObjectSchema, "", "foo", "x", nil, nil)
	assert.Equal(t, "foo", b.Path())
}

func TestObjectType_IsFirstClass(t *testing.T) {
	assert.True(t, objects.ObjectTable.IsFirstClass())
	assert.True(t, objects.ObjectView.IsFirstClass())
	assert.False(t, objects.ObjectTrigger.IsFirstClass())
	assert.False(t, objects.ObjectSchema.IsFirstClass())
}
