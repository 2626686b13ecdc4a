// SPDX-License-Identifier: Apache-2.0

package refstore_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoludigit/pggit/internal/testutils"
	"github.com/evoludigit/pggit/pkg/objects"
	"github.com/evoludigit/pggit/pkg/refstore"
	"github.com/evoludigit/pggit/pkg/store"
)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func TestCreateBranchAndCheckout(t *testing.T) {
	t.Parallel()

	testutils.WithStoreAndConnectionToContainer(t, func(s *store.Store, conn *sql.DB) {
		ctx := context.Background()
		refs := refstore.New(s.DB(), s.PggitSchema())

		mainRef, err := refs.InitBranch(ctx, "main", "test")
		require.NoError(t, err)
		assert.Equal(t, objects.NullID, mainRef.Target)

		require.NoError(t, refs.InitHead(ctx, "main", "public"))

		featureRef, err := refs.CreateBranch(ctx, "feature/x", "main", "test")
		require.NoError(t, err)
		assert.Equal(t, objects.NullID, featureRef.Target)

		head, err := refs.Checkout(ctx, "feature/x")
		require.NoError(t, err)
		assert.Equal(t, "feature/x", head.CurrentBranch)
		assert.Equal(t, objects.NullID, head.CurrentCommitID)
	})
}

func TestCreateBranch_DuplicateNameRejected(t *testing.T) {
	t.Parallel()

	testutils.WithStoreAndConnectionToContainer(t, func(s *store.Store, conn *sql.DB) {
		ctx := context.Background()
		refs := refstore.New(s.DB(), s.PggitSchema())

		_, err := refs.InitBranch(ctx, "main", "test")
		require.NoError(t, err)

		_, err = refs.CreateBranch(ctx, "main", "main", "test")
		assert.ErrorIs(t, err, refstore.ErrBranchExists)
	})
}

func TestCreateTag_Immutable(t *testing.T) {
	t.Parallel()

	testutils.WithStoreAndConnectionToContainer(t, func(s *store.Store, conn *sql.DB) {
		ctx := context.Background()
		refs := refstore.New(s.DB(), s.PggitSchema())

		_, err := refs.InitBranch(ctx, "main", "test")
		require.NoError(t, err)

		_, err = refs.CreateTag(ctx, "v1", objects.NullID, "test")
		require.NoError(t, err)

		err = refs.MoveRef(ctx, "v1", objects.NullID)
		assert.ErrorIs(t, err, refstore.ErrTagImmutable)
	})
}

func TestRefNotFound(t *testing.T) {
	t.Parallel()

	testutils.WithStoreAndConnectionToContainer(t, func(s *store.Store, conn *sql.DB) {
		ctx := context.Background()
		refs := refstore.New(s.DB(), s.PggitSchema())

		_, err := refs.GetRef(ctx, "does-not-exist")
		assert.ErrorIs(t, err, refstore.ErrRefNotFound)
	})
}
