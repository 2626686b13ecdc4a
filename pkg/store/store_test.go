// SPDX-License-Identifier: Apache-2.0

package store_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evoludigit/pggit/internal/testutils"
	"github.com/evoludigit/pggit/pkg/objects"
	"github.com/evoludigit/pggit/pkg/store"
)

var fixedNow = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	testutils.SharedTestMain(m)
}

func bootstrapMain(t *testing.T, s *store.Store) {
	t.Helper()
	ctx := context.Background()
	_, err := s.CreateBranch(ctx, "main", "main", "test")
	if err != nil {
		// CreateBranch requires a source ref; the very first branch has
		// none, so bootstrap it directly via InitBranch.
		_, err = s.Refs.InitBranch(ctx, "main", "test")
		require.NoError(t, err)
	}
	require.NoError(t, s.Refs.InitHead(ctx, "main", "public"))
}

func TestStore_LinearHistory(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(s *store.Store, conn *sql.DB) {
		ctx := context.Background()
		bootstrapMain(t, s)

		_, err := conn.ExecContext(ctx, `CREATE TABLE users (id integer, name character varying)`)
		require.NoError(t, err)

		staged, err := s.StageChanges(ctx)
		require.NoError(t, err)
		require.Len(t, staged, 1)
		assert.Equal(t, "public.users", staged[0].ObjectName)

		commitID, err := s.Commit(ctx, "init users", "tester", fixedNow)
		require.NoError(t, err)
		assert.NotEmpty(t, commitID)
		assert.NotEqual(t, objects.NullID, commitID)

		status, err := s.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, status.StagedCount)
		assert.Equal(t, "init users", status.LastMessage)

		logEntries, err := s.Log(ctx, 10)
		require.NoError(t, err)
		require.Len(t, logEntries, 1)
		assert.Equal(t, "init users", logEntries[0].Message)
	})
}

func TestStore_CommitIsNoOpWhenNothingStaged(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(s *store.Store, conn *sql.DB) {
		ctx := context.Background()
		bootstrapMain(t, s)

		commitID, err := s.Commit(ctx, "empty", "tester", fixedNow)
		require.NoError(t, err)
		assert.Empty(t, commitID)
	})
}

func TestStore_CreateBranchAndCheckout(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(s *store.Store, conn *sql.DB) {
		ctx := context.Background()
		bootstrapMain(t, s)

		_, err := conn.ExecContext(ctx, `CREATE TABLE users (id integer)`)
		require.NoError(t, err)
		_, err = s.Commit(ctx, "init", "tester", fixedNow)
		require.NoError(t, err)

		_, err = s.CreateBranch(ctx, "feature", "main", "tester")
		require.NoError(t, err)

		head, err := s.Checkout(ctx, "feature", false, "tester")
		require.NoError(t, err)
		assert.Equal(t, "feature", head.CurrentBranch)
	})
}

func TestStore_ResetHardMovesRefAndMaterializes(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(s *store.Store, conn *sql.DB) {
		ctx := context.Background()
		bootstrapMain(t, s)

		_, err := conn.ExecContext(ctx, `CREATE TABLE users (id integer)`)
		require.NoError(t, err)
		c1, err := s.Commit(ctx, "c1", "tester", fixedNow)
		require.NoError(t, err)

		_, err = conn.ExecContext(ctx, `CREATE TABLE orders (id integer)`)
		require.NoError(t, err)
		_, err = s.Commit(ctx, "c2", "tester", fixedNow.Add(time.Minute))
		require.NoError(t, err)

		require.NoError(t, s.ResetHard(ctx, c1))

		var exists bool
		row := conn.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'orders')`)
		require.NoError(t, row.Scan(&exists))
		assert.False(t, exists, "reset_hard should have dropped orders, which was not part of c1's tree")
	})
}

func TestStore_ValidateSchemaReportsExcessiveFKs(t *testing.T) {
	testutils.WithStoreAndConnectionToContainer(t, func(s *store.Store, conn *sql.DB) {
		ctx := context.Background()
		_, err := conn.ExecContext(ctx, `CREATE TABLE hub (id integer PRIMARY KEY)`)
		require.NoError(t, err)
		for i := 0; i < 12; i++ {
			name := "spoke" + string(rune('a'+i))
			_, err := conn.ExecContext(ctx, `CREATE TABLE `+name+` (id integer PRIMARY KEY, hub_id integer REFERENCES hub(id))`)
			require.NoError(t, err)
		}

		issues, err := s.ValidateSchema(ctx)
		require.NoError(t, err)

		var found bool
		for _, issue := range issues {
			if issue.Kind == "EXCESSIVE_INCOMING_FKS" {
				found = true
			}
		}
		assert.True(t, found)
	})
}
