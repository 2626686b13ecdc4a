// SPDX-License-Identifier: Apache-2.0

// Package testutils provides the shared Postgres-container test harness
// used by every package that needs a live database.
package testutils

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/evoludigit/pggit/pkg/store"
)

var sharedContainer *postgres.PostgresContainer

// SharedTestMain starts one Postgres container for an entire test binary
// and tears it down after all tests run. Call it from a package's TestMain.
func SharedTestMain(m *testing.M) {
	ctx := context.Background()

	c, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("pggit_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		panic(fmt.Sprintf("starting postgres container: %v", err))
	}
	sharedContainer = c

	code := m.Run()

	_ = c.Terminate(ctx)
	_ = code
}

// WithConnectionToContainer opens a fresh connection against the shared
// container, drops and recreates the public schema so each test starts
// from a clean slate, and hands the caller both the *sql.DB and the raw
// connection string (needed by tests that open a second, independent
// connection to simulate concurrent sessions).
func WithConnectionToContainer(t *testing.T, fn func(conn *sql.DB, connStr string)) {
	t.Helper()
	ctx := context.Background()

	connStr, err := sharedContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	conn, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ExecContext(ctx, "DROP SCHEMA public CASCADE; CREATE SCHEMA public;")
	require.NoError(t, err)

	fn(conn, connStr)
}

// WithStoreAndConnectionToContainer initializes a pggit.Store against a
// fresh schema in the shared container and hands the caller both the
// store and the raw connection.
func WithStoreAndConnectionToContainer(t *testing.T, fn func(s *store.Store, conn *sql.DB)) {
	t.Helper()
	ctx := context.Background()

	WithConnectionToContainer(t, func(conn *sql.DB, connStr string) {
		s, err := store.New(ctx, connStr, "public", "pggit")
		require.NoError(t, err)
		defer s.Close()

		require.NoError(t, s.Init(ctx))

		fn(s, conn)
	})
}
