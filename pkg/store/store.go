// SPDX-License-Identifier: Apache-2.0

// Package store is the top-level façade tying the object store
// (pkg/objects), the ref/HEAD registry (pkg/refstore), the catalog
// reader (pkg/catalog), the diff engine (pkg/schemadiff), the merge
// engine (pkg/merge), the migration planner (pkg/planner) and the
// operation controller (pkg/control) into the public verb set:
// create_branch, checkout, stage_changes, commit, status, log, diff,
// merge, reset_hard, revert_commit, apply_tree_state,
// analyze_dependency_impact, validate_schema, gc.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/evoludigit/pggit/internal/connstr"
	"github.com/evoludigit/pggit/pkg/canon"
	"github.com/evoludigit/pggit/pkg/catalog"
	"github.com/evoludigit/pggit/pkg/control"
	pggitdb "github.com/evoludigit/pggit/pkg/db"
	"github.com/evoludigit/pggit/pkg/objects"
	"github.com/evoludigit/pggit/pkg/refstore"
)

// defaultLockedBy names the lock holder for verbs that carry no
// explicit actor/author argument of their own.
const defaultLockedBy = "pggit"

// Store is the façade every pggit verb hangs off of.
type Store struct {
	conn         *sql.DB
	db           pggitdb.DB
	workingSchema string
	pggitSchema  string

	Objects    *objects.Store
	Refs       *refstore.Store
	Catalog    catalog.Reader
	Canon      *canon.Canonicalizer
	Controller *control.Controller
}

// New opens a connection to connStr and wires up every component
// against the given working schema (the live schema pggit tracks) and
// pggit's own bookkeeping schema.
func New(ctx context.Context, rawConnStr, workingSchema, pggitSchema string) (*Store, error) {
	connStrWithPath, err := connstr.AppendSearchPathOption(rawConnStr, workingSchema)
	if err != nil {
		return nil, fmt.Errorf("setting search_path: %w", err)
	}

	conn, err := sql.Open("postgres", connStrWithPath)
	if err != nil {
		return nil, fmt.Errorf("opening connection: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	rdb := &pggitdb.RDB{DB: conn}

	s := &Store{
		conn:          conn,
		db:            rdb,
		workingSchema: workingSchema,
		pggitSchema:   pggitSchema,
		Objects:       objects.NewStore(rdb, pggitSchema),
		Refs:          refstore.New(rdb, pggitSchema),
		Catalog:       catalog.NewPgReader(rdb),
		Canon:         canon.New(),
	}
	s.Controller = control.New(rdb, pggitSchema, control.DefaultClassifier)
	return s, nil
}

// Init bootstraps the pggit bookkeeping schema.
func (s *Store) Init(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, fmt.Sprintf(sqlInit, pq.QuoteIdentifier(s.pggitSchema), pq.QuoteLiteral(s.pggitSchema)))
	if err != nil {
		return fmt.Errorf("initializing pggit schema: %w", err)
	}

	return tx.Commit()
}

// Close closes the underlying connection.
func (s *Store) Close() error { return s.conn.Close() }

// DB exposes the underlying retrying db.DB, for components built
// directly against it (pkg/refstore's tests, pkg/planner's applier).
func (s *Store) DB() pggitdb.DB { return s.db }

// PggitSchema returns the schema pggit's own bookkeeping tables live in.
func (s *Store) PggitSchema() string { return s.pggitSchema }

// WorkingSchema returns the live schema pggit tracks and materializes
// checkouts into.
func (s *Store) WorkingSchema() string { return s.workingSchema }
