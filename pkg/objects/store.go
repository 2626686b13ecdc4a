// SPDX-License-Identifier: Apache-2.0

package objects

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/evoludigit/pggit/pkg/db"
)

// Store persists blobs, trees and commits in the `<schema>.blobs`,
// `<schema>.trees` and `<schema>.commits` tables bootstrapped by
// pkg/store's init SQL. It never mutates a row once written.
type Store struct {
	conn       db.DB
	pggitSchema string
}

// NewStore wraps a db.DB connection for use as an object store. pggitSchema
// is the schema pggit's own bookkeeping tables live in (distinct from the
// user schema being versioned).
func NewStore(conn db.DB, pggitSchema string) *Store {
	return &Store{conn: conn, pggitSchema: pggitSchema}
}

func (s *Store) table(name string) string {
	return pq.QuoteIdentifier(s.pggitSchema) + "." + pq.QuoteIdentifier(name)
}

// PutBlob stores a blob idempotently: storing the same content twice
// bumps its refcount instead of inserting a duplicate row.
func (s *Store) PutBlob(ctx context.Context, b *Blob) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshal blob: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, object_type, schema_name, object_name, payload, refcount)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (id) DO UPDATE SET refcount = %[1]s.refcount + 1, last_access = now()
	`, s.table("blobs")), string(b.ID), string(b.ObjectType), b.Schema, b.Name, payload)
	return err
}

// GetBlob retrieves a blob by id.
func (s *Store) GetBlob(ctx context.Context, id ID) (*Blob, error) {
	row := s.conn.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT payload FROM %s WHERE id = $1`, s.table("blobs")), string(id))

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("blob %q not found", id)
		}
		return nil, err
	}

	var b Blob
	if err := json.Unmarshal(payload, &b); err != nil {
		return nil, fmt.Errorf("unmarshal blob: %w", err)
	}
	return &b, nil
}

// PutTree stores a tree, failing with ErrMissingBlob if any referenced
// blob id is absent.
func (s *Store) PutTree(ctx context.Context, t *Tree) error {
	for _, e := range t.Entries {
		if _, err := s.GetBlob(ctx, e.BlobID); err != nil {
			return ErrMissingBlob{BlobID: e.BlobID}
		}
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal tree: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, payload, object_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, s.table("trees")), string(t.ID), payload, t.ObjectCount)
	return err
}

// GetTree retrieves a tree by id.
func (s *Store) GetTree(ctx context.Context, id ID) (*Tree, error) {
	row := s.conn.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT payload FROM %s WHERE id = $1`, s.table("trees")), string(id))

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("tree %q not found", id)
		}
		return nil, err
	}

	var t Tree
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("unmarshal tree: %w", err)
	}
	return &t, nil
}

// PutCommit stores a commit, enforcing that its tree and parents already
// exist before the commit itself is persisted. A byte-identical replay
// (same computed id already present) returns the existing id without
// error.
func (s *Store) PutCommit(ctx context.Context, c *Commit) (ID, error) {
	if existing, err := s.GetCommit(ctx, c.ID); err == nil && existing != nil {
		return c.ID, nil
	}

	if _, err := s.GetTree(ctx, c.TreeID); err != nil {
		return "", fmt.Errorf("commit references missing tree %q: %w", c.TreeID, err)
	}
	for _, p := range c.Parents {
		if _, err := s.GetCommit(ctx, p); err != nil {
			return "", fmt.Errorf("commit references missing parent %q: %w", p, err)
		}
	}
	if c.MergeBaseID != nil {
		if _, err := s.GetCommit(ctx, *c.MergeBaseID); err != nil {
			return "", fmt.Errorf("commit references missing merge base %q: %w", *c.MergeBaseID, err)
		}
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal commit: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, tree_id, parents, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, s.table("commits")), string(c.ID), string(c.TreeID), pq.Array(idsToStrings(c.Parents)), payload, c.CommittedAt)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

// GetCommit retrieves a commit by id.
func (s *Store) GetCommit(ctx context.Context, id ID) (*Commit, error) {
	if id == "" || id == NullID {
		return nil, fmt.Errorf("commit %q not found", id)
	}
	row := s.conn.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT payload FROM %s WHERE id = $1`, s.table("commits")), string(id))

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("commit %q not found", id)
		}
		return nil, err
	}

	var c Commit
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("unmarshal commit: %w", err)
	}
	return &c, nil
}

// ListBlobIDs returns every blob id currently stored, used by the garbage
// collector's mark-and-sweep pass.
func (s *Store) ListBlobIDs(ctx context.Context) ([]ID, error) {
	return s.listIDs(ctx, "blobs")
}

// ListTreeIDs returns every tree id currently stored.
func (s *Store) ListTreeIDs(ctx context.Context) ([]ID, error) {
	return s.listIDs(ctx, "trees")
}

// ListCommitIDs returns every commit id currently stored.
func (s *Store) ListCommitIDs(ctx context.Context) ([]ID, error) {
	return s.listIDs(ctx, "commits")
}

func (s *Store) listIDs(ctx context.Context, table string) ([]ID, error) {
	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM %s`, s.table(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, ID(id))
	}
	return out, rows.Err()
}

// DeleteCommits removes commits by id. The caller is responsible for
// proving none of the ids are reachable from any ref before calling this;
// the object store itself enforces no reachability invariant.
func (s *Store) DeleteCommits(ctx context.Context, ids []ID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.conn.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table("commits")),
		pq.Array(idsToStrings(ids)))
	return err
}

// DeleteTrees removes trees by id. Callers must first delete any commit
// still referencing a tree, since commits.tree_id is a foreign key into
// this table.
func (s *Store) DeleteTrees(ctx context.Context, ids []ID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.conn.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table("trees")),
		pq.Array(idsToStrings(ids)))
	return err
}

// DeleteBlobs removes blobs by id.
func (s *Store) DeleteBlobs(ctx context.Context, ids []ID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.conn.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table("blobs")),
		pq.Array(idsToStrings(ids)))
	return err
}

func idsToStrings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
