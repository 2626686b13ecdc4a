// SPDX-License-Identifier: Apache-2.0

// Package refstore implements the Git-style ref/HEAD registry: mutable
// named pointers at commits, and the singleton HEAD row that tracks the
// current branch, current commit and working schema. It follows a
// row-based bookkeeping style, one table per concern, queried with
// lib/pq-quoted identifiers.
package refstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"

	"github.com/evoludigit/pggit/pkg/db"
	"github.com/evoludigit/pggit/pkg/objects"
)

// branchNameRE is the required branch/tag name format:
// ^[A-Za-z0-9/_-]+$.
var branchNameRE = regexp.MustCompile(`^[A-Za-z0-9/_-]+$`)

// ErrInvalidRefName is returned when a branch or tag name fails
// branchNameRE.
var ErrInvalidRefName = errors.New("ref name must match ^[A-Za-z0-9/_-]+$")

// ErrBranchExists is returned by CreateBranch on a name conflict.
var ErrBranchExists = errors.New("branch already exists")

// ErrSourceMissing is returned by CreateBranch when the source ref does
// not exist.
var ErrSourceMissing = errors.New("source ref does not exist")

// ErrRefNotFound is returned when a named ref does not exist.
var ErrRefNotFound = errors.New("ref not found")

// ErrTagImmutable is returned by any attempt to move a tag ref.
var ErrTagImmutable = errors.New("tags are immutable once created")

// RefType is the closed set of ref kinds.
type RefType string

const (
	RefBranch RefType = "branch"
	RefTag    RefType = "tag"
)

// Ref is one named pointer at a commit.
type Ref struct {
	Name      string
	Type      RefType
	Target    objects.ID
	CreatedBy string
	CreatedAt time.Time
}

// Head is the singleton HEAD row.
type Head struct {
	CurrentBranch     string
	CurrentCommitID   objects.ID
	WorkingSchemaName string
}

// Store persists refs and HEAD in the `<schema>.refs`/`<schema>.head`
// tables bootstrapped by pkg/store's init SQL.
type Store struct {
	conn         db.DB
	pggitSchema  string
}

// New wraps a db.DB connection for ref/HEAD bookkeeping.
func New(conn db.DB, pggitSchema string) *Store {
	return &Store{conn: conn, pggitSchema: pggitSchema}
}

func (s *Store) table(name string) string {
	return pq.QuoteIdentifier(s.pggitSchema) + "." + pq.QuoteIdentifier(name)
}

// ValidateName reports ErrInvalidRefName if name fails the required
// branch/tag name format.
func ValidateName(name string) error {
	if !branchNameRE.MatchString(name) {
		return fmt.Errorf("%w: got %q", ErrInvalidRefName, name)
	}
	return nil
}

// GetRef retrieves a ref by name.
func (s *Store) GetRef(ctx context.Context, name string) (*Ref, error) {
	row := s.conn.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT name, ref_type, target_commit_id, created_by, created_at FROM %s WHERE name = $1`,
		s.table("refs")), name)

	var r Ref
	var refType string
	if err := row.Scan(&r.Name, &refType, &r.Target, &r.CreatedBy, &r.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %q", ErrRefNotFound, name)
		}
		return nil, err
	}
	r.Type = RefType(refType)
	return &r, nil
}

// CreateBranch snapshots the source branch's current commit target and
// inserts a new branch ref. source defaults to the
// current branch when empty; callers resolve that via HEAD before
// calling in.
func (s *Store) CreateBranch(ctx context.Context, name, source, createdBy string) (*Ref, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	if _, err := s.GetRef(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrBranchExists, name)
	} else if !errors.Is(err, ErrRefNotFound) {
		return nil, err
	}

	srcRef, err := s.GetRef(ctx, source)
	if err != nil {
		if errors.Is(err, ErrRefNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrSourceMissing, source)
		}
		return nil, err
	}

	ref := &Ref{Name: name, Type: RefBranch, Target: srcRef.Target, CreatedBy: createdBy, CreatedAt: timeNow()}
	_, err = s.conn.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (name, ref_type, target_commit_id, created_by, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`,
		s.table("refs")), ref.Name, string(ref.Type), string(ref.Target), ref.CreatedBy, ref.CreatedAt)
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// InitBranch creates the very first branch ref in a repository, pointing
// at the sentinel null commit. Unlike CreateBranch it has no source ref
// to snapshot from; pkg/store calls this exactly once, during
// repository initialization.
func (s *Store) InitBranch(ctx context.Context, name, createdBy string) (*Ref, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if _, err := s.GetRef(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrBranchExists, name)
	} else if !errors.Is(err, ErrRefNotFound) {
		return nil, err
	}

	ref := &Ref{Name: name, Type: RefBranch, Target: objects.NullID, CreatedBy: createdBy, CreatedAt: timeNow()}
	_, err := s.conn.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (name, ref_type, target_commit_id, created_by, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`,
		s.table("refs")), ref.Name, string(ref.Type), string(ref.Target), ref.CreatedBy, ref.CreatedAt)
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// CreateTag creates an immutable tag pointing at target.
func (s *Store) CreateTag(ctx context.Context, name string, target objects.ID, createdBy string) (*Ref, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if _, err := s.GetRef(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrBranchExists, name)
	} else if !errors.Is(err, ErrRefNotFound) {
		return nil, err
	}

	ref := &Ref{Name: name, Type: RefTag, Target: target, CreatedBy: createdBy, CreatedAt: timeNow()}
	_, err := s.conn.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (name, ref_type, target_commit_id, created_by, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`,
		s.table("refs")), ref.Name, string(ref.Type), string(ref.Target), ref.CreatedBy, ref.CreatedAt)
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// MoveRef updates a branch ref's target commit. Moving a tag is rejected.
func (s *Store) MoveRef(ctx context.Context, name string, target objects.ID) error {
	ref, err := s.GetRef(ctx, name)
	if err != nil {
		return err
	}
	if ref.Type == RefTag {
		return fmt.Errorf("%w: %q", ErrTagImmutable, name)
	}

	_, err = s.conn.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET target_commit_id = $1, updated_at = $2 WHERE name = $3`,
		s.table("refs")), string(target), timeNow(), name)
	return err
}

// DeleteRef removes a branch ref. Tags are not deletable through this
// method; tag deletion is out of scope for the ref registry's
// mutability model.
func (s *Store) DeleteRef(ctx context.Context, name string) error {
	ref, err := s.GetRef(ctx, name)
	if err != nil {
		return err
	}
	if ref.Type == RefTag {
		return fmt.Errorf("%w: %q", ErrTagImmutable, name)
	}

	_, err = s.conn.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE name = $1`, s.table("refs")), name)
	return err
}

// ListRefs returns every ref of the given type, or every ref when
// refType is "".
func (s *Store) ListRefs(ctx context.Context, refType RefType) ([]*Ref, error) {
	query := fmt.Sprintf(`SELECT name, ref_type, target_commit_id, created_by, created_at FROM %s`, s.table("refs"))
	args := []interface{}{}
	if refType != "" {
		query += ` WHERE ref_type = $1`
		args = append(args, string(refType))
	}
	query += ` ORDER BY name`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ref
	for rows.Next() {
		var r Ref
		var refType string
		if err := rows.Scan(&r.Name, &refType, &r.Target, &r.CreatedBy, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Type = RefType(refType)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// GetHead reads the singleton HEAD row.
func (s *Store) GetHead(ctx context.Context) (*Head, error) {
	row := s.conn.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT current_branch, current_commit_id, working_schema_name FROM %s WHERE id`, s.table("head")))

	var h Head
	if err := row.Scan(&h.CurrentBranch, &h.CurrentCommitID, &h.WorkingSchemaName); err != nil {
		return nil, err
	}
	return &h, nil
}

// InitHead inserts the singleton HEAD row the first time a repository is
// initialized, pointing at the sentinel null commit on the given branch.
func (s *Store) InitHead(ctx context.Context, branch, workingSchemaName string) error {
	_, err := s.conn.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, current_branch, current_commit_id, working_schema_name) VALUES (true, $1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`,
		s.table("head")), branch, string(objects.NullID), workingSchemaName)
	return err
}

// Checkout switches HEAD to point at branchName's current target. It
// does not perform working-schema materialization; that is
// pkg/store.Store's job, since it must also drive pkg/planner.
func (s *Store) Checkout(ctx context.Context, branchName string) (*Head, error) {
	ref, err := s.GetRef(ctx, branchName)
	if err != nil {
		return nil, err
	}

	_, err = s.conn.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET current_branch = $1, current_commit_id = $2 WHERE id`,
		s.table("head")), branchName, string(ref.Target))
	if err != nil {
		return nil, err
	}
	return s.GetHead(ctx)
}

// AdvanceHead moves HEAD's current_commit_id forward after a commit/merge
// and moves the underlying branch ref to match.
func (s *Store) AdvanceHead(ctx context.Context, newCommit objects.ID) error {
	head, err := s.GetHead(ctx)
	if err != nil {
		return err
	}

	if err := s.MoveRef(ctx, head.CurrentBranch, newCommit); err != nil {
		return err
	}

	_, err = s.conn.ExecContext(ctx, fmt.Sprintf(
		`UPDATE %s SET current_commit_id = $1 WHERE id`, s.table("head")), string(newCommit))
	return err
}

var timeNow = time.Now
