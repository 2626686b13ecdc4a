// SPDX-License-Identifier: Apache-2.0

package store

// sqlInit bootstraps the pggit bookkeeping schema: the content-addressed
// blob/tree/commit tables (pkg/objects), the ref/HEAD registry
// (pkg/refstore), the operation lock table (pkg/control), the error log,
// and the conflict-resolution side table the merge engine consults. One
// CREATE SCHEMA plus idempotent CREATE TABLE IF NOT EXISTS statements,
// parameterized with %[1]s for the schema identifier. Init also passes
// the schema's quoted-literal form as a second argument, which the
// template does not use.
const sqlInit = `
CREATE SCHEMA IF NOT EXISTS %[1]s;

CREATE TABLE IF NOT EXISTS %[1]s.blobs (
	id				TEXT PRIMARY KEY,
	object_type		TEXT NOT NULL,
	schema_name		TEXT NOT NULL,
	object_name		TEXT NOT NULL,
	payload			JSONB NOT NULL,
	refcount		INTEGER NOT NULL DEFAULT 1,
	created_at		TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_access		TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS blobs_schema_name_idx ON %[1]s.blobs (schema_name, object_name);

CREATE TABLE IF NOT EXISTS %[1]s.trees (
	id				TEXT PRIMARY KEY,
	payload			JSONB NOT NULL,
	object_count	INTEGER NOT NULL,
	created_at		TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS %[1]s.commits (
	id				TEXT PRIMARY KEY,
	tree_id			TEXT NOT NULL REFERENCES %[1]s.trees(id),
	parents			TEXT[] NOT NULL DEFAULT '{}',
	payload			JSONB NOT NULL,
	created_at		TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS commits_tree_id_idx ON %[1]s.commits (tree_id);

CREATE TABLE IF NOT EXISTS %[1]s.refs (
	name			TEXT PRIMARY KEY CHECK (name ~ '^[A-Za-z0-9/_-]+$'),
	ref_type		TEXT NOT NULL CHECK (ref_type IN ('branch', 'tag')),
	target_commit_id TEXT NOT NULL,
	created_by		TEXT NOT NULL,
	created_at		TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at		TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS %[1]s.head (
	id					BOOLEAN PRIMARY KEY DEFAULT true CHECK (id),
	current_branch		TEXT NOT NULL,
	current_commit_id	TEXT NOT NULL,
	working_schema_name	TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS %[1]s.operation_locks (
	branch_name		TEXT PRIMARY KEY,
	locked_by		TEXT NOT NULL,
	locked_at		TIMESTAMPTZ NOT NULL DEFAULT now(),
	operation_kind	TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS %[1]s.error_log (
	id				BIGSERIAL PRIMARY KEY,
	error_kind		TEXT NOT NULL,
	severity		TEXT NOT NULL,
	branch_name		TEXT,
	message			TEXT NOT NULL,
	details			JSONB NOT NULL DEFAULT '{}'::jsonb,
	occurred_at		TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS %[1]s.conflict_resolutions (
	id				BIGSERIAL PRIMARY KEY,
	merge_commit_id	TEXT,
	path			TEXT NOT NULL,
	resolution		TEXT NOT NULL,
	resolved_blob_id TEXT,
	resolved_by		TEXT NOT NULL,
	resolved_at		TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- Deduplicated blob storage with transparent compression: keyed by raw content hash, logically
-- separate from the blobs table above so it can be disabled without
-- affecting the object graph's correctness.
CREATE TABLE IF NOT EXISTS %[1]s.blob_storage (
	content_hash	TEXT PRIMARY KEY,
	compressed		BOOLEAN NOT NULL DEFAULT false,
	raw_content		BYTEA NOT NULL,
	refcount		INTEGER NOT NULL DEFAULT 1,
	last_access		TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
