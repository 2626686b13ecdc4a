// SPDX-License-Identifier: Apache-2.0

package objects

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// TreeEntry is one `(path, mode, blob_id)` row in a Tree.
type TreeEntry struct {
	Path   string `json:"path"`
	Mode   string `json:"mode"`
	BlobID ID     `json:"blobId"`
}

// Tree is the content-addressed, ordered set of blob references that
// together describe the full schema state at one moment.
type Tree struct {
	ID ID `json:"id"`

	Entries     []TreeEntry `json:"blobs"`
	ObjectCount int         `json:"object_count"`

	// IncrementalParent, when set, marks this tree as an incremental
	// tree recording only blobs that differ from the named parent tree.
	IncrementalParent *ID `json:"incremental_parent,omitempty"`
}

type treeHashPayload struct {
	Blobs             []ID `json:"blobs"`
	ObjectCount       int  `json:"object_count"`
	IncrementalParent *ID  `json:"incremental_parent,omitempty"`
}

// HashTree computes the bit-exact tree id: the SHA-256 hex digest over the
// JSON {blobs: sorted(blob_ids), object_count, incremental_parent?}.
func HashTree(blobIDs []ID, objectCount int, incrementalParent *ID) (ID, error) {
	sorted := append([]ID(nil), blobIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	payload := treeHashPayload{
		Blobs:             sorted,
		ObjectCount:       objectCount,
		IncrementalParent: incrementalParent,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal tree payload: %w", err)
	}

	h := sha256.Sum256(b)
	return ID(hex.EncodeToString(h[:])), nil
}

// NewTree builds a Tree from a set of blobs, sorting entries
// deterministically by (schema, name) so iteration order is stable.
func NewTree(blobs []*Blob, incrementalParent *ID) (*Tree, error) {
	entries := make([]TreeEntry, 0, len(blobs))
	ids := make([]ID, 0, len(blobs))
	for _, b := range blobs {
		entries = append(entries, TreeEntry{
			Path:   b.Path(),
			Mode:   string(b.ObjectType),
			BlobID: b.ID,
		})
		ids = append(ids, b.ID)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	id, err := HashTree(ids, len(entries), incrementalParent)
	if err != nil {
		return nil, err
	}

	return &Tree{
		ID:                id,
		Entries:           entries,
		ObjectCount:       len(entries),
		IncrementalParent: incrementalParent,
	}, nil
}

// BlobIDs returns the (unsorted, iteration-order) list of blob ids in the tree.
func (t *Tree) BlobIDs() []ID {
	ids := make([]ID, len(t.Entries))
	for i, e := range t.Entries {
		ids[i] = e.BlobID
	}
	return ids
}

// Lookup returns the blob id for a given path, or "" if the path is absent.
func (t *Tree) Lookup(path string) (ID, bool) {
	for _, e := range t.Entries {
		if e.Path == path {
			return e.BlobID, true
		}
	}
	return "", false
}

// ErrMissingBlob is returned by a BlobStore-backed builder when a tree
// references a blob id that doesn't exist.
type ErrMissingBlob struct {
	BlobID ID
}

func (e ErrMissingBlob) Error() string {
	return fmt.Sprintf("tree references missing blob %q", e.BlobID)
}
