// SPDX-License-Identifier: Apache-2.0

// Package objects implements the content-addressed blob/tree/commit graph:
// the only mutation these types ever see is creation, and every id is the
// SHA-256 hash of the object's canonical serialization.
package objects

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// ObjectType is the closed tagged-variant of schema object kinds. Only
// the types marked first-class are hashable by pkg/canon; the others are
// stored opaquely (raw text, no canonicalization, no component hashes).
type ObjectType string

const (
	ObjectTable             ObjectType = "TABLE"
	ObjectView              ObjectType = "VIEW"
	ObjectMaterializedView  ObjectType = "MATERIALIZED_VIEW"
	ObjectFunction          ObjectType = "FUNCTION"
	ObjectProcedure         ObjectType = "PROCEDURE"
	ObjectTrigger           ObjectType = "TRIGGER"
	ObjectIndex             ObjectType = "INDEX"
	ObjectConstraint        ObjectType = "CONSTRAINT"
	ObjectTypeKind          ObjectType = "TYPE"
	ObjectSequence          ObjectType = "SEQUENCE"
	ObjectPartition         ObjectType = "PARTITION"
	ObjectSchema            ObjectType = "SCHEMA"
)

// firstClass are the object kinds pkg/canon knows how to canonicalize and
// hash with component hashes.
var firstClass = map[ObjectType]bool{
	ObjectTable:            true,
	ObjectView:             true,
	ObjectMaterializedView: true,
	ObjectFunction:         true,
	ObjectProcedure:        true,
	ObjectIndex:            true,
	ObjectSequence:         true,
}

// IsFirstClass reports whether the object type is supported for hashing
// and canonicalization, or must be stored opaquely.
func (t ObjectType) IsFirstClass() bool { return firstClass[t] }

// ComponentHashes holds optional per-category hashes for TABLE blobs,
// letting the coarse diff pinpoint sub-category changes without
// rehashing the full canonical text.
type ComponentHashes struct {
	StructureHash   string `json:"structureHash,omitempty"`
	ConstraintsHash string `json:"constraintsHash,omitempty"`
	IndexesHash     string `json:"indexesHash,omitempty"`
}

// Blob is the content-addressed, normalized definition of a single schema
// object.
type Blob struct {
	ID ID `json:"id"`

	ObjectType ObjectType `json:"objectType"`
	Schema     string     `json:"schema"`
	Name       string     `json:"name"`

	// CanonicalDefinition is the normalized DDL text produced by
	// pkg/canon. For non-first-class object kinds this is simply the
	// raw definition, stored opaquely.
	CanonicalDefinition string `json:"canonicalDefinition"`

	// Dependencies is the set of qualified names this object declares
	// it depends on. It is stored and returned (and carried into
	// auto-merged blobs by pkg/merge); pkg/depgraph builds its graph
	// from the catalog and does not read it.
	Dependencies []string `json:"dependencies,omitempty"`

	// AST is an optional structured fragment a caller may attach;
	// pggit does not interpret it beyond storing/returning it.
	AST json.RawMessage `json:"ast,omitempty"`

	Components *ComponentHashes `json:"components,omitempty"`
}

// ID is a SHA-256 hex digest. Every object kind in this package (Blob,
// Tree, Commit) identifies itself with one.
type ID string

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// objectTypeTag is the leading tag byte mixed into a blob id:
// id = SHA-256 hex over object_type_tag || canonical_text.
// Tags are stable across releases since they are persisted inside hashes.
var objectTypeTag = map[ObjectType]byte{
	ObjectTable:            0x01,
	ObjectView:             0x02,
	ObjectMaterializedView: 0x03,
	ObjectFunction:         0x04,
	ObjectProcedure:        0x05,
	ObjectTrigger:          0x06,
	ObjectIndex:            0x07,
	ObjectConstraint:       0x08,
	ObjectTypeKind:         0x09,
	ObjectSequence:         0x0a,
	ObjectPartition:        0x0b,
	ObjectSchema:           0x0c,
}

// HashBlob computes the bit-exact blob id for a canonical text and object
// type. It is exported so pkg/canon (which owns canonicalization) and
// pkg/objects (which owns storage) can agree on the exact same hash
// without a cyclic package dependency.
func HashBlob(objectType ObjectType, canonicalText string) ID {
	h := sha256.New()
	h.Write([]byte{objectTypeTag[objectType]})
	h.Write([]byte(canonicalText))
	return ID(hex.EncodeToString(h.Sum(nil)))
}

// NewBlob constructs a Blob with its ID already computed, ready for the
// store to persist via Store.PutBlob.
func NewBlob(objectType ObjectType, schemaName, name, canonicalText string, deps []string, components *ComponentHashes) *Blob {
	return &Blob{
		ID:                  HashBlob(objectType, canonicalText),
		ObjectType:          objectType,
		Schema:              schemaName,
		Name:                name,
		CanonicalDefinition: canonicalText,
		Dependencies:        deps,
		Components:          components,
	}
}

// Path returns the "schema.name" path used as the tree entry key.
func (b *Blob) Path() string {
	if b.Schema == "" {
		return b.Name
	}
	return b.Schema + "." + b.Name
}
