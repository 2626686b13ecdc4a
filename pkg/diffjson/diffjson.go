// SPDX-License-Identifier: Apache-2.0

// Package diffjson renders a coarse diff as JSON and validates the
// result against a fixed schema, so a caller piping pggit diff output
// into another tool can trust its shape without re-deriving it.
package diffjson

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/evoludigit/pggit/pkg/schemadiff"
)

const schemaURL = "pggit://schema/diff.json"

const schemaDoc = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "pggit://schema/diff.json",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["kind", "path"],
    "properties": {
      "kind": {"type": "string", "enum": ["ADD", "MODIFY", "DELETE"]},
      "path": {"type": "string"},
      "old_hash": {"type": "string"},
      "new_hash": {"type": "string"}
    },
    "additionalProperties": false
  }
}`

// Entry is one row of diff output, serialized as JSON.
type Entry struct {
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	OldHash string `json:"old_hash,omitempty"`
	NewHash string `json:"new_hash,omitempty"`
}

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, strings.NewReader(schemaDoc)); err != nil {
		return nil, fmt.Errorf("registering diff output schema: %w", err)
	}
	return c.Compile(schemaURL)
}

// Marshal renders changes as indented JSON and validates it against the
// package schema before returning it.
func Marshal(changes []schemadiff.CoarseChange) ([]byte, error) {
	entries := make([]Entry, len(changes))
	for i, c := range changes {
		entries[i] = Entry{
			Kind:    string(c.Kind),
			Path:    c.Path,
			OldHash: string(c.OldHash),
			NewHash: string(c.NewHash),
		}
	}

	out, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling diff output: %w", err)
	}

	sch, err := compileSchema()
	if err != nil {
		return nil, err
	}

	var instance any
	if err := json.Unmarshal(out, &instance); err != nil {
		return nil, fmt.Errorf("decoding diff output for validation: %w", err)
	}
	if err := sch.Validate(instance); err != nil {
		return nil, fmt.Errorf("diff output failed schema validation: %w", err)
	}

	return out, nil
}
