// SPDX-License-Identifier: Apache-2.0

package refstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evoludigit/pggit/pkg/refstore"
)

func TestValidateName(t *testing.T) {
	valid := []string{"main", "feature/foo", "release-1-0", "a_b/c-D9"}
	for _, name := range valid {
		assert.NoErrorf(t, refstore.ValidateName(name), "expected %q to be valid", name)
	}
}

func TestValidateName_Rejects(t *testing.T) {
	invalid := []string{"", "has space", "has.dot", "has:colon", "émile"}
	for _, name := range invalid {
		assert.ErrorIsf(t, refstore.ValidateName(name), refstore.ErrInvalidRefName, "expected %q to be invalid", name)
	}
}
