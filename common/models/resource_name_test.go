package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourceNameValidate(t *testing.T) {
	tests := []struct {
		name    string
		valid   bool
		comment string
	}{
		{"test", true, "simple name"},
		{"lint-advisory", true, "dashes allowed"},
		{"python_3_9", true, "underscores and digits allowed"},
		{"", false, "empty name"},
		{"has space", false, "spaces not allowed"},
		{"has.dot", false, "dots not allowed"},
		{strings.Repeat("a", 100), true, "at max length"},
		{strings.Repeat("a", 101), false, "over max length"},
	}
	for _, test := range tests {
		t.Run(test.comment, func(t *testing.T) {
			assert.Equal(t, test.valid, ResourceName(test.name).Valid())
		})
	}
}

func TestResourceIDRoundTrip(t *testing.T) {
	id := NewResourceID(BuildResourceKind)
	assert.False(t, id.IsZero())

	parsed, err := ParseResourceID(id.String())
	assert.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Equal(t, BuildResourceKind, parsed.Kind())

	_, err = ParseResourceID("no-separator")
	assert.Error(t, err)
}
