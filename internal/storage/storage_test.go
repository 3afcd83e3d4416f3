package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanKey(t *testing.T) {
	testCases := []struct {
		name     string
		key      string
		expected string
		err      error
	}{
		{name: "simple", key: "attachments/a.png", expected: "attachments/a.png"},
		{name: "redundant segments", key: "attachments/./x/../a.png", expected: "attachments/a.png"},
		{name: "empty", key: "", err: ErrInvalidKey},
		{name: "absolute", key: "/etc/passwd", err: ErrInvalidKey},
		{name: "parent", key: "../secret", err: ErrInvalidKey},
		{name: "climbs out", key: "attachments/../../secret", err: ErrInvalidKey},
		{name: "backslash", key: `attachments\..\secret`, err: ErrInvalidKey},
		{name: "dot", key: ".", err: ErrInvalidKey},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := cleanKey(tc.key)
			assert.Equal(t, tc.err, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestNewKey(t *testing.T) {
	k1 := NewKey("attachments", "Report.PDF")
	k2 := NewKey("attachments", "Report.PDF")

	assert.True(t, strings.HasPrefix(k1, "attachments/"))
	assert.True(t, strings.HasSuffix(k1, ".pdf"))
	assert.NotEqual(t, k1, k2)

	assert.False(t, strings.Contains(NewKey("attachments", "noext"), "."))
	assert.False(t, strings.Contains(NewKey("attachments", "x.averyveryverylongext"), "."))
}
