package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatorCheckID(t *testing.T) {
	testCases := []struct {
		name    string
		id      string
		wantErr string
	}{
		{name: "valid", id: NewID()},
		{name: "empty", id: "", wantErr: "must be provided"},
		{name: "malformed", id: "not-a-uuid", wantErr: "must be a valid id"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := NewValidator()
			v.CheckID(tc.id, "blog_id")

			if tc.wantErr == "" {
				assert.True(t, v.Valid())
				return
			}
			assert.Equal(t, map[string]string{"blog_id": tc.wantErr}, v.Errors)
		})
	}
}

func TestValidatorKeepsFirstError(t *testing.T) {
	v := NewValidator()
	v.Check(false, "title", "must be provided")
	v.Check(false, "title", "must be between 3 and 200 characters long")

	assert.Equal(t, ValidationError{Errors: map[string]string{"title": "must be provided"}}, v.ValidationError())
}

func TestCheckStringLengthCountsRunes(t *testing.T) {
	v := NewValidator()

	assert.True(t, v.CheckStringLength("Блог", 3, 4))
	assert.False(t, v.CheckStringLength("ab", 3, 4))
}

func TestPermittedValue(t *testing.T) {
	assert.True(t, PermittedValue("public", "public", "private"))
	assert.False(t, PermittedValue("draft", "public", "private"))
}
