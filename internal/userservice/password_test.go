package userservice

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushihentaime/teamblog/internal/common"
)

func TestPasswordSetMatches(t *testing.T) {
	var p Password
	require.NoError(t, p.set("Password!23"))
	assert.Equal(t, "Password!23", p.Plain)

	testCases := []struct {
		name     string
		password string
		want     bool
	}{
		{name: "same password", password: "Password!23", want: true},
		{name: "different password", password: "Password!24", want: false},
		{name: "empty password", password: "", want: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := p.matches(tc.password)
			assert.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestPasswordTooLong(t *testing.T) {
	var p Password
	// 36 two-byte runes pass the character check but exceed bcrypt's limit.
	err := p.set(strings.Repeat("é", 36) + "A")

	assert.Equal(t, common.ValidationError{Errors: map[string]string{"password": "must not be more than 72 bytes long"}}, err)
	assert.Empty(t, p.Plain)
}

func TestPasswordErrors(t *testing.T) {
	var empty Password
	_, err := empty.matches("Password!23")
	assert.ErrorIs(t, err, errNoPasswordHash)

	corrupt := Password{hash: []byte("not a bcrypt hash")}
	_, err = corrupt.matches("Password!23")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "comparing password hash")
}
