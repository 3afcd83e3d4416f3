package userservice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActorID(t *testing.T) {
	testCases := []struct {
		name string
		user *User
		want string
	}{
		{name: "nil user", user: nil, want: ""},
		{name: "anonymous user", user: &AnonymousUser, want: ""},
		{name: "known user", user: &User{ID: "1c5c3e4a-6f1e-4f43-9d0b-4d8f5d1e2a10"}, want: "1c5c3e4a-6f1e-4f43-9d0b-4d8f5d1e2a10"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.user.ActorID())
		})
	}
}

func TestIsAnonymousComparesIdentity(t *testing.T) {
	empty := User{}

	assert.True(t, AnonymousUser.IsAnonymous())
	assert.False(t, empty.IsAnonymous())
}

func TestHasPermission(t *testing.T) {
	u := User{Permissions: Permissions{PermissionWriteBlog}}

	assert.True(t, u.HasPermission(PermissionWriteBlog))
	assert.False(t, u.HasPermission(Permission("blog:admin")))
	assert.False(t, (&User{}).HasPermission(PermissionWriteBlog))
}
