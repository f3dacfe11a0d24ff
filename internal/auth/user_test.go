package auth_test

import (
	"errors"
	"testing"

	. "github.com/tobsdb/rtable/internal/auth"
	"gotest.tools/assert"
)

func TestUser(t *testing.T) {
	u, err := NewUser("admin", "secret", RoleReadWrite)
	assert.NilError(t, err)
	assert.Assert(t, u.Id != "")
	assert.Assert(t, string(u.Password) != "secret")
	assert.Assert(t, u.ValidateUser("secret"))
	assert.Assert(t, !u.ValidateUser("Secret"))

	assert.Assert(t, u.HasClearance(RoleReadOnly))
	assert.Assert(t, u.HasClearance(RoleReadWrite))
	assert.Assert(t, !u.HasClearance(RoleAdmin))
}

func TestParseRole(t *testing.T) {
	for s, want := range map[string]Role{"admin": RoleAdmin, "rw": RoleReadWrite, "readonly": RoleReadOnly} {
		r, err := ParseRole(s)
		assert.NilError(t, err)
		assert.Equal(t, r, want)
	}
	_, err := ParseRole("root")
	assert.Assert(t, errors.Is(err, ErrUnknownRole))
	assert.Equal(t, RoleReadOnly.String(), "readonly")
}

func TestUsers(t *testing.T) {
	us := NewUsers()

	t.Run("open when empty", func(t *testing.T) {
		u := us.Authenticate("anyone", "")
		assert.Assert(t, u != nil)
		assert.Equal(t, u.Role, RoleAdmin)
	})

	u, err := NewUser("bob", "pw", RoleReadOnly)
	assert.NilError(t, err)
	assert.NilError(t, us.Add(u))
	assert.Assert(t, errors.Is(us.Add(u), ErrUserExists))
	assert.Equal(t, us.Len(), 1)

	assert.Equal(t, us.Authenticate("bob", "pw"), u)
	assert.Assert(t, us.Authenticate("bob", "nope") == nil)
	assert.Assert(t, us.Authenticate("alice", "pw") == nil)
}
