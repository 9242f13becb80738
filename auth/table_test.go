package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := Hash(password, bcrypt.MinCost)
	require.NoError(t, err)
	return hash
}

func TestTableVerify(t *testing.T) {
	table := NewTable(map[string]string{
		"alice": mustHash(t, "wonderland"),
		"bob":   mustHash(t, "builder"),
	})

	tests := []struct {
		name     string
		user     string
		password string
		want     bool
	}{
		{"correct password", "alice", "wonderland", true},
		{"second user", "bob", "builder", true},
		{"wrong password", "alice", "builder", false},
		{"empty password", "alice", "", false},
		{"unknown user", "carol", "wonderland", false},
		{"empty user", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Verify(tt.user, tt.password))
		})
	}
}

func TestTableReplace(t *testing.T) {
	users := map[string]string{"alice": mustHash(t, "one")}
	table := NewTable(users)

	// The table keeps its own copy.
	users["mallory"] = mustHash(t, "evil")
	assert.False(t, table.Verify("mallory", "evil"))
	assert.Equal(t, 1, table.Len())

	table.Replace(map[string]string{"bob": mustHash(t, "two")})
	assert.False(t, table.Verify("alice", "one"))
	assert.True(t, table.Verify("bob", "two"))
	assert.Equal(t, []string{"bob"}, table.Users())
}

func TestTableUsersSorted(t *testing.T) {
	table := NewTable(map[string]string{"carol": "x", "alice": "y", "bob": "z"})
	assert.Equal(t, []string{"alice", "bob", "carol"}, table.Users())

	hash, ok := table.Lookup("bob")
	assert.True(t, ok)
	assert.Equal(t, "z", hash)
}

func TestHash(t *testing.T) {
	hash, err := Hash("secret", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, checkHash(hash))
	assert.NotEqual(t, "secret", hash)

	_, err = Hash("", bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrEmptyPassword)

	_, err = Hash(string(make([]byte, MaxPasswordLength+1)), bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
