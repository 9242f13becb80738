// Package auth holds the static credential table used to log FTP users in.
package auth

import (
	"slices"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Table maps user names to bcrypt password hashes.
//
// Lookups are safe for concurrent use. The whole map is swapped by Replace,
// so sessions never see a half-loaded table.
type Table struct {
	mu    sync.RWMutex
	users map[string]string
}

// NewTable returns a table holding a copy of users.
func NewTable(users map[string]string) *Table {
	t := &Table{}
	t.Replace(users)
	return t
}

// Verify reports whether password matches the stored hash for user.
// Unknown users never verify.
func (t *Table) Verify(user, password string) bool {
	hash, ok := t.Lookup(user)
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Lookup returns the stored hash for user.
func (t *Table) Lookup(user string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	hash, ok := t.users[user]
	return hash, ok
}

// Users returns the configured user names, sorted.
func (t *Table) Users() []string {
	t.mu.RLock()
	names := make([]string, 0, len(t.users))
	for name := range t.users {
		names = append(names, name)
	}
	t.mu.RUnlock()

	slices.Sort(names)
	return names
}

// Len returns the number of users.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}

// Replace swaps the table contents for a copy of users.
func (t *Table) Replace(users map[string]string) {
	next := make(map[string]string, len(users))
	for name, hash := range users {
		next[name] = hash
	}

	t.mu.Lock()
	t.users = next
	t.mu.Unlock()
}
