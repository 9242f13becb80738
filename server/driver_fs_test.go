package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gonzalop/ftpd/auth"
)

func newTestDriver(t *testing.T) (*FSDriver, afero.Fs) {
	t.Helper()

	hash, err := auth.Hash("secret", bcrypt.MinCost)
	require.NoError(t, err)
	table := auth.NewTable(map[string]string{
		"alice":  hash,
		"nohome": hash,
	})

	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll("/srv/ftp/alice", 0o755))
	require.NoError(t, afero.WriteFile(base, "/srv/ftp/alice/a.txt", []byte("a"), 0o644))
	require.NoError(t, afero.WriteFile(base, "/srv/ftp/secret.txt", []byte("s"), 0o644))

	d, err := NewFSDriver("/srv/ftp/", table, WithBaseFs(base))
	require.NoError(t, err)
	return d, base
}

func TestNewFSDriver_Validation(t *testing.T) {
	tempDir := t.TempDir()
	file := filepath.Join(tempDir, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	creds := staticCreds{}

	tests := []struct {
		name    string
		root    string
		creds   Credentials
		wantErr bool
	}{
		{name: "valid root", root: tempDir, creds: creds},
		{name: "missing root", root: filepath.Join(tempDir, "missing"), creds: creds, wantErr: true},
		{name: "root is a file", root: file, creds: creds, wantErr: true},
		{name: "no credentials", root: tempDir, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewFSDriver(tt.root, tt.creds)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Clean(tt.root), d.Root())
		})
	}
}

func TestFSDriver_Authenticate(t *testing.T) {
	d, _ := newTestDriver(t)

	tests := []struct {
		name    string
		user    string
		pass    string
		wantErr bool
	}{
		{name: "valid", user: "alice", pass: "secret"},
		{name: "wrong password", user: "alice", pass: "nope", wantErr: true},
		{name: "unknown user", user: "mallory", pass: "secret", wantErr: true},
		{name: "missing home", user: "nohome", pass: "secret", wantErr: true},
		{name: "empty name", user: "", pass: "secret", wantErr: true},
		{name: "dot dot", user: "..", pass: "secret", wantErr: true},
		{name: "slash", user: "alice/../alice", pass: "secret", wantErr: true},
		{name: "backslash", user: `a\b`, pass: "secret", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, err := d.Authenticate(tt.user, tt.pass)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrLoginIncorrect)
				assert.Nil(t, fs)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, fs)
		})
	}
}

func TestFSDriver_HomeConfinement(t *testing.T) {
	d, base := newTestDriver(t)

	fs, err := d.Authenticate("alice", "secret")
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	_, err = fs.Stat("/../secret.txt")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/new.txt", []byte("n"), 0o644))
	ok, err := afero.Exists(base, "/srv/ftp/alice/new.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFSDriver_HomeDir(t *testing.T) {
	d, _ := newTestDriver(t)

	assert.Equal(t, "/srv/ftp", d.Root())
	assert.Equal(t, filepath.Join("/srv/ftp", "alice"), d.HomeDir("alice"))
	assert.True(t, d.HomeExists("alice"))
	assert.False(t, d.HomeExists("nohome"))
}
