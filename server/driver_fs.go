package server

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/gonzalop/ftpd/auth"
)

// FSDriver implements Driver on top of an afero filesystem.
//
// Security Model:
//   - Every user lives in <root>/<username>
//   - A user without an existing home directory cannot log in
//   - The session only sees an afero.BasePathFs rooted at the home
//     directory, so no path can reach outside it
//
// The base filesystem is afero.NewOsFs() in production; tests use
// afero.NewMemMapFs().
type FSDriver struct {
	base  afero.Fs
	root  string
	creds Credentials
}

// FSDriverOption is a functional option for configuring an FSDriver.
type FSDriverOption func(*FSDriver)

// WithBaseFs replaces the operating system filesystem with fs.
//
// Example:
//
//	mem := afero.NewMemMapFs()
//	_ = mem.MkdirAll("/srv/ftp/alice", 0o755)
//	driver, _ := server.NewFSDriver("/srv/ftp", table, server.WithBaseFs(mem))
func WithBaseFs(fs afero.Fs) FSDriverOption {
	return func(d *FSDriver) {
		d.base = fs
	}
}

// NewFSDriver creates a driver serving per-user directories below root.
// Returns an error if root does not exist or is not a directory.
//
// Basic usage:
//
//	table := auth.NewTable(map[string]string{"alice": "$2a$10$..."})
//	driver, err := server.NewFSDriver("/srv/ftp", table)
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewFSDriver(root string, creds Credentials, options ...FSDriverOption) (*FSDriver, error) {
	d := &FSDriver{
		base:  afero.NewOsFs(),
		root:  filepath.Clean(root),
		creds: creds,
	}
	for _, opt := range options {
		opt(d)
	}

	if creds == nil {
		return nil, fmt.Errorf("credentials are required")
	}

	ok, err := afero.IsDir(d.base, d.root)
	if err != nil {
		return nil, fmt.Errorf("root path validation failed: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("root path is not a directory: %s", d.root)
	}

	return d, nil
}

// Root returns the directory holding the user homes.
func (d *FSDriver) Root() string {
	return d.root
}

// HomeDir returns the home directory of user.
func (d *FSDriver) HomeDir(user string) string {
	return filepath.Join(d.root, user)
}

// HomeExists reports whether user's home directory exists.
func (d *FSDriver) HomeExists(user string) bool {
	ok, err := afero.DirExists(d.base, d.HomeDir(user))
	return err == nil && ok
}

// Authenticate checks the password, then the home directory.
func (d *FSDriver) Authenticate(user, pass string) (afero.Fs, error) {
	if !auth.ValidUserName(user) {
		return nil, fmt.Errorf("%w: invalid user name", ErrLoginIncorrect)
	}
	if !d.creds.Verify(user, pass) {
		return nil, fmt.Errorf("%w: bad credentials", ErrLoginIncorrect)
	}
	if !d.HomeExists(user) {
		return nil, fmt.Errorf("%w: home directory missing", ErrLoginIncorrect)
	}
	return afero.NewBasePathFs(d.base, d.HomeDir(user)), nil
}
