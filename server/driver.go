package server

import (
	"errors"

	"github.com/spf13/afero"
)

// ErrLoginIncorrect is returned by a Driver when the credentials do not
// match or the user's home directory is missing.
var ErrLoginIncorrect = errors.New("login incorrect")

// Driver authenticates users and hands out their confined filesystem.
//
// Implementations should:
//   - Check the password against the stored credential for user
//   - Verify the user's root directory exists
//   - Return a filesystem whose "/" is that root directory
//
// The returned afero.Fs is used by exactly one session.
type Driver interface {
	// Authenticate validates user and pass.
	//
	// Returns:
	//   - afero.Fs: The user's filesystem, rooted at their home directory
	//   - error: ErrLoginIncorrect (or a wrapped form) on failure
	Authenticate(user, pass string) (afero.Fs, error)
}

// Credentials is the static credential table consulted by FSDriver.
// *auth.Table satisfies it.
type Credentials interface {
	// Verify reports whether pass matches the stored hash for user.
	// Unknown users never verify.
	Verify(user, pass string) bool
}

// Settings configures passive mode.
//
// These settings are shared by all sessions.
type Settings struct {
	// PublicHost is the IPv4 address or hostname advertised in PASV replies.
	// If empty, the control connection's local address is used.
	PublicHost string

	// PasvMinPort is the minimum port number for passive listeners.
	// If 0, the OS assigns an ephemeral port.
	PasvMinPort int

	// PasvMaxPort is the maximum port number for passive listeners.
	// Must be >= PasvMinPort if both are set.
	PasvMaxPort int
}
