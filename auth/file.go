package auth

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// usersFile is the on-disk layout of a users file:
//
//	users:
//	  alice: $2a$10$...
//	  bob: $2a$10$...
type usersFile struct {
	Users map[string]string `yaml:"users"`
}

// LoadFile reads a users file and checks every entry.
// All invalid entries are reported together.
func LoadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}

	var f usersFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse users file %s: %w", path, err)
	}

	if err := ValidateUsers(f.Users); err != nil {
		return nil, fmt.Errorf("invalid users file %s: %w", path, err)
	}
	if f.Users == nil {
		f.Users = map[string]string{}
	}
	return f.Users, nil
}

// SaveFile writes users to path, replacing the file atomically.
func SaveFile(path string, users map[string]string) error {
	data, err := yaml.Marshal(usersFile{Users: users})
	if err != nil {
		return fmt.Errorf("failed to marshal users: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".users-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write users file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write users file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// ValidateUsers checks user names and password hashes.
func ValidateUsers(users map[string]string) error {
	var result *multierror.Error
	for name, hash := range users {
		if !ValidUserName(name) {
			result = multierror.Append(result, fmt.Errorf("user %q: invalid name", name))
			continue
		}
		if err := checkHash(hash); err != nil {
			result = multierror.Append(result, fmt.Errorf("user %q: %w", name, err))
		}
	}
	return result.ErrorOrNil()
}

// ValidUserName reports whether name can be used as a home directory name.
func ValidUserName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`)
}
