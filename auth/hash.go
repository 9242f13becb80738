package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost used by Hash callers that have no
// preference.
const DefaultCost = bcrypt.DefaultCost

// MaxPasswordLength is the longest password bcrypt accepts.
const MaxPasswordLength = 72

var (
	// ErrEmptyPassword is returned when hashing an empty password.
	ErrEmptyPassword = errors.New("password must not be empty")

	// ErrPasswordTooLong is returned for passwords bcrypt would truncate.
	ErrPasswordTooLong = fmt.Errorf("password must be at most %d bytes", MaxPasswordLength)
)

// Hash returns the bcrypt hash of password.
//
// Parameters:
//   - password: The plaintext password to hash
//   - cost: The bcrypt cost parameter (4-31)
//
// Returns:
//   - string: The bcrypt hash, suitable for the users table
//   - error: If the password is invalid or hashing fails
func Hash(password string, cost int) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// checkHash reports whether hash looks like a bcrypt hash.
func checkHash(hash string) error {
	_, err := bcrypt.Cost([]byte(hash))
	return err
}
