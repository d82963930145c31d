// Package password represents a plaintext password type in the system. The
// value never marshals so it cannot leak through logging.
package password

import (
	"errors"
)

// Password represents a password in the system.
type Password struct {
	value string
}

// String returns a masked representation of the password.
func (p Password) String() string {
	return "[MASKED]"
}

// Plaintext returns the actual password for hashing and comparing.
func (p Password) Plaintext() string {
	return p.value
}

// MarshalText keeps the password out of logs and marshal output.
func (p Password) MarshalText() ([]byte, error) {
	return []byte("[MASKED]"), nil
}

// =============================================================================

// Parse parses the string value and returns a password if the value complies
// with the rules for a password.
func Parse(value string) (Password, error) {
	if len(value) < 8 {
		return Password{}, errors.New("password must be at least 8 characters")
	}

	// bcrypt ignores everything past 72 bytes.
	if len(value) > 72 {
		return Password{}, errors.New("password must be at most 72 characters")
	}

	return Password{value}, nil
}

// MustParse parses the string value and returns a password if the value
// complies with the rules for a password. If an error occurs the function
// panics.
func MustParse(value string) Password {
	p, err := Parse(value)
	if err != nil {
		panic(err)
	}

	return p
}
