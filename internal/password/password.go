// Package password hashes and verifies user passwords.
//
// Hashes are self-describing: bcrypt hashes start with "$2", argon2id hashes
// use the PHC string format. Verify dispatches on the prefix so that switching
// the configured algorithm keeps existing accounts working.
package password

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownFormat is returned when a stored hash matches no supported algorithm.
var ErrUnknownFormat = errors.New("password: unknown hash format")

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// New returns the hasher for the named algorithm ("bcrypt" or "argon2id").
// The returned hasher verifies hashes produced by either algorithm.
func New(algorithm string) (Hasher, error) {
	var primary Hasher
	switch algorithm {
	case "", "bcrypt":
		primary = NewBcrypt(0)
	case "argon2id":
		primary = NewArgon2(DefaultArgon2Config())
	default:
		return nil, fmt.Errorf("password: unsupported algorithm %q", algorithm)
	}
	return &dispatcher{primary: primary}, nil
}

type dispatcher struct {
	primary Hasher
}

func (d *dispatcher) Hash(password string) (string, error) {
	return d.primary.Hash(password)
}

func (d *dispatcher) Verify(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$2"):
		return bcryptHasher{}.Verify(password, encodedHash)
	case strings.HasPrefix(encodedHash, "$"+argon2AlgorithmID+"$"):
		return (&Argon2{}).Verify(password, encodedHash)
	default:
		return false, ErrUnknownFormat
	}
}
