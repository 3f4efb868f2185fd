// Package credential turns plaintext passwords into bcrypt secrets and
// checks login attempts against them.
package credential

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMalformedSecret means the stored secret is not a usable bcrypt hash.
	ErrMalformedSecret = errors.New("malformed credential secret")
	// ErrPasswordTooLong is returned for inputs bcrypt cannot hash without truncation.
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
	// ErrPasswordNUL is returned for inputs containing a NUL byte, which
	// bcrypt would treat as a terminator.
	ErrPasswordNUL = errors.New("password contains a NUL byte")
)

// MaxPasswordBytes is the bcrypt input limit.
const MaxPasswordBytes = 72

// Codec hashes with a fixed cost. The zero value uses bcrypt.DefaultCost.
type Codec struct {
	Cost int
}

func New(cost int) Codec {
	return Codec{Cost: cost}
}

func (c Codec) cost() int {
	if c.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return c.Cost
}

// Hash returns a salted secret. Two calls with the same plaintext produce
// different output.
func (c Codec) Hash(plaintext string) (string, error) {
	if err := checkPlaintext(plaintext); err != nil {
		return "", err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), c.cost())
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// Verify reports whether plaintext was hashed into secret. A mismatch is
// (false, nil); only an unreadable secret is an error. bcrypt compares the
// derived keys in constant time. Inputs Hash would refuse never match, since
// bcrypt would otherwise accept them as aliases of a shorter password.
func (c Codec) Verify(plaintext, secret string) (bool, error) {
	if _, err := bcrypt.Cost([]byte(secret)); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformedSecret, err)
	}
	if checkPlaintext(plaintext) != nil {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(secret), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedSecret, err)
	}
}

// NeedsRehash reports whether secret was produced with a different cost
// than the codec's current one.
func (c Codec) NeedsRehash(secret string) bool {
	cost, err := bcrypt.Cost([]byte(secret))
	if err != nil {
		return false
	}
	return cost != c.cost()
}

// checkPlaintext rejects inputs bcrypt cannot hash without losing bytes.
func checkPlaintext(plaintext string) error {
	if len(plaintext) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	if strings.IndexByte(plaintext, 0) >= 0 {
		return ErrPasswordNUL
	}
	return nil
}
