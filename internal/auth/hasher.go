// Package auth implements password hashing, token issuing and the session lifecycle
// (login, refresh, logout, password change).
package auth

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"

	"github.com/anonto42/vidtube/backend/internal/apperr"
)

// PasswordHasher hashes and verifies passwords.
type PasswordHasher interface {
	// Hash returns a salted digest of plaintext.
	Hash(plaintext string) (string, error)
	// Verify returns (true, nil) on match, (false, nil) on mismatch and an error only
	// when the digest itself is malformed.
	Verify(plaintext, digest string) (bool, error)
}

// BcryptHasher implements PasswordHasher with bcrypt at a fixed cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using cost. A zero cost selects bcrypt.DefaultCost.
func NewBcryptHasher(cost int) (*BcryptHasher, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("auth: bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptHasher{cost: cost}, nil
}

// Cost returns the configured work factor.
func (h *BcryptHasher) Cost() int { return h.cost }

// Hash produces a bcrypt digest. Every call uses a fresh salt.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", apperr.Validation("Password is required")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperr.Validation("Password must be at most 72 bytes")
		}
		return "", apperr.Internal(oops.In("auth").Code("HASHING_ERROR").Wrapf(err, "hash password"))
	}
	return string(digest), nil
}

// Verify compares plaintext against digest in constant time.
func (h *BcryptHasher) Verify(plaintext, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, apperr.Internal(oops.In("auth").Code("HASHING_ERROR").Wrapf(err, "verify password"))
	}
}
