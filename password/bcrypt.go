package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

const (
	minCost      = bcrypt.DefaultCost
	maxCost      = 16
	minPassBytes = 8
)

// Config holds bcrypt tuning parameters.
type Config struct {
	Cost int
}

// Hasher hashes and verifies passwords with bcrypt. The zero value is not
// usable; construct with [New].
type Hasher struct {
	cost int
}

// New validates cfg and returns a Hasher. A zero cost selects
// bcrypt.DefaultCost.
func New(cfg Config) (*Hasher, error) {
	cost := cfg.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < minCost {
		return nil, errors.New("password cost below bcrypt default")
	}
	if cost > maxCost {
		return nil, errors.New("password cost above supported maximum")
	}
	return &Hasher{cost: cost}, nil
}

// Hash derives a salted digest from password. The salt and cost factor are
// embedded in the returned digest.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < minPassBytes {
		return "", errors.New("password must be at least 8 bytes")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports whether password matches digest. The comparison is
// constant-time. Malformed digests verify as false rather than returning an
// error, so storage corruption cannot be distinguished from a wrong password
// by a caller.
func (h *Hasher) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
