package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// PINHasher hashes and verifies account PINs with bcrypt.
type PINHasher struct {
	cost int
}

// NewPINHasher uses bcrypt.DefaultCost when cost is out of range.
func NewPINHasher(cost int) *PINHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PINHasher{cost: cost}
}

func (h *PINHasher) Hash(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether pin matches hash. Malformed hashes never match.
func (h *PINHasher) Verify(hash, pin string) bool {
	if hash == "" || pin == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}
