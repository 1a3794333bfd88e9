package security

import "golang.org/x/crypto/bcrypt"

// DefaultCost mirrors the 10 salt rounds the client apps were built against.
const DefaultCost = 10

type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}

	return &Hasher{cost: cost}
}

// Hash hashes a plain text password with bcrypt. The salt is embedded in the output.
func (h *Hasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// Verify reports whether plain matches hash. A malformed hash never verifies.
func (h *Hasher) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
