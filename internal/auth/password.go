package auth

import "golang.org/x/crypto/bcrypt"

// DefaultCost matches the cost used for house passwords since launch.
const DefaultCost = 10

// Hasher hashes passwords with bcrypt.
type Hasher struct {
	Cost int
}

func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost {
		cost = DefaultCost
	}
	return Hasher{Cost: cost}
}

func (h Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare returns nil when password matches hash.
func (h Hasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
