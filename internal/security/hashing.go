package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies secrets using bcrypt. Callers must not log or
// persist plaintext secrets.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to bcrypt's range.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash of secret suitable for ADMIN_PASSWORD or ACCESS_PASSWORD.
func (h *Hasher) Hash(secret []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(secret, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies secret against a bcrypt hash. Returns nil on match.
func (h *Hasher) Compare(hash string, secret []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), secret)
}

// IsBcryptHash reports whether s looks like a bcrypt hash ($2a$, $2b$, $2y$).
func IsBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2") && len(s) == 60
}

// Secret is a configured shared secret, given either in plaintext or as a bcrypt hash.
type Secret struct {
	set    bool
	hash   string // bcrypt hash; empty for plaintext secrets
	digest [sha256.Size]byte
	hasher *Hasher
}

// NewSecret wraps configured. An empty secret matches nothing.
func NewSecret(configured string) *Secret {
	s := &Secret{set: configured != "", hasher: NewHasher(0)}
	if IsBcryptHash(configured) {
		s.hash = configured
	} else {
		s.digest = sha256.Sum256([]byte(configured))
	}
	return s
}

// Matches reports whether candidate equals the secret. Plaintext secrets are compared
// as SHA-256 digests in constant time so the secret's length does not leak.
func (s *Secret) Matches(candidate string) bool {
	if s == nil || !s.set {
		return false
	}
	if s.hash != "" {
		return s.hasher.Compare(s.hash, []byte(candidate)) == nil
	}
	d := sha256.Sum256([]byte(candidate))
	return subtle.ConstantTimeCompare(d[:], s.digest[:]) == 1
}
