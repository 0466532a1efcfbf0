// Package fingerprint derives the keyed digest stored in place of a raw content URL.
package fingerprint

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrEmptySecret is returned by NewHasher when no secret is configured.
var ErrEmptySecret = errors.New("fingerprint secret is empty")

// Hash returns the lowercase hex SHA-256 of url concatenated with secret.
// The digest is deterministic so the same URL always maps to the same value.
func Hash(url, secret string) string {
	sum := sha256.Sum256([]byte(url + secret))
	return hex.EncodeToString(sum[:])
}

// Matches reports whether hashed is the fingerprint of url under secret.
// Comparison is case-insensitive on the hex digest and runs in constant time.
func Matches(url, secret, hashed string) bool {
	want := Hash(url, secret)
	got := strings.ToLower(strings.TrimSpace(hashed))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

// Hasher binds a secret so callers never read it from ambient state.
type Hasher struct {
	secret string
}

func NewHasher(secret string) (*Hasher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Hasher{secret: secret}, nil
}

func (h *Hasher) Hash(url string) string {
	return Hash(url, h.secret)
}

func (h *Hasher) Matches(url, hashed string) bool {
	return Matches(url, h.secret, hashed)
}
