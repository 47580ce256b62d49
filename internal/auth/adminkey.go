// Package auth guards destructive admin operations with a static shared
// key. This is deliberately not a full auth system: the key exists so a
// stray dashboard request cannot delete events, nothing more. Replace
// the guard before exposing the API beyond localhost.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// AdminKey is a comparable wrapper so the key itself never travels
// through format strings or log lines by accident.
type AdminKey struct {
	key string
}

// NewAdminKey wraps a configured key. An empty key disables all admin
// operations rather than allowing them unauthenticated.
func NewAdminKey(key string) AdminKey {
	return AdminKey{key: key}
}

// Enabled reports whether an admin key is configured.
func (k AdminKey) Enabled() bool { return k.key != "" }

// Matches compares in constant time.
func (k AdminKey) Matches(candidate string) bool {
	if k.key == "" || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(k.key), []byte(candidate)) == 1
}

// Generate produces a new random admin key for `chronicled init`.
func Generate() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate admin key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
