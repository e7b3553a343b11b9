// Package random generates and fingerprints the high-entropy secrets used
// for refresh tokens and one-time tokens.
package random

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// Token returns a URL-safe secret with n bytes of entropy. n must be at
// least 16 (128 bits); smaller requests are raised to 16.
func Token(n int) (string, error) {
	if n < 16 {
		n = 16
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Hash returns the hex SHA-256 fingerprint of a raw secret. Only hashes are
// ever persisted or used as storage keys; the raw value stays with the caller.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
