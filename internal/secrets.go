package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

const resetSecretSize = 32

// NewResetToken generates a 256-bit random reset token. It returns the
// plaintext token (base64url, no padding) for out-of-band delivery and the
// SHA-256 digest that is the only form ever persisted.
func NewResetToken() (string, [32]byte, error) {
	var digest [32]byte

	raw := make([]byte, resetSecretSize)
	if _, err := rand.Read(raw); err != nil {
		return "", digest, err
	}

	token := base64.RawURLEncoding.EncodeToString(raw)
	return token, sha256.Sum256([]byte(token)), nil
}

// HashToken returns the SHA-256 digest of a presented token string.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// DigestsEqual compares two token digests in constant time.
func DigestsEqual(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// ValidateResetToken rejects tokens that cannot possibly have been issued
// by NewResetToken, before any store lookup happens.
func ValidateResetToken(token string) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return errors.New("malformed reset token")
	}
	if len(raw) != resetSecretSize {
		return errors.New("invalid reset token size")
	}
	return nil
}
