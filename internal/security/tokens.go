// Package security implements credential handling for sensor devices and
// provider callbacks.
//
// Device keys follow the prefix-plus-bcrypt scheme: the plaintext is shown
// once at creation, the first characters are stored as a display prefix,
// and only the bcrypt hash is persisted. Callback tokens are compared in
// constant time via SHA-256 digests.
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"freshtrack/internal/types"
)

const (
	// bcryptCost is the bcrypt cost factor for device key hashing.
	bcryptCost = 12

	// deviceKeyPrefixLength is the number of characters of the secret kept
	// as a display prefix for key identification in the dashboard.
	deviceKeyPrefixLength = 8

	// deviceKeyBytes is the entropy of a generated device key.
	deviceKeyBytes = 32

	deviceKeyTag = "ftk_"
)

// GenerateDeviceKey creates a new sensor device key. Returns the plaintext
// secret (shown exactly once), the display prefix, and the bcrypt hash to
// persist.
func GenerateDeviceKey() (plaintext, prefix, hash string, err error) {
	raw := make([]byte, deviceKeyBytes)
	if _, err = rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("failed to generate device key: %w", err)
	}

	secret := base64.RawURLEncoding.EncodeToString(raw)
	plaintext = deviceKeyTag + secret

	prefixLen := deviceKeyPrefixLength
	if len(secret) < prefixLen {
		prefixLen = len(secret)
	}
	prefix = deviceKeyTag + secret[:prefixLen]

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to hash device key: %w", err)
	}
	return plaintext, prefix, string(hashed), nil
}

// VerifyDeviceKey checks a presented device key against the stored bcrypt
// hash. Returns an auth error on mismatch, never the bcrypt internals.
func VerifyDeviceKey(presented, storedHash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(presented)); err != nil {
		return types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid device key", nil)
	}
	return nil
}

// HashCallbackToken derives the stored digest for a provider callback
// token. SHA-256 rather than bcrypt: the token is high-entropy machine
// material, and callbacks arrive at a rate where bcrypt cost would matter.
func HashCallbackToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// VerifyCallbackToken compares a presented callback token against the
// stored digest in constant time.
func VerifyCallbackToken(presented, storedDigest string) error {
	sum := sha256.Sum256([]byte(presented))
	digest := base64.RawURLEncoding.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(digest), []byte(storedDigest)) != 1 {
		return types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid callback token", nil)
	}
	return nil
}
