// Package crypto derives and checks operator API key hashes so the server
// config never has to hold the key itself.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 600_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// hashLen is the derived key length in bytes.
	hashLen = 32
)

// HashAPIKey derives the hex-encoded PBKDF2-HMAC-SHA256 hash of key using
// the hex-encoded salt.
func HashAPIKey(key, saltHex string) (string, error) {
	if key == "" {
		return "", errors.New("crypto: api key must not be empty")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("crypto: invalid salt hex: %w", err)
	}
	if len(salt) == 0 {
		return "", errors.New("crypto: salt must not be empty")
	}
	derived := pbkdf2.Key([]byte(key), salt, pbkdf2Iterations, hashLen, sha256.New)
	return hex.EncodeToString(derived), nil
}

// NewSalt returns a random hex-encoded salt.
func NewSalt() (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("crypto: generating salt: %w", err)
	}
	return hex.EncodeToString(salt), nil
}

// VerifyAPIKey reports whether key hashes to hashHex under saltHex. The
// comparison is constant time.
func VerifyAPIKey(key, saltHex, hashHex string) bool {
	got, err := HashAPIKey(key, saltHex)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(hashHex)) == 1
}
