// Package crypto provides key generation and hashing utilities for the Vehix API.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Key material sizes
const (
	// SecretBytes is the number of random bytes behind an API key secret.
	SecretBytes = 32

	// SecretLength is the length of the encoded secret (base64url, no padding).
	SecretLength = 43

	// VerificationTokenBytes is the number of random bytes in an email verification token.
	VerificationTokenBytes = 64

	// SessionTokenBytes is the number of random bytes in a refresh token.
	SessionTokenBytes = 32

	// BcryptCost is the work factor for secret and password hashes.
	BcryptCost = bcrypt.DefaultCost
)

// ErrHashMismatch indicates the plaintext does not match the stored hash.
var ErrHashMismatch = errors.New("hash does not match")

// GenerateSecret generates the 43-character secret half of an external API key.
func GenerateSecret() (string, error) {
	return GenerateToken(SecretBytes)
}

// GenerateToken returns n random bytes encoded as unpadded base64url.
func GenerateToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashSecret returns the bcrypt hash of a secret or password.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret compares a plaintext secret against a bcrypt hash.
// Returns ErrHashMismatch when they differ.
func VerifySecret(hash, secret string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrHashMismatch
	}
	return fmt.Errorf("failed to verify secret: %w", err)
}
