package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// FingerprintLength is the number of hex characters kept in a key fingerprint.
const FingerprintLength = 12

// ComputeSHA256 computes the hex-encoded SHA-256 hash of data.
func ComputeSHA256(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint returns a short, non-reversible identifier for a credential.
// Used in logs in place of the raw value.
func Fingerprint(value string) string {
	if value == "" {
		return ""
	}
	return ComputeSHA256([]byte(value))[:FingerprintLength]
}
