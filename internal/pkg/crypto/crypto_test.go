package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		s, err := GenerateSecret()
		require.NoError(t, err)
		assert.Len(t, s, SecretLength)
		assert.False(t, seen[s], "duplicate secret")
		seen[s] = true
	}
}

func TestGenerateToken(t *testing.T) {
	tok, err := GenerateToken(VerificationTokenBytes)
	require.NoError(t, err)
	assert.Len(t, tok, 86)
	assert.NotContains(t, tok, "=")
	assert.NotContains(t, tok, "+")
	assert.NotContains(t, tok, "/")
}

func TestHashAndVerifySecret(t *testing.T) {
	secret, err := GenerateSecret()
	require.NoError(t, err)

	hash, err := HashSecret(secret)
	require.NoError(t, err)
	assert.NotEqual(t, secret, hash)

	assert.NoError(t, VerifySecret(hash, secret))
	assert.ErrorIs(t, VerifySecret(hash, secret+"x"), ErrHashMismatch)

	err = VerifySecret("not-a-bcrypt-hash", secret)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrHashMismatch)
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("some-api-key")
	assert.Len(t, fp, FingerprintLength)
	assert.Equal(t, fp, Fingerprint("some-api-key"))
	assert.NotEqual(t, fp, Fingerprint("some-api-kez"))
	assert.Empty(t, Fingerprint(""))
}
