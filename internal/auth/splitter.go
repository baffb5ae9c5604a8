package auth

import (
	"encoding/base64"
	"unicode/utf8"
)

// External key layout: <43-char secret><32-char base64 identity>.
const (
	SecretLength   = 43
	IdentityLength = 32
	MinKeyLength   = SecretLength + IdentityLength
)

// DecodedKey is an external key split into its parts.
type DecodedKey struct {
	// Secret is compared against the stored bcrypt hash.
	Secret string

	// IdentityRef is the key record id.
	IdentityRef string
}

// SplitKey decodes an external key. It never returns a partial result.
func SplitKey(external string) (DecodedKey, error) {
	if len(external) < MinKeyLength {
		return DecodedKey{}, ErrDecode
	}

	raw, err := base64.StdEncoding.DecodeString(external[len(external)-IdentityLength:])
	if err != nil {
		return DecodedKey{}, ErrDecode
	}
	if len(raw) == 0 || !utf8.Valid(raw) {
		return DecodedKey{}, ErrDecode
	}

	return DecodedKey{
		Secret:      external[:SecretLength],
		IdentityRef: string(raw),
	}, nil
}

// JoinKey builds the external key handed to a client.
func JoinKey(secret, identity string) string {
	return secret + base64.StdEncoding.EncodeToString([]byte(identity))
}
