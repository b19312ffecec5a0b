package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomToken(t *testing.T) {
	token, err := RandomToken()
	require.NoError(t, err)

	assert.Len(t, token, base64.RawURLEncoding.EncodedLen(tokenBytes))
	assert.NotContains(t, token, "=")

	raw, err := base64.RawURLEncoding.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, tokenBytes)
}

func TestGeneratePKCE(t *testing.T) {
	single, err := RandomToken()
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		pkce, err := GeneratePKCE()
		require.NoError(t, err)

		assert.Len(t, pkce.Verifier, 2*len(single))
		assert.False(t, strings.ContainsAny(pkce.Verifier+pkce.Challenge, "=+/"))

		digest, err := base64.RawURLEncoding.DecodeString(pkce.Challenge)
		require.NoError(t, err)
		sum := sha256.Sum256([]byte(pkce.Verifier))
		assert.Equal(t, sum[:], digest)

		assert.False(t, seen[pkce.Verifier], "verifier repeated")
		seen[pkce.Verifier] = true
	}
}
