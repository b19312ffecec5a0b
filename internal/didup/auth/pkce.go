package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2"
)

// tokenBytes is the entropy of one random token.
const tokenBytes = 22

// PKCE is a code verifier and its S256 challenge, generated fresh for every
// login.
type PKCE struct {
	Verifier  string
	Challenge string
}

// RandomToken returns tokenBytes random bytes encoded as base64url without
// padding.
func RandomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GeneratePKCE builds a verifier from two independent random tokens and
// derives its challenge.
func GeneratePKCE() (*PKCE, error) {
	first, err := RandomToken()
	if err != nil {
		return nil, err
	}
	second, err := RandomToken()
	if err != nil {
		return nil, err
	}

	verifier := first + second
	return &PKCE{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
	}, nil
}
