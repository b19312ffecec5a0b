package auth

import "time"

// TokenSet holds the OAuth2 tokens of one login cycle.
type TokenSet struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"-"`
}

// ExpiresAt returns IssuedAt + ExpiresIn.
func (t *TokenSet) ExpiresAt() time.Time {
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// IsExpired reports whether the tokens must be replaced at now. Tokens
// without an expiry are always stale.
func (t *TokenSet) IsExpired(now time.Time) bool {
	if t == nil || t.AccessToken == "" || t.ExpiresIn <= 0 {
		return true
	}
	return !now.Before(t.ExpiresAt())
}
