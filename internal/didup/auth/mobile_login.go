package auth

import (
	"context"
	"net/http"

	"github.com/raine/didup-famiglia/internal/didup/wire"
)

// MobileLogin exchanges an OAuth2 access token for the list of profiles
// bound to the account. Each profile carries its own API token.
func (a *Authenticator) MobileLogin(ctx context.Context, accessToken string) (*wire.Response, error) {
	res, err := a.request(ctx, http.MethodPost, a.cfg.MobileLoginURL, requestOptions{
		headers: map[string]string{
			"Argo-Client-Version": a.cfg.AppVersion,
			"Authorization":       "Bearer " + accessToken,
			"X-Cod-Min":           "",
			"X-Date-Exp-Auth":     ExpiryHeaderValue,
		},
		json: map[string]any{
			"lista-opzioni-notifiche": "{}",
			"lista-x-auth-token":      "[]",
			"clientID":                a.cfg.MobileClientID,
		},
	})
	if err == nil && res.StatusCode != http.StatusOK {
		err = &AuthenticationError{StatusCode: res.StatusCode}
	}
	if err != nil {
		return nil, stepFailed(err, StepMobileLogin, "mobile login failed")
	}
	return res, nil
}
