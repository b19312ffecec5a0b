package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
)

// authorize starts the OAuth2 flow and returns the login challenge found in
// the final URL of the redirect chain.
func (a *Authenticator) authorize(ctx context.Context, codeChallenge string) (string, error) {
	state, err := RandomToken()
	if err != nil {
		return "", err
	}
	nonce, err := RandomToken()
	if err != nil {
		return "", err
	}

	oauthCfg, err := a.cfg.oauth2Config()
	if err != nil {
		return "", stepFailed(err, StepAuthorize, "invalid authorization endpoint")
	}
	authURL := oauthCfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("prompt", "login"),
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", a.cfg.CodeChallengeMethod),
	)

	res, err := a.request(ctx, http.MethodGet, authURL, requestOptions{})
	if err == nil && res.StatusCode != http.StatusOK {
		err = &AuthenticationError{StatusCode: res.StatusCode}
	}
	if err != nil {
		return "", stepFailed(err, StepAuthorize, "failed to initiate OAuth2 login")
	}

	var finalURL string
	if res.URL != nil {
		finalURL = res.URL.String()
	}
	challenge, ok := queryParam(finalURL, "login_challenge")
	if !ok {
		return "", &AuthenticationError{Step: StepAuthorize, Message: "login challenge not found"}
	}
	return challenge, nil
}

// ssoLogin posts the credentials and returns the callback URL carrying the
// authorization code.
func (a *Authenticator) ssoLogin(ctx context.Context, loginChallenge string, creds Credentials) (string, error) {
	res, err := a.request(ctx, http.MethodPost, a.cfg.SSOLoginURL, requestOptions{
		form: map[string]string{
			"challenge":              loginChallenge,
			"famiglia_customer_code": creds.SchoolCode,
			"username":               creds.Username,
			"password":               creds.Password,
			"login":                  "true",
			"prefill":                "false",
		},
	})

	var redirect *NonHTTPRedirectError
	var callbackURL string
	switch {
	case errors.As(err, &redirect):
		// The server redirected to the app's custom scheme.
		callbackURL = redirect.URL
	case err != nil:
		return "", stepFailed(err, StepSSOLogin, "login failed")
	case res.StatusCode != http.StatusOK:
		return "", &AuthenticationError{Step: StepSSOLogin, StatusCode: res.StatusCode, Message: "login failed"}
	case res.URL != nil:
		callbackURL = res.URL.String()
	}

	if !strings.HasPrefix(callbackURL, a.cfg.RedirectURI) {
		return "", &AuthenticationError{Step: StepSSOLogin, Message: "unexpected redirect URL: " + callbackURL}
	}
	return callbackURL, nil
}

// exchangeCode trades the authorization code for tokens.
func (a *Authenticator) exchangeCode(ctx context.Context, code, codeVerifier string) (*TokenSet, error) {
	res, err := a.request(ctx, http.MethodPost, a.cfg.TokenPath, requestOptions{
		form: map[string]string{
			"code":          code,
			"code_verifier": codeVerifier,
			"grant_type":    "authorization_code",
			"redirect_uri":  a.cfg.RedirectURI,
		},
	})
	if err == nil && res.StatusCode != http.StatusOK {
		err = &AuthenticationError{StatusCode: res.StatusCode}
	}
	if err != nil {
		return nil, stepFailed(err, StepTokenExchange, "failed to exchange authorization code")
	}

	var tokens TokenSet
	if err := res.Unmarshal(&tokens); err != nil {
		return nil, stepFailed(err, StepTokenExchange, "invalid token response")
	}
	if tokens.AccessToken == "" {
		return nil, &AuthenticationError{Step: StepTokenExchange, Message: "token response has no access_token"}
	}
	tokens.IssuedAt = a.now()

	return &tokens, nil
}

// queryParam reads a query parameter by splitting on '&' and '='. Callback
// URLs use a custom scheme, so net/url parsing is not relied upon.
func queryParam(rawURL, key string) (string, bool) {
	_, query, found := strings.Cut(rawURL, "?")
	if !found {
		return "", false
	}
	query, _, _ = strings.Cut(query, "#")

	for _, pair := range strings.Split(query, "&") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k != key {
			continue
		}
		if unescaped, err := url.QueryUnescape(v); err == nil {
			v = unescaped
		}
		return v, v != ""
	}
	return "", false
}
