package auth

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"golang.org/x/oauth2"
)

const (
	AuthBaseURL    = "https://auth.portaleargo.it/oauth2/"
	SSOLoginURL    = "https://www.portaleargo.it/auth/sso/login"
	MobileLoginURL = "https://www.portaleargo.it/appfamiglia/api/rest/login"

	// Public values of the didUP Famiglia mobile app.
	DefaultClientID            = "72fd6dea-d0ab-4bb9-8eaa-3ac24c84886c"
	DefaultRedirectURI         = "it.argosoft.didup.famiglia.new://login-callback"
	DefaultScope               = "openid offline profile user.roles argo"
	DefaultCodeChallengeMethod = "S256"
	DefaultAppVersion          = "1.29.0"

	// ExpiryHeaderValue is sent as X-Date-Exp-Auth. The server only requires a
	// date in the future.
	ExpiryHeaderValue = "9999-12-31 23:59:59.000"
)

// Config holds every constant the login flow and the API need. Endpoints
// without a scheme are resolved against AuthBaseURL.
type Config struct {
	ClientID            string
	MobileClientID      string
	RedirectURI         string
	Scopes              []string
	CodeChallengeMethod string
	AppVersion          string

	AuthBaseURL    string
	AuthorizePath  string
	TokenPath      string
	SSOLoginURL    string
	MobileLoginURL string
}

// DefaultConfig returns the public configuration of the portal. The mobile
// client id has no public default and must be set by the caller.
func DefaultConfig() Config {
	return Config{
		ClientID:            DefaultClientID,
		RedirectURI:         DefaultRedirectURI,
		Scopes:              strings.Fields(DefaultScope),
		CodeChallengeMethod: DefaultCodeChallengeMethod,
		AppVersion:          DefaultAppVersion,
		AuthBaseURL:         AuthBaseURL,
		AuthorizePath:       "auth",
		TokenPath:           "token",
		SSOLoginURL:         SSOLoginURL,
		MobileLoginURL:      MobileLoginURL,
	}
}

// WithDefaults returns a copy of c with empty fields taken from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&c.ClientID, d.ClientID)
	fill(&c.RedirectURI, d.RedirectURI)
	fill(&c.CodeChallengeMethod, d.CodeChallengeMethod)
	fill(&c.AppVersion, d.AppVersion)
	fill(&c.AuthBaseURL, d.AuthBaseURL)
	fill(&c.AuthorizePath, d.AuthorizePath)
	fill(&c.TokenPath, d.TokenPath)
	fill(&c.SSOLoginURL, d.SSOLoginURL)
	fill(&c.MobileLoginURL, d.MobileLoginURL)
	if len(c.Scopes) == 0 {
		c.Scopes = d.Scopes
	}
	return c
}

// Validate reports configuration values the login flow cannot run without.
func (c Config) Validate() error {
	var missing []string
	for name, v := range map[string]string{
		"client id":             c.ClientID,
		"mobile client id":      c.MobileClientID,
		"redirect uri":          c.RedirectURI,
		"code challenge method": c.CodeChallengeMethod,
		"app version":           c.AppVersion,
		"auth base url":         c.AuthBaseURL,
		"authorize path":        c.AuthorizePath,
		"token path":            c.TokenPath,
		"sso login url":         c.SSOLoginURL,
		"mobile login url":      c.MobileLoginURL,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("incomplete login config, missing: %s", strings.Join(missing, ", "))
	}

	if _, err := url.Parse(c.AuthBaseURL); err != nil {
		return fmt.Errorf("invalid auth base url: %w", err)
	}
	return nil
}

func (c Config) oauth2Config() (*oauth2.Config, error) {
	authURL, err := resolveURL(c.AuthBaseURL, c.AuthorizePath)
	if err != nil {
		return nil, err
	}
	tokenURL, err := resolveURL(c.AuthBaseURL, c.TokenPath)
	if err != nil {
		return nil, err
	}

	return &oauth2.Config{
		ClientID:    c.ClientID,
		RedirectURL: c.RedirectURI,
		Scopes:      c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   authURL,
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, nil
}

// resolveURL returns endpoint unchanged when it has a scheme, otherwise joins
// it to base.
func resolveURL(base, endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "" {
		return endpoint, nil
	}

	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	rel, err := url.Parse(strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	return b.ResolveReference(rel).String(), nil
}
