// Package auth implements the didUP Famiglia login flow.
// The login process involves:
// 1. OAuth2 authorization request with PKCE
// 2. SSO login with school code, username and password
// 3. Authorization code exchange
// 4. Mobile login, which yields the per-profile API token
package auth

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/raine/didup-famiglia/internal/didup/wire"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxRedirects = 10

// Credentials identify a family account on the portal.
type Credentials struct {
	SchoolCode string
	Username   string
	Password   string
}

// Authenticator runs the login flow over a shared HTTP client, so cookies set
// during login stay available to later API calls.
type Authenticator struct {
	http *resty.Client
	cfg  Config
	now  func() time.Time
	log  zerolog.Logger
}

// NewAuthenticator creates an authenticator. httpClient must stop at
// non-http redirects, see NewRestyClient.
func NewAuthenticator(httpClient *resty.Client, cfg Config) *Authenticator {
	return &Authenticator{
		http: httpClient,
		cfg:  cfg,
		now:  time.Now,
		log:  log.Logger,
	}
}

// SetClock sets the clock used to stamp issued tokens.
func (a *Authenticator) SetClock(now func() time.Time) {
	a.now = now
}

func (a *Authenticator) SetLogger(logger zerolog.Logger) {
	a.log = logger
}

// NewRestyClient returns a resty client fit for the login flow: it keeps a
// cookie jar and refuses to follow redirects to non-http schemes.
func NewRestyClient() *resty.Client {
	return resty.New().SetRedirectPolicy(RedirectPolicy(maxRedirects))
}

// RedirectPolicy follows http(s) redirects up to max hops. A redirect to any
// other scheme stops with a *NonHTTPRedirectError carrying the target URL.
func RedirectPolicy(max int) resty.RedirectPolicy {
	return resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
		if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
			return &NonHTTPRedirectError{URL: req.URL.String()}
		}
		if len(via) >= max {
			return fmt.Errorf("stopped after %d redirects", max)
		}
		return nil
	})
}

// Login runs the whole flow and returns the OAuth2 tokens together with the
// mobile login payload listing the account's profiles.
func (a *Authenticator) Login(ctx context.Context, creds Credentials) (*TokenSet, *wire.Response, error) {
	pkce, err := GeneratePKCE()
	if err != nil {
		return nil, nil, err
	}

	loginChallenge, err := a.authorize(ctx, pkce.Challenge)
	if err != nil {
		return nil, nil, err
	}
	a.log.Debug().Str("step", StepAuthorize).Msg("Login step completed")

	redirectURL, err := a.ssoLogin(ctx, loginChallenge, creds)
	if err != nil {
		return nil, nil, err
	}
	a.log.Debug().Str("step", StepSSOLogin).Msg("Login step completed")

	code, ok := queryParam(redirectURL, "code")
	if !ok {
		return nil, nil, &AuthenticationError{Step: StepCode, Message: "authorization code not found"}
	}

	tokens, err := a.exchangeCode(ctx, code, pkce.Verifier)
	if err != nil {
		return nil, nil, err
	}
	a.log.Debug().Str("step", StepTokenExchange).Time("expiresAt", tokens.ExpiresAt()).Msg("Login step completed")

	profiles, err := a.MobileLogin(ctx, tokens.AccessToken)
	if err != nil {
		return nil, nil, err
	}
	a.log.Debug().Str("step", StepMobileLogin).Msg("Login step completed")

	return tokens, profiles, nil
}

type requestOptions struct {
	query   map[string]string
	form    map[string]string
	json    map[string]any
	headers map[string]string

	// allowErrorStatus disables the non-2xx check.
	allowErrorStatus bool
}

// request is the single entry point for login HTTP calls. It injects the
// OAuth client id into the query (GET), the JSON body or the form (POST).
func (a *Authenticator) request(ctx context.Context, method, endpoint string, opts requestOptions) (*wire.Response, error) {
	if method != http.MethodGet && method != http.MethodPost {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMethod, method)
	}

	target, err := resolveURL(a.cfg.AuthBaseURL, endpoint)
	if err != nil {
		return nil, err
	}

	req := a.http.R().
		SetContext(ctx).
		SetHeaders(opts.headers)

	switch {
	case method == http.MethodGet:
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
		q := u.Query()
		for k, v := range opts.query {
			q.Set(k, v)
		}
		q.Set("client_id", a.cfg.ClientID)
		u.RawQuery = q.Encode()
		target = u.String()
	case opts.json != nil:
		body := maps.Clone(opts.json)
		body["client_id"] = a.cfg.ClientID
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	default:
		form := maps.Clone(opts.form)
		if form == nil {
			form = map[string]string{}
		}
		form["client_id"] = a.cfg.ClientID
		req.SetFormData(form)
	}

	res, err := req.Execute(method, target)
	if err != nil {
		return nil, err
	}
	if !opts.allowErrorStatus && !res.IsSuccess() {
		return nil, &AuthenticationError{StatusCode: res.StatusCode(), Message: "unexpected response status"}
	}

	return wire.Decode(res)
}
