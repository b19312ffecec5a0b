package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// fakePortal mimics the auth host, the SSO form and the mobile login.
type fakePortal struct {
	t      *testing.T
	server *httptest.Server

	loginChallenge string
	callback       string
	ssoStatus      int
	tokenStatus    int
	mobileStatus   int

	mu            sync.Mutex
	authorizeQS   url.Values
	ssoForm       url.Values
	tokenForm     url.Values
	mobileHeaders http.Header
	mobileBody    map[string]any
	tokenHits     int
}

func newFakePortal(t *testing.T) *fakePortal {
	p := &fakePortal{
		t:              t,
		loginChallenge: "abc",
		callback:       "customscheme://cb?code=xyz",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth2/auth", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.authorizeQS = r.URL.Query()
		p.mu.Unlock()

		target := "/oauth2/login"
		if p.loginChallenge != "" {
			target += "?login_challenge=" + p.loginChallenge
		}
		http.Redirect(w, r, target, http.StatusFound)
	})
	mux.HandleFunc("GET /oauth2/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>login</html>"))
	})
	mux.HandleFunc("POST /auth/sso/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		p.mu.Lock()
		p.ssoForm = r.PostForm
		p.mu.Unlock()

		if p.ssoStatus != 0 {
			w.WriteHeader(p.ssoStatus)
			return
		}
		w.Header().Set("Location", p.callback)
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("GET /cb", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		p.mu.Lock()
		p.tokenForm = r.PostForm
		p.tokenHits++
		p.mu.Unlock()

		if p.tokenStatus != 0 {
			w.WriteHeader(p.tokenStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"T1","refresh_token":"R1","expires_in":60,"token_type":"bearer"}`))
	})
	mux.HandleFunc("POST /appfamiglia/api/rest/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		p.mu.Lock()
		p.mobileHeaders = r.Header.Clone()
		p.mobileBody = body
		p.mu.Unlock()

		if p.mobileStatus != 0 {
			w.WriteHeader(p.mobileStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":[{"username":"other","token":"M0"},{"username":"u","token":"M1"}]}`))
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) config() Config {
	cfg := DefaultConfig()
	cfg.MobileClientID = "mobile-id"
	cfg.RedirectURI = "customscheme://cb"
	cfg.AuthBaseURL = p.server.URL + "/oauth2/"
	cfg.SSOLoginURL = p.server.URL + "/auth/sso/login"
	cfg.MobileLoginURL = p.server.URL + "/appfamiglia/api/rest/login"
	return cfg
}

var testCreds = Credentials{SchoolCode: "AB1234", Username: "u", Password: "p"}

func newTestAuthenticator(cfg Config, now time.Time) *Authenticator {
	a := NewAuthenticator(NewRestyClient(), cfg)
	a.SetClock(func() time.Time { return now })
	return a
}

func TestLogin_Success(t *testing.T) {
	p := newFakePortal(t)
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	tokens, profiles, err := newTestAuthenticator(p.config(), now).Login(context.Background(), testCreds)
	require.NoError(t, err)

	assert.Equal(t, "T1", tokens.AccessToken)
	assert.Equal(t, "R1", tokens.RefreshToken)
	assert.Equal(t, int64(60), tokens.ExpiresIn)
	assert.Equal(t, now, tokens.IssuedAt)
	assert.Equal(t, now.Add(60*time.Second), tokens.ExpiresAt())
	assert.Equal(t, "M1", profiles.Get(`data.1.token`).String())

	// Authorization request
	qs := p.authorizeQS
	assert.Equal(t, DefaultClientID, qs.Get("client_id"))
	assert.Equal(t, "code", qs.Get("response_type"))
	assert.Equal(t, "customscheme://cb", qs.Get("redirect_uri"))
	assert.Equal(t, DefaultScope, qs.Get("scope"))
	assert.Equal(t, "login", qs.Get("prompt"))
	assert.Equal(t, "S256", qs.Get("code_challenge_method"))
	assert.NotEmpty(t, qs.Get("state"))
	assert.NotEmpty(t, qs.Get("nonce"))
	assert.Len(t, qs["client_id"], 1)

	// SSO form
	assert.Equal(t, "abc", p.ssoForm.Get("challenge"))
	assert.Equal(t, "AB1234", p.ssoForm.Get("famiglia_customer_code"))
	assert.Equal(t, "u", p.ssoForm.Get("username"))
	assert.Equal(t, "p", p.ssoForm.Get("password"))
	assert.Equal(t, "true", p.ssoForm.Get("login"))
	assert.Equal(t, "false", p.ssoForm.Get("prefill"))
	assert.Equal(t, DefaultClientID, p.ssoForm.Get("client_id"))

	// Token exchange proves possession of the verifier
	assert.Equal(t, "xyz", p.tokenForm.Get("code"))
	assert.Equal(t, "authorization_code", p.tokenForm.Get("grant_type"))
	assert.Equal(t, "customscheme://cb", p.tokenForm.Get("redirect_uri"))
	assert.Equal(t, DefaultClientID, p.tokenForm.Get("client_id"))
	assert.Equal(t, qs.Get("code_challenge"), oauth2.S256ChallengeFromVerifier(p.tokenForm.Get("code_verifier")))

	// Mobile login
	assert.Equal(t, "Bearer T1", p.mobileHeaders.Get("Authorization"))
	assert.Equal(t, DefaultAppVersion, p.mobileHeaders.Get("Argo-Client-Version"))
	assert.Equal(t, ExpiryHeaderValue, p.mobileHeaders.Get("X-Date-Exp-Auth"))
	assert.Contains(t, p.mobileHeaders, "X-Cod-Min")
	assert.Equal(t, "mobile-id", p.mobileBody["clientID"])
	assert.Equal(t, "{}", p.mobileBody["lista-opzioni-notifiche"])
	assert.Equal(t, "[]", p.mobileBody["lista-x-auth-token"])
	assert.Equal(t, DefaultClientID, p.mobileBody["client_id"])
}

func TestLogin_SSOLoginWithoutCustomSchemeRedirect(t *testing.T) {
	p := newFakePortal(t)
	p.callback = "/cb?code=xyz"
	cfg := p.config()
	cfg.RedirectURI = p.server.URL + "/cb"

	tokens, _, err := newTestAuthenticator(cfg, time.Now()).Login(context.Background(), testCreds)
	require.NoError(t, err)
	assert.Equal(t, "T1", tokens.AccessToken)
	assert.Equal(t, "xyz", p.tokenForm.Get("code"))
}

func requireAuthError(t *testing.T, err error, step string) *AuthenticationError {
	t.Helper()
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, step, authErr.Step)
	return authErr
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(p *fakePortal)
		step    string
		status  int
		message string
	}{
		{
			name:    "missing login challenge",
			setup:   func(p *fakePortal) { p.loginChallenge = "" },
			step:    StepAuthorize,
			message: "login challenge not found",
		},
		{
			name:    "sso rejected",
			setup:   func(p *fakePortal) { p.ssoStatus = http.StatusUnauthorized },
			step:    StepSSOLogin,
			status:  http.StatusUnauthorized,
			message: "login failed",
		},
		{
			name:    "redirect to foreign uri",
			setup:   func(p *fakePortal) { p.callback = "otherscheme://cb?code=xyz" },
			step:    StepSSOLogin,
			message: "unexpected redirect URL: otherscheme://cb?code=xyz",
		},
		{
			name:    "missing code",
			setup:   func(p *fakePortal) { p.callback = "customscheme://cb?state=1" },
			step:    StepCode,
			message: "authorization code not found",
		},
		{
			name:    "token exchange rejected",
			setup:   func(p *fakePortal) { p.tokenStatus = http.StatusBadRequest },
			step:    StepTokenExchange,
			status:  http.StatusBadRequest,
			message: "failed to exchange authorization code",
		},
		{
			name:    "mobile login rejected",
			setup:   func(p *fakePortal) { p.mobileStatus = http.StatusInternalServerError },
			step:    StepMobileLogin,
			status:  http.StatusInternalServerError,
			message: "mobile login failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakePortal(t)
			tt.setup(p)

			_, _, err := newTestAuthenticator(p.config(), time.Now()).Login(context.Background(), testCreds)
			authErr := requireAuthError(t, err, tt.step)
			assert.Equal(t, tt.status, authErr.StatusCode)
			assert.Equal(t, tt.message, authErr.Message)
		})
	}
}

func TestLogin_RedirectFailureSkipsTokenExchange(t *testing.T) {
	p := newFakePortal(t)
	p.callback = "otherscheme://cb?code=xyz"

	_, _, err := newTestAuthenticator(p.config(), time.Now()).Login(context.Background(), testCreds)
	require.Error(t, err)
	assert.Zero(t, p.tokenHits)
}

func TestLogin_TransportError(t *testing.T) {
	p := newFakePortal(t)
	cfg := p.config()
	p.server.Close()

	_, _, err := newTestAuthenticator(cfg, time.Now()).Login(context.Background(), testCreds)
	authErr := requireAuthError(t, err, StepAuthorize)
	assert.NotNil(t, authErr.Unwrap())
}

func TestRequest_InvalidMethod(t *testing.T) {
	p := newFakePortal(t)
	a := newTestAuthenticator(p.config(), time.Now())

	_, err := a.request(context.Background(), http.MethodPut, "token", requestOptions{})
	assert.True(t, errors.Is(err, ErrInvalidMethod))
}

func TestRequest_AllowErrorStatus(t *testing.T) {
	p := newFakePortal(t)
	p.tokenStatus = http.StatusTeapot
	a := newTestAuthenticator(p.config(), time.Now())

	res, err := a.request(context.Background(), http.MethodPost, "token", requestOptions{allowErrorStatus: true})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, res.StatusCode)
}

func TestRedirectPolicy(t *testing.T) {
	policy := RedirectPolicy(2)

	custom, _ := http.NewRequest(http.MethodGet, "customscheme://cb?code=xyz", nil)
	err := policy.Apply(custom, nil)
	var redirect *NonHTTPRedirectError
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, "customscheme://cb?code=xyz", redirect.URL)

	web, _ := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	assert.NoError(t, policy.Apply(web, []*http.Request{web}))
	assert.Error(t, policy.Apply(web, []*http.Request{web, web}))
}

func TestQueryParam(t *testing.T) {
	tests := []struct {
		url   string
		key   string
		value string
		ok    bool
	}{
		{"customscheme://cb?code=xyz", "code", "xyz", true},
		{"customscheme://cb?state=1&code=xyz&scope=a", "code", "xyz", true},
		{"customscheme://cb?code=a%2Fb#frag", "code", "a/b", true},
		{"customscheme://cb?code=", "code", "", false},
		{"customscheme://cb?codes=xyz", "code", "", false},
		{"customscheme://cb", "code", "", false},
		{"", "code", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			value, ok := queryParam(tt.url, tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestResolveURL(t *testing.T) {
	got, err := resolveURL(AuthBaseURL, "token")
	require.NoError(t, err)
	assert.Equal(t, "https://auth.portaleargo.it/oauth2/token", got)

	got, err = resolveURL(AuthBaseURL, "/auth")
	require.NoError(t, err)
	assert.Equal(t, "https://auth.portaleargo.it/oauth2/auth", got)

	got, err = resolveURL(AuthBaseURL, SSOLoginURL)
	require.NoError(t, err)
	assert.Equal(t, SSOLoginURL, got)
}

func TestConfig_Validate(t *testing.T) {
	err := DefaultConfig().Validate()
	assert.ErrorContains(t, err, "mobile client id")

	cfg := Config{MobileClientID: "mobile-id"}.WithDefaults()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"openid", "offline", "profile", "user.roles", "argo"}, cfg.Scopes)
}

func TestTokenSet_IsExpired(t *testing.T) {
	issued := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tokens := &TokenSet{AccessToken: "T1", ExpiresIn: 3600, IssuedAt: issued}

	assert.False(t, tokens.IsExpired(issued.Add(3599*time.Second)))
	assert.True(t, tokens.IsExpired(issued.Add(3600*time.Second)))
	assert.True(t, tokens.IsExpired(issued.Add(3601*time.Second)))

	assert.True(t, (&TokenSet{AccessToken: "T1", IssuedAt: issued}).IsExpired(issued))
	assert.True(t, (*TokenSet)(nil).IsExpired(issued))
}
