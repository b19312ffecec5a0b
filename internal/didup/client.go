// Package didup is a client for the Argo didUP Famiglia school portal. A
// Client logs in lazily, keeps the session fresh and signs every API request
// with the tokens of the current login.
package didup

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/raine/didup-famiglia/internal/didup/auth"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	ApiBaseURL = "https://www.portaleargo.it/appfamiglia/api/rest/"

	defaultTimeout = 30 * time.Second
)

type Options struct {
	SchoolCode string
	Username   string
	Password   string

	// Auth is completed with auth.DefaultConfig; MobileClientID is required.
	Auth auth.Config

	BaseURL string
	Timeout time.Duration
	// Debug logs every HTTP round trip.
	Debug bool
}

// session pairs the OAuth2 tokens with the mobile token of the same login.
type session struct {
	tokens      *auth.TokenSet
	mobileToken string
}

func (s *session) fresh(now time.Time) bool {
	return s != nil && s.mobileToken != "" && !s.tokens.IsExpired(now)
}

// Client is safe for concurrent use.
type Client struct {
	creds   auth.Credentials
	cfg     auth.Config
	base    *url.URL
	timeout time.Duration
	debug   bool
	log     zerolog.Logger
	now     func() time.Time
	api     API

	loginGroup singleflight.Group

	mu       sync.Mutex
	http     *resty.Client
	session  *session
	me       *Me
	schedaPK string
}

// NewClient validates the options and returns a client that is not logged in
// yet. No network traffic happens until Login or the first request.
func NewClient(opts Options) (*Client, error) {
	cfg := opts.Auth.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.SchoolCode == "" || opts.Username == "" || opts.Password == "" {
		return nil, fmt.Errorf("school code, username and password are required")
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = ApiBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidURL, baseURL)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		creds: auth.Credentials{
			SchoolCode: opts.SchoolCode,
			Username:   opts.Username,
			Password:   opts.Password,
		},
		cfg:     cfg,
		base:    base,
		timeout: timeout,
		debug:   opts.Debug,
		now:     time.Now,
		log: log.With().
			Str("session", uuid.NewString()).
			Str("schoolCode", opts.SchoolCode).
			Logger(),
	}
	c.api = &Endpoints{client: c}
	return c, nil
}

// Open creates a client and logs in. The client is closed if login fails.
func Open(ctx context.Context, opts Options) (*Client, error) {
	c, err := NewClient(opts)
	if err != nil {
		return nil, err
	}
	if err := c.Login(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// WithClient opens a client, runs fn and closes the client afterwards,
// whatever fn returns.
func WithClient(ctx context.Context, opts Options, fn func(*Client) error) error {
	c, err := Open(ctx, opts)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(c)
}

// WarnIfOpen logs a warning and returns true if the client still holds an
// authenticated session. Owners that close the client by hand defer it at
// scope exit to catch leaked clients.
func (c *Client) WarnIfOpen() bool {
	c.mu.Lock()
	open := c.http != nil && c.session != nil
	c.mu.Unlock()

	if open {
		c.log.Warn().Msg("didUP client dropped while open; call Close or use WithClient")
	}
	return open
}

// transport returns the HTTP client, creating it on first use and after
// Close. Callers hold c.mu.
func (c *Client) transport() *resty.Client {
	if c.http == nil {
		c.http = c.newTransport()
	}
	return c.http
}

func (c *Client) newTransport() *resty.Client {
	client := auth.NewRestyClient().
		SetTimeout(c.timeout).
		SetLogger(restyLogger{c.log}).
		SetHeader("Accept", "application/json, text/plain, */*")

	if c.debug {
		next := client.GetClient().Transport
		if next == nil {
			next = http.DefaultTransport
		}
		client.SetTransport(&LoggingTransport{Transport: next, Logger: c.log})
	}
	return client
}

// Login runs the full login flow. Concurrent calls share one login.
func (c *Client) Login(ctx context.Context) error {
	_, err, _ := c.loginGroup.Do("login", func() (any, error) {
		return nil, c.login(ctx)
	})
	return err
}

// TryLogin is Login for callers that only need to know whether it worked.
// The error is logged.
func (c *Client) TryLogin(ctx context.Context) bool {
	if err := c.Login(ctx); err != nil {
		c.log.Error().Err(err).Msg("Login failed")
		return false
	}
	return true
}

// EnsureAuthenticated logs in unless the current session is still valid.
func (c *Client) EnsureAuthenticated(ctx context.Context) error {
	if c.isFresh() {
		return nil
	}

	_, err, _ := c.loginGroup.Do("login", func() (any, error) {
		// Another caller may have finished a login since the check above.
		if c.isFresh() {
			return nil, nil
		}
		c.log.Debug().Msg("Session missing or expired, logging in")
		return nil, c.login(ctx)
	})
	return err
}

func (c *Client) isFresh() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.http != nil && c.session.fresh(c.now())
}

func (c *Client) login(ctx context.Context) error {
	c.mu.Lock()
	httpClient := c.transport()
	c.mu.Unlock()

	authenticator := auth.NewAuthenticator(httpClient, c.cfg)
	authenticator.SetClock(c.now)
	authenticator.SetLogger(c.log)

	tokens, profiles, err := authenticator.Login(ctx, c.creds)
	var me *Me
	if err == nil {
		me, err = newMe(profiles, c.creds.Username)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.session = nil
		c.me = nil
		return err
	}

	c.session = &session{tokens: tokens, mobileToken: me.token}
	c.me = me

	c.log.Info().
		Str("username", c.creds.Username).
		Time("expiresAt", tokens.ExpiresAt()).
		Msg("Logged in to didUP")
	return nil
}

// Close releases the transport and forgets the session. A later request logs
// in again. Close is idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.http != nil {
		c.http.GetClient().CloseIdleConnections()
		c.http = nil
	}
	c.session = nil
	c.me = nil
	return nil
}

// Endpoints returns the typed portal endpoints.
func (c *Client) Endpoints() (*Endpoints, error) {
	if !c.loggedIn() {
		return nil, ErrNotLoggedIn
	}
	return &Endpoints{client: c}, nil
}

// Me returns the profile selected at login.
func (c *Client) Me() (*Me, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.me == nil {
		return nil, ErrNotLoggedIn
	}
	return c.me, nil
}

func (c *Client) loggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.tokens.AccessToken
}

func (c *Client) RefreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.tokens.RefreshToken
}

// ExpiresAt returns the expiry of the current access token, if logged in.
func (c *Client) ExpiresAt() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return time.Time{}, false
	}
	return c.session.tokens.ExpiresAt(), true
}

func (c *Client) MobileToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.mobileToken
}

func (c *Client) SchoolCode() string {
	return c.creds.SchoolCode
}

func (c *Client) Username() string {
	return c.creds.Username
}

// restyLogger routes resty's internal messages to zerolog.
type restyLogger struct {
	log zerolog.Logger
}

func (l restyLogger) Errorf(format string, v ...any) {
	l.log.Error().Msgf(format, v...)
}

func (l restyLogger) Warnf(format string, v ...any) {
	l.log.Warn().Msgf(format, v...)
}

func (l restyLogger) Debugf(format string, v ...any) {
	l.log.Debug().Msgf(format, v...)
}
