package didup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/raine/didup-famiglia/internal/didup/auth"
	"github.com/stretchr/testify/require"
)

const apiPrefix = "/appfamiglia/api/rest/"

// testPortal fakes the auth host, the SSO login and the REST API. Every
// login issues numbered tokens: T1/M1 for the first, T2/M2 for the next.
type testPortal struct {
	server *httptest.Server

	mu         sync.Mutex
	expiresIn  int
	ssoStatus  int
	tokenDelay time.Duration
	tokenHits  int
	handlers   map[string]http.HandlerFunc
	apiCalls   []apiCall
}

type apiCall struct {
	Method string
	Path   string
	Header http.Header
	Body   map[string]any
}

func newTestPortal(t *testing.T) *testPortal {
	p := &testPortal{
		expiresIn: 60,
		handlers:  map[string]http.HandlerFunc{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /oauth2/auth", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/oauth2/login?login_challenge=abc", http.StatusFound)
	})
	mux.HandleFunc("GET /oauth2/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>login</html>"))
	})
	mux.HandleFunc("POST /auth/sso/login", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		status := p.ssoStatus
		p.mu.Unlock()

		if status != 0 {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Location", "customscheme://cb?code=xyz")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.tokenHits++
		n := p.tokenHits
		expiresIn := p.expiresIn
		delay := p.tokenDelay
		p.mu.Unlock()

		time.Sleep(delay)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"T%d","refresh_token":"R%d","expires_in":%d}`, n, n, expiresIn)
	})
	mux.HandleFunc("POST "+apiPrefix+"login", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		n := p.tokenHits
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"success":true,"data":[`+
			`{"username":"someone-else","token":"X%d"},`+
			`{"username":"u","token":"M%d","opzioni":[{"chiave":"ORARIO_SCOLASTICO","valore":true},{"chiave":"NUOVA","valore":false}]}]}`, n, n)
	})
	mux.HandleFunc(apiPrefix, func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, apiPrefix)
		call := apiCall{Method: r.Method, Path: path, Header: r.Header.Clone()}
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			json.Unmarshal(body, &call.Body)
		}

		p.mu.Lock()
		p.apiCalls = append(p.apiCalls, call)
		handler := p.handlers[path]
		p.mu.Unlock()

		if handler != nil {
			handler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{}}`))
	})
	mux.HandleFunc("GET /files/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 attachment"))
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *testPortal) handle(path string, handler http.HandlerFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[path] = handler
}

func (p *testPortal) respondJSON(path, body string) {
	p.handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	})
}

func (p *testPortal) setSSOStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ssoStatus = status
}

func (p *testPortal) logins() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenHits
}

func (p *testPortal) lastCall() apiCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.apiCalls) == 0 {
		return apiCall{}
	}
	return p.apiCalls[len(p.apiCalls)-1]
}

func (p *testPortal) options() Options {
	return Options{
		SchoolCode: "AB1234",
		Username:   "u",
		Password:   "p",
		Auth: auth.Config{
			MobileClientID: "mobile-id",
			RedirectURI:    "customscheme://cb",
			AuthBaseURL:    p.server.URL + "/oauth2/",
			SSOLoginURL:    p.server.URL + "/auth/sso/login",
			MobileLoginURL: p.server.URL + apiPrefix + "login",
		},
		BaseURL: p.server.URL + apiPrefix,
	}
}

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestClient(t *testing.T, p *testPortal, clock *testClock) *Client {
	t.Helper()
	c, err := NewClient(p.options())
	require.NoError(t, err)
	c.now = clock.Now
	t.Cleanup(func() { c.Close() })
	return c
}
