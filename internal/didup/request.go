package didup

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/raine/didup-famiglia/internal/didup/auth"
	"github.com/raine/didup-famiglia/internal/didup/wire"
)

type requestConfig struct {
	query         map[string]string
	json          any
	form          map[string]string
	headers       map[string]string
	noStatusCheck bool
}

// RequestOption customizes a single API request.
type RequestOption func(*requestConfig)

func WithQuery(params map[string]string) RequestOption {
	return func(rc *requestConfig) {
		rc.query = params
	}
}

// WithJSON sends body encoded as JSON.
func WithJSON(body any) RequestOption {
	return func(rc *requestConfig) {
		rc.json = body
	}
}

func WithForm(form map[string]string) RequestOption {
	return func(rc *requestConfig) {
		rc.form = form
	}
}

// WithHeader adds a request header. Authentication headers cannot be
// overridden.
func WithHeader(key, value string) RequestOption {
	return func(rc *requestConfig) {
		if rc.headers == nil {
			rc.headers = map[string]string{}
		}
		rc.headers[key] = value
	}
}

// WithoutStatusCheck returns non-2xx responses instead of a *ResponseError.
// A {"success": false} envelope is still an error.
func WithoutStatusCheck() RequestOption {
	return func(rc *requestConfig) {
		rc.noStatusCheck = true
	}
}

var validMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// Request sends an authenticated request to the portal API, logging in first
// when the session is missing or expired. endpoint is either relative to the
// API base URL or an absolute URL under it.
func (c *Client) Request(ctx context.Context, method, endpoint string, opts ...RequestOption) (*wire.Response, error) {
	if err := c.EnsureAuthenticated(ctx); err != nil {
		return nil, err
	}

	method = strings.ToUpper(method)
	if !validMethods[method] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	target, err := c.resolve(endpoint)
	if err != nil {
		return nil, err
	}

	var rc requestConfig
	for _, opt := range opts {
		opt(&rc)
	}

	c.mu.Lock()
	httpClient := c.transport()
	sess := c.session
	c.mu.Unlock()
	if sess == nil {
		// Closed between the freshness check and now.
		return nil, ErrNotLoggedIn
	}

	req := httpClient.R().
		SetContext(ctx).
		SetHeaders(rc.headers).
		SetHeaders(c.authHeaders(sess))
	if rc.query != nil {
		req.SetQueryParams(rc.query)
	}
	switch {
	case rc.json != nil:
		req.SetHeader("Content-Type", "application/json").SetBody(rc.json)
	case rc.form != nil:
		req.SetFormData(rc.form)
	}

	res, err := req.Execute(method, target)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	return checkResponse(res, rc.noStatusCheck)
}

// checkResponse raises non-2xx statuses, decodes the body and checks the
// {"success", "msg"} envelope, in that order.
func checkResponse(res *resty.Response, noStatusCheck bool) (*wire.Response, error) {
	if !noStatusCheck && !res.IsSuccess() {
		return nil, &ResponseError{StatusCode: res.StatusCode(), Message: http.StatusText(res.StatusCode())}
	}

	decoded, err := wire.Decode(res)
	if err != nil {
		return nil, err
	}
	if msg, failed := decoded.Failure(); failed {
		return decoded, &ResponseError{StatusCode: decoded.StatusCode, Message: msg}
	}
	return decoded, nil
}

func (c *Client) authHeaders(s *session) map[string]string {
	return map[string]string{
		"Argo-Client-Version": c.cfg.AppVersion,
		"Authorization":       "Bearer " + s.tokens.AccessToken,
		"X-Auth-Token":        s.mobileToken,
		"X-Cod-Min":           c.creds.SchoolCode,
		"X-Date-Exp-Auth":     auth.ExpiryHeaderValue,
	}
}

// resolve joins relative endpoints to the API base URL. Absolute URLs must
// already point under it.
func (c *Client) resolve(endpoint string) (string, error) {
	base := c.base.String()
	if strings.HasPrefix(endpoint, base) {
		return endpoint, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "" {
		return "", fmt.Errorf("%w: %s is not under %s", ErrInvalidURL, endpoint, base)
	}

	rel, err := url.Parse(strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return c.base.ResolveReference(rel).String(), nil
}

// download streams rawURL into w through the session transport. Attachment
// URLs point to file storage, so no API headers are sent.
func (c *Client) download(ctx context.Context, rawURL string, w io.Writer) error {
	if err := c.EnsureAuthenticated(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	httpClient := c.transport()
	c.mu.Unlock()

	res, err := httpClient.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	body := res.RawBody()
	defer body.Close()

	if !res.IsSuccess() {
		return &ResponseError{StatusCode: res.StatusCode(), Message: "download failed"}
	}
	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	return nil
}
