package didup

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const maxLoggedBody = 2000

var requestCounter uint64

var redactedHeaders = map[string]bool{
	"Authorization": true,
	"X-Auth-Token":  true,
	"Cookie":        true,
	"Set-Cookie":    true,
}

// LoggingTransport wraps http.RoundTripper to log all requests/responses.
// Credentials in headers are redacted; request bodies are never logged since
// the SSO form carries the password.
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    zerolog.Logger
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	count := atomic.AddUint64(&requestCounter, 1)
	start := time.Now()

	t.Logger.Debug().
		Uint64("request", count).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Dict("headers", headerDict(req.Header)).
		Msg("HTTP request")

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		t.Logger.Debug().Uint64("request", count).Err(err).Msg("HTTP request failed")
		return nil, err
	}

	event := t.Logger.Debug().
		Uint64("request", count).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Dict("headers", headerDict(resp.Header))

	if resp.Body != nil && t.Logger.Trace().Enabled() {
		bodyBytes, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))

		body := string(bodyBytes)
		if len(body) > maxLoggedBody {
			body = body[:maxLoggedBody] + "... [truncated]"
		}
		event = event.Str("body", body)
	}

	event.Msg("HTTP response")
	return resp, nil
}

func headerDict(h http.Header) *zerolog.Event {
	dict := zerolog.Dict()
	for name, values := range h {
		value := strings.Join(values, ", ")
		if redactedHeaders[http.CanonicalHeaderKey(name)] {
			value = "[redacted]"
		}
		dict = dict.Str(name, value)
	}
	return dict
}
