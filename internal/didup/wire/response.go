// Package wire holds the decoded form of portal responses. It is shared by the
// login flow and the authenticated API client so both decode bodies the same
// way: JSON when the server says so, raw text otherwise.
package wire

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// DefaultErrorMessage is used when a failed envelope carries no message.
const DefaultErrorMessage = "Error in response from server"

// Response is a decoded portal response.
type Response struct {
	// Data is the decoded JSON value (map[string]any, []any, ...) when JSON is
	// true, or the body as a string otherwise.
	Data any
	JSON bool

	Body       []byte
	StatusCode int
	Header     http.Header
	// URL is the final request URL, after any redirects were followed.
	URL *url.URL
	Raw *resty.Response
}

// Decode builds a Response from a resty response. Bodies whose content type is
// not JSON are kept as text; some portal endpoints answer with HTML or plain
// text and callers still need to see them.
func Decode(res *resty.Response) (*Response, error) {
	r := &Response{
		Body:       res.Body(),
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Raw:        res,
	}
	if res.RawResponse != nil && res.RawResponse.Request != nil {
		r.URL = res.RawResponse.Request.URL
	}

	if !IsJSONContentType(r.Header.Get("Content-Type")) {
		r.Data = string(r.Body)
		return r, nil
	}

	r.JSON = true
	if len(strings.TrimSpace(string(r.Body))) == 0 {
		return r, nil
	}
	if err := json.Unmarshal(r.Body, &r.Data); err != nil {
		return r, fmt.Errorf("failed to decode response: %w", err)
	}
	return r, nil
}

// IsJSONContentType reports whether a Content-Type header value denotes JSON.
func IsJSONContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// Get looks up a gjson path in a JSON body. Non-JSON responses yield an empty
// result.
func (r *Response) Get(path string) gjson.Result {
	if r == nil || !r.JSON {
		return gjson.Result{}
	}
	return gjson.GetBytes(r.Body, path)
}

// Map returns Data as a JSON object, or nil if it is something else.
func (r *Response) Map() map[string]any {
	if r == nil {
		return nil
	}
	m, _ := r.Data.(map[string]any)
	return m
}

// Text returns the body as a string.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// Unmarshal decodes the body into v.
func (r *Response) Unmarshal(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Failure inspects the {success, msg, data} envelope. It reports true when
// success is explicitly false, along with the server message: "msg" first,
// then "message", then DefaultErrorMessage. Null messages count as absent.
func (r *Response) Failure() (string, bool) {
	success := r.Get("success")
	if success.Type != gjson.False {
		return "", false
	}

	for _, key := range []string{"msg", "message"} {
		if msg := r.Get(key); msg.Exists() && msg.Type != gjson.Null {
			return msg.String(), true
		}
	}
	return DefaultErrorMessage, true
}

// NewJSON builds a Response from a raw JSON body, as fixtures and test
// doubles need.
func NewJSON(statusCode int, body []byte) (*Response, error) {
	r := &Response{
		JSON:       true,
		Body:       body,
		StatusCode: statusCode,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
	if err := json.Unmarshal(body, &r.Data); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return r, nil
}
