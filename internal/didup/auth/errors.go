package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Login steps, as reported by AuthenticationError.Step.
const (
	StepAuthorize     = "authorize"
	StepSSOLogin      = "sso login"
	StepCode          = "code extraction"
	StepTokenExchange = "token exchange"
	StepMobileLogin   = "mobile login"
)

var ErrInvalidMethod = errors.New("only GET and POST are allowed")

// AuthenticationError is returned for every failure of the login flow.
type AuthenticationError struct {
	Step       string
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthenticationError) Error() string {
	var b strings.Builder
	if e.Step != "" {
		b.WriteString(e.Step)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status code: %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// NonHTTPRedirectError is returned by RedirectPolicy when the server redirects
// to a scheme the transport cannot follow, such as the app's callback URI.
type NonHTTPRedirectError struct {
	URL string
}

func (e *NonHTTPRedirectError) Error() string {
	return fmt.Sprintf("not following redirect to non-http url %s", e.URL)
}

// stepFailed attributes err to a login step. Status errors produced by the
// request helper carry no step yet and are filled in place.
func stepFailed(err error, step, message string) error {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) && authErr.Step == "" {
		authErr.Step = step
		authErr.Message = message
		return authErr
	}
	return &AuthenticationError{Step: step, Message: message, Err: err}
}
