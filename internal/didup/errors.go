package didup

import (
	"errors"
	"fmt"
)

var (
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrInvalidURL    = errors.New("invalid url")
	ErrInvalidMethod = errors.New("invalid http method")
	ErrInvalidWriter = errors.New("download destination must be a non-nil writer")
	ErrNoProfile     = errors.New("no valid profile found")
)

// ResponseError reports a portal response that is not successful, either by
// HTTP status or by a {"success": false} envelope.
type ResponseError struct {
	StatusCode int
	Message    string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s (status code: %d)", e.Message, e.StatusCode)
}
