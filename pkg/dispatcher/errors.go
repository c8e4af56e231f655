package dispatcher

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidTraversal is returned when a path segment is applied to a
	// value that has no members.
	ErrInvalidTraversal = errors.New("invalid traversal")
	// ErrMisconfigured is returned when the service named for a route does
	// not resolve to an object.
	ErrMisconfigured = errors.New("service misconfigured")
)

// HTTPError is a fault that carries its own status code. When it reaches the
// error shaper its code and message replace the defaults.
type HTTPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewHTTPError creates an HTTPError. The message defaults to the standard
// status text.
func NewHTTPError(code int, message ...string) *HTTPError {
	msg := http.StatusText(code)
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	return &HTTPError{Code: code, Message: msg}
}

func (e *HTTPError) Error() string {
	return e.Message
}

// TraversalError reports a segment that could not be applied.
type TraversalError struct {
	Segment string `json:"segment"`
	Type    string `json:"type"`
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("cannot resolve %q on %s", e.Segment, e.Type)
}

func (e *TraversalError) Unwrap() error {
	return ErrInvalidTraversal
}
