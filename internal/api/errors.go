package api

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedTrigger is returned when a trigger payload lacks an id or
	// a parseable createdAt.
	ErrMalformedTrigger = errors.New("malformed trigger payload")

	// ErrUnparseableReply is returned when the chat endpoint answers with
	// something other than a non-empty response string.
	ErrUnparseableReply = errors.New("unparseable chat reply")
)

// AuthError indicates that the service rejected the configured token.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error: %s", e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// StatusError is a non-2xx response from the service.
type StatusError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf(
		"unexpected status %d on %s %s: %s",
		e.StatusCode, e.Method, e.Path, e.Message,
	)
}
