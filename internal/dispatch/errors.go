package dispatch

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrMalformedRequest = errors.New("malformed request")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInternal         = errors.New("internal error")
)

// Error is a request-level failure with the HTTP status it maps to.
type Error struct {
	Kind    error
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func unauthenticated() *Error {
	return &Error{Kind: ErrUnauthenticated, Status: http.StatusUnauthorized, Message: "Invalid request signature."}
}

func malformed(msg string) *Error {
	return &Error{Kind: ErrMalformedRequest, Status: http.StatusBadRequest, Message: msg}
}

func unknownTool(id string) *Error {
	return &Error{Kind: ErrUnknownTool, Status: http.StatusNotFound, Message: fmt.Sprintf("Function %s not found.", id)}
}

func internal(msg string) *Error {
	return &Error{Kind: ErrInternal, Status: http.StatusInternalServerError, Message: msg}
}

// AsError converts any error into an *Error, defaulting to ErrInternal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return internal(err.Error())
}
