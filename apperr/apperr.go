// Package apperr defines the gateway error taxonomy. Services return *Error
// values; the transport layer maps the kind to an HTTP status and a uniform
// response envelope.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping
type Kind string

const (
	Unauthorized  Kind = "unauthorized"
	Forbidden     Kind = "forbidden"
	NotFound      Kind = "not_found"
	Conflict      Kind = "conflict"
	InvalidInput  Kind = "invalid_input"
	S3Error       Kind = "s3_error"
	Cancelled     Kind = "cancelled"
	Timeout       Kind = "timeout"
	Internal      Kind = "internal_error"
	Configuration Kind = "configuration_error"
)

// StatusClientClosedRequest is the nginx convention for client-aborted requests
const StatusClientClosedRequest = 499

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind wrapping a cause
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or Internal when err carries no kind
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error kind to its HTTP status code
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case InvalidInput:
		return http.StatusBadRequest
	case S3Error:
		return http.StatusBadGateway
	case Cancelled:
		return StatusClientClosedRequest
	case Timeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing message of err; internal errors are
// not exposed to the client
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == Internal {
			return http.StatusText(http.StatusInternalServerError)
		}
		return e.Message
	}
	return http.StatusText(http.StatusInternalServerError)
}
