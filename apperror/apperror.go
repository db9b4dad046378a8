// Package apperror defines the error taxonomy shared by the API server and
// the client library.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how callers are expected to react to it.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindConflict
	KindInvalidCredentials
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindTimeout
	KindNetworkUnreachable
)

var kindNames = map[Kind]string{
	KindInternal:           "internal",
	KindInvalidInput:       "invalid_input",
	KindConflict:           "conflict",
	KindInvalidCredentials: "invalid_credentials",
	KindUnauthorized:       "unauthorized",
	KindForbidden:          "forbidden",
	KindNotFound:           "not_found",
	KindTimeout:            "timeout",
	KindNetworkUnreachable: "network_unreachable",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "internal"
}

// ParseKind maps a wire name back to a Kind. Unknown names are internal.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindInternal
}

// HTTPStatus returns the status code the API replies with for this kind.
// Conflict and InvalidCredentials answer 400.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput, KindConflict, KindInvalidCredentials:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindNetworkUnreachable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// KindFromStatus guesses a Kind from an HTTP status when the body carries none.
func KindFromStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindInvalidInput
	case http.StatusConflict:
		return KindConflict
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return KindTimeout
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return KindNetworkUnreachable
	default:
		return KindInternal
	}
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind carrying an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func InvalidInput(format string, args ...any) *Error {
	return New(KindInvalidInput, fmt.Sprintf(format, args...))
}

func NotFound(resource string) *Error {
	return New(KindNotFound, resource+" not found")
}

func Internal(message string, cause error) *Error {
	return Wrap(KindInternal, message, cause)
}

// KindOf reports the kind of the first *Error in err's chain.
// Errors that were never classified are internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// MessageOf returns the user-facing message of err. Unclassified errors and
// internal errors get a generic message so no internal detail leaks.
func MessageOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return "Server error"
}
