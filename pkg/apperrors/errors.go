package apperrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Common errors
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidState    = errors.New("invalid state")
	ErrExpired         = errors.New("expired")
	ErrExhausted       = errors.New("exhausted")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTimeout         = errors.New("timeout")
	ErrNotConfigured   = errors.New("not configured")
	ErrInvalidRow      = errors.New("invalid row")
)

// UpstreamError is returned when the video lookup service answers with a
// non-success status.
type UpstreamError struct {
	Service    string
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: upstream request failed with status %d", e.Service, e.StatusCode)
}

// Wrap annotates err with one of the sentinel kinds above.
func Wrap(kind error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

func isTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// HTTPStatus maps an error to the status code returned to clients.
func HTTPStatus(err error) int {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrExpired), errors.Is(err, ErrExhausted):
		return http.StatusGone
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case isTimeout(err):
		return http.StatusGatewayTimeout
	case errors.As(err, &upstream):
		return upstream.StatusCode
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine readable error kind sent alongside the message.
func Code(err error) string {
	var upstream *UpstreamError
	switch {
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrInvalidArgument):
		return "INVALID_ARGUMENT"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrExpired):
		return "EXPIRED"
	case errors.Is(err, ErrExhausted):
		return "EXHAUSTED"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case isTimeout(err):
		return "TIMEOUT"
	case errors.As(err, &upstream):
		return "UPSTREAM_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// Message returns a short human readable summary. Raw internal error text is
// only exposed for validation errors, whose text is written for users.
func Message(err error) string {
	var upstream *UpstreamError
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return err.Error()
	case errors.Is(err, ErrNotFound):
		return "Not found"
	case errors.Is(err, ErrConflict):
		return "Conflicting update, please try again"
	case errors.Is(err, ErrInvalidState):
		return "Action not allowed in the current state"
	case errors.Is(err, ErrExpired):
		return "Invitation has expired"
	case errors.Is(err, ErrExhausted):
		return "Invitation has been fully used"
	case errors.Is(err, ErrForbidden):
		return "Not allowed"
	case errors.Is(err, ErrUnauthorized):
		return "Authentication required"
	case isTimeout(err):
		return "Request timed out, please try again"
	case errors.As(err, &upstream):
		return "Search service request failed"
	default:
		return "Something went wrong, please try again"
	}
}

// IsClientError reports whether err was caused by the caller rather than the
// server, which decides the log level.
func IsClientError(err error) bool {
	status := HTTPStatus(err)
	return status >= 400 && status < 500
}
