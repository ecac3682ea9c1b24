package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a domain error so the HTTP layer can map it to a
// status code and a stable machine-readable code string.
type Kind string

const (
	KindValidation    Kind = "validation_error"
	KindNotConfigured Kind = "not_configured"
	KindAuth          Kind = "auth_error"
	KindMFARequired   Kind = "mfa_required"
	KindRateLimited   Kind = "rate_limited"
	KindUpstream      Kind = "upstream_error"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindInternal      Kind = "internal_error"
)

// Error is the domain error carried from services up to the HTTP layer.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfter is populated for rate-limited errors (seconds).
	RetryAfter int
	wrapped    error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.wrapped)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.wrapped }

// HTTPStatus maps the error kind to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotConfigured:
		return http.StatusPreconditionFailed
	case KindAuth, KindMFARequired:
		return http.StatusUnauthorized
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, wrapped: err}
}

// ValidationError reports malformed caller input.
func ValidationError(message string) *Error {
	return NewError(KindValidation, message)
}

// AuthError reports a bad passphrase or expired session.
func AuthError(message string) *Error {
	return NewError(KindAuth, message)
}

// NotFoundError reports an absent entity.
func NotFoundError(message string) *Error {
	return NewError(KindNotFound, message)
}

// ConflictError reports a uniqueness violation.
func ConflictError(message string) *Error {
	return NewError(KindConflict, message)
}

// NotConfiguredError reports missing credentials.
func NotConfiguredError(message string) *Error {
	return NewError(KindNotConfigured, message)
}

// UpstreamError wraps a failure from the budgeting service.
func UpstreamError(message string, err error) *Error {
	return WrapError(KindUpstream, message, err)
}

// RateLimitedError reports a lockout or throttle with a retry hint.
func RateLimitedError(message string, retryAfter int) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

// AsError extracts a *Error from any error chain, defaulting unknown
// errors to KindInternal so handlers never leak raw messages.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return WrapError(KindInternal, "Internal server error", err)
}
