// Package apperr models the gateway's error taxonomy as values instead of
// exceptions. Handlers return a *Error (or a wrapped one); the HTTP
// middleware layer is the only place that maps it to a status code and a
// serialized {error:{message,type,code}} body.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error categories from the gateway's error taxonomy.
type Kind string

const (
	KindAuth            Kind = "auth_error"
	KindAuthz           Kind = "authz_error"
	KindValidation      Kind = "validation_error"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindRateLimited     Kind = "rate_limited"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindUpstream        Kind = "upstream_error"
	KindPolicyMisconfig Kind = "policy_misconfiguration"
	KindInternal        Kind = "internal_error"
)

// Error is the gateway's uniform application error value.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfterSeconds is set for KindRateLimited/KindQuotaExceeded so the
	// HTTP layer can emit a Retry-After header.
	RetryAfterSeconds int
	// Cause is the wrapped underlying error, if any (not serialized to clients).
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Status maps a Kind to its HTTP status code per spec.md §7.
func (e *Error) Status() int {
	switch e.Kind {
	case KindAuth:
		return http.StatusUnauthorized
	case KindAuthz:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited, KindQuotaExceeded:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func new_(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Auth(format string, args ...any) *Error       { return new_(KindAuth, format, args...) }
func Authz(format string, args ...any) *Error      { return new_(KindAuthz, format, args...) }
func Validation(format string, args ...any) *Error { return new_(KindValidation, format, args...) }
func NotFound(format string, args ...any) *Error   { return new_(KindNotFound, format, args...) }
func Conflict(format string, args ...any) *Error   { return new_(KindConflict, format, args...) }
func Internal(format string, args ...any) *Error   { return new_(KindInternal, format, args...) }
func Upstream(cause error, format string, args ...any) *Error {
	e := new_(KindUpstream, format, args...)
	e.Cause = cause
	return e
}
func PolicyMisconfig(format string, args ...any) *Error {
	return new_(KindPolicyMisconfig, format, args...)
}

// RateLimited builds a 429 error carrying a Retry-After hint.
func RateLimited(retryAfterSeconds int, format string, args ...any) *Error {
	e := new_(KindRateLimited, format, args...)
	e.RetryAfterSeconds = retryAfterSeconds
	return e
}

// QuotaExceeded builds a 429 "quota_exceeded" error carrying a Retry-After hint.
func QuotaExceeded(retryAfterSeconds int, format string, args ...any) *Error {
	e := new_(KindQuotaExceeded, format, args...)
	e.RetryAfterSeconds = retryAfterSeconds
	return e
}

// As extracts an *Error from err, following the standard errors.As protocol.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
