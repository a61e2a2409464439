package auth

import (
	"errors"
	"net/http"
	"strings"
)

// ErrorKind tags authentication and authorization failures.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "UNAUTHORIZED"
	KindForbidden    ErrorKind = "FORBIDDEN"
	KindInvalidCSRF  ErrorKind = "INVALID_CSRF"
)

// KindInfrastructureFailure never reaches a client; it tags logs and metrics when the user
// store fails and the request is denied as UNAUTHORIZED.
const KindInfrastructureFailure ErrorKind = "INFRASTRUCTURE_FAILURE"

// User-facing messages. They deliberately say nothing about which check failed.
const (
	MsgNoSession         = "session not found"
	MsgInvalidSession    = "invalid or expired session"
	MsgAccessDenied      = "access denied"
	MsgPermissionDenied  = "permission denied"
	MsgSecurityCheckFail = "security check failed"
)

// AuthError is returned by the guard and the CSRF check.
type AuthError struct {
	Kind    ErrorKind
	Message string
}

func (e *AuthError) Error() string { return string(e.Kind) + ": " + e.Message }

// ErrorClass tags metrics by kind rather than by Go type.
func (e *AuthError) ErrorClass() string { return "auth_" + strings.ToLower(string(e.Kind)) }

// Status maps the error kind to an HTTP status code.
func (e *AuthError) Status() int {
	switch e.Kind {
	case KindForbidden, KindInvalidCSRF:
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

// Unauthorized builds a 401 error.
func Unauthorized(msg string) *AuthError { return &AuthError{Kind: KindUnauthorized, Message: msg} }

// Forbidden builds a 403 error.
func Forbidden(msg string) *AuthError { return &AuthError{Kind: KindForbidden, Message: msg} }

// InvalidCSRF builds the CSRF failure error.
func InvalidCSRF() *AuthError {
	return &AuthError{Kind: KindInvalidCSRF, Message: MsgSecurityCheckFail}
}

// KindOf returns the AuthError kind of err, or "" when err is not an AuthError.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// Store sentinels shared by adapters and services.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmailExists     = errors.New("email already registered")
)
