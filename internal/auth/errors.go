package auth

import (
	"github.com/pawhub/pawhub/internal/platform/httpx"
)

// Error is a client-facing auth failure. It unwraps to one of the httpx
// sentinel kinds so transports can map it without knowing auth.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

func newError(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

var (
	ErrEmailTaken       = newError(httpx.ErrDuplicate, "email already registered")
	ErrUsernameTaken    = newError(httpx.ErrDuplicate, "username already taken")
	ErrTermsNotAccepted = newError(httpx.ErrValidation, "terms must be accepted")
	ErrInvalidRole      = newError(httpx.ErrValidation, "role must be owner or provider")
	ErrPasswordTooLong  = newError(httpx.ErrValidation, "password must be at most 72 bytes")
	ErrInvalidToken     = newError(httpx.ErrValidation, "invalid or expired token")
	ErrAlreadyVerified  = newError(httpx.ErrValidation, "email already verified")
	ErrUserNotFound     = newError(httpx.ErrValidation, "user not found")

	ErrInvalidCredentials  = newError(httpx.ErrUnauthorized, "invalid credentials")
	ErrInvalidRefreshToken = newError(httpx.ErrUnauthorized, "invalid refresh token")
	ErrInvalidAccessToken  = newError(httpx.ErrUnauthorized, "missing or invalid access token")

	ErrLoginLocked = newError(httpx.ErrTooManyRequests, "too many failed login attempts, try again later")
)
