package auth

import (
	"errors"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindDuplicate
	KindAuthentication
	KindAuthorization
	KindReuseDetected
	KindNotFound
)

// Error is the tagged error every auth operation returns to its caller. It
// carries the HTTP status and a client-safe code and message; Err holds the
// underlying cause and is never rendered.
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so that wrapped copies of a sentinel still compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func (e *Error) wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func newError(kind Kind, status int, code, message string) *Error {
	return &Error{Kind: kind, Status: status, Code: code, Message: message}
}

var (
	ErrMissingCredentials = newError(KindValidation, http.StatusBadRequest, "invalid_request", "Email and password are required")
	ErrInvalidRole        = newError(KindValidation, http.StatusBadRequest, "invalid_role", "Role must be one of: user, admin")
	ErrPasswordTooLong    = newError(KindValidation, http.StatusBadRequest, "password_too_long", "Password must be at most 72 bytes")
	ErrUserExists         = newError(KindDuplicate, http.StatusBadRequest, "user_exists", "User already exists")

	ErrInvalidCredentials = newError(KindAuthentication, http.StatusUnauthorized, "invalid_credentials", "Invalid credentials")
	ErrNoToken            = newError(KindAuthentication, http.StatusUnauthorized, "no_token", "No token provided")
	ErrNoRefreshToken     = newError(KindAuthentication, http.StatusUnauthorized, "no_refresh", "No refresh token provided")
	ErrUserNotFound       = newError(KindAuthentication, http.StatusUnauthorized, "user_not_found", "User not found")

	ErrInvalidToken   = newError(KindAuthorization, http.StatusForbidden, "invalid_token", "Invalid token")
	ErrSessionRevoked = newError(KindAuthorization, http.StatusForbidden, "session_revoked", "Session is no longer active. Please log in again.")
	ErrForbidden      = newError(KindAuthorization, http.StatusForbidden, "forbidden", "Access denied. Admins only.")

	ErrReuseDetected = newError(KindReuseDetected, http.StatusForbidden, "refresh_reuse_detected", "Refresh token reuse detected. Session revoked, please log in again.")

	ErrNotFound = newError(KindNotFound, http.StatusNotFound, "not_found", "User not found")

	ErrInternal = newError(KindInternal, http.StatusInternalServerError, "internal_error", "Internal server error")
)

// AsError returns the tagged error inside err, or ErrInternal wrapping it.
func AsError(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return ErrInternal.wrap(err)
}
