package errors

import (
	"errors"
	"fmt"
)

// Common error types for the page poster
var (
	// Session registry errors
	ErrSessionNotFound = errors.New("session not found")
	ErrNoActiveSession = errors.New("no active session")

	// Credential errors
	ErrMissingToken         = errors.New("missing access token")
	ErrTokenDecode          = errors.New("unable to decode access token")
	ErrRedirect             = errors.New("login redirect returned an error")
	ErrActiveSessionTimeout = errors.New("timed out resolving the active session")
	ErrRefreshFailed        = errors.New("token refresh failed")
	ErrRefreshInProgress    = errors.New("token refresh already in progress")
	ErrNoRefreshToken       = errors.New("no refresh token")

	// Broker errors
	ErrUnauthorized    = errors.New("unauthorized")
	ErrInvalidResponse = errors.New("invalid response from backend")
	ErrLoginFailed     = errors.New("failed to initiate facebook login")
	ErrPostFailed      = errors.New("failed to create post")

	// General errors
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternal       = errors.New("internal error")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
