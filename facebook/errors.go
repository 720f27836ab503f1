package facebook

import (
	"fmt"
	"net/http"

	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
)

// StatusError is a non-2xx answer from the broker.
type StatusError struct {
	Operation  string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: backend returned %d: %s", e.Operation, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: backend returned %d", e.Operation, e.StatusCode)
}

// Unwrap lets callers test for ErrUnauthorized with errors.Is.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return apperrors.ErrUnauthorized
	}
	return nil
}
