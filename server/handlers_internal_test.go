package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestLandingPath(t *testing.T) {
	tests := []struct {
		next string
		want string
	}{
		{"", "/"},
		{"/compose", "/compose"},
		{"/compose?access_token=x", "/compose"},
		{"//evil.example/x", "/"},
		{"https://evil.example/x", "/"},
		{"compose", "/"},
		{`/\evil.example`, "/"},
	}
	for _, tt := range tests {
		t.Run(tt.next, func(t *testing.T) {
			require.Equal(t, tt.want, landingPath(tt.next))
		})
	}
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperrors.ErrSessionNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("wrapped: %w", apperrors.ErrInvalidRequest), http.StatusBadRequest, "invalid_request"},
		{apperrors.ErrTokenDecode, http.StatusBadRequest, "invalid_token"},
		{apperrors.ErrMissingToken, http.StatusUnauthorized, "unauthorized"},
		{apperrors.ErrRefreshFailed, http.StatusUnauthorized, "unauthorized"},
		{apperrors.ErrRefreshInProgress, http.StatusConflict, "conflict"},
		{apperrors.ErrPostFailed, http.StatusBadGateway, "backend_error"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "server_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeAppError(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil), tt.err)
			require.Equal(t, tt.status, rec.Code)

			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			require.Equal(t, tt.code, body["error"])
			if tt.status == http.StatusInternalServerError {
				require.Equal(t, "internal error", body["error_description"])
			}
		})
	}
}

func TestRecoverMiddleware(t *testing.T) {
	s := &Server{}
	handler := s.RecoverMiddleware(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLoginErrorMessage(t *testing.T) {
	require.Equal(t, "access_denied", loginErrorMessage(apperrors.ErrRedirect, "access_denied"))
	require.Equal(t, "Invalid token received", loginErrorMessage(apperrors.ErrTokenDecode, ""))
	require.Equal(t, "No active session to complete login", loginErrorMessage(apperrors.ErrActiveSessionTimeout, ""))
	require.Equal(t, "Login failed", loginErrorMessage(errors.New("x"), ""))
}
