package server

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/rs/zerolog/log"
)

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encoding response")
	}
}

// writeJSONError writes an error response
func writeJSONError(w http.ResponseWriter, errorCode, description string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}

// writeAppError maps a domain error to its HTTP status and error code.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, "server_error"
	switch {
	case apperrors.Is(err, apperrors.ErrSessionNotFound), apperrors.Is(err, apperrors.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case apperrors.Is(err, apperrors.ErrInvalidRequest):
		status, code = http.StatusBadRequest, "invalid_request"
	case apperrors.Is(err, apperrors.ErrRedirect), apperrors.Is(err, apperrors.ErrTokenDecode):
		status, code = http.StatusBadRequest, "invalid_token"
	case apperrors.Is(err, apperrors.ErrMissingToken),
		apperrors.Is(err, apperrors.ErrNoRefreshToken),
		apperrors.Is(err, apperrors.ErrUnauthorized),
		apperrors.Is(err, apperrors.ErrRefreshFailed):
		status, code = http.StatusUnauthorized, "unauthorized"
	case apperrors.Is(err, apperrors.ErrRefreshInProgress), apperrors.Is(err, apperrors.ErrActiveSessionTimeout):
		status, code = http.StatusConflict, "conflict"
	case apperrors.Is(err, apperrors.ErrLoginFailed),
		apperrors.Is(err, apperrors.ErrPostFailed),
		apperrors.Is(err, apperrors.ErrInvalidResponse):
		status, code = http.StatusBadGateway, "backend_error"
	}

	description := err.Error()
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		description = "internal error"
	}
	writeJSONError(w, code, description, status)
}
