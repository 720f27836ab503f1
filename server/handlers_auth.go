package server

import (
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
	"github.com/rs/zerolog/log"
)

// LoginHandler starts the OAuth flow for a session. The browser follows redirect_url.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirectURL, err := s.dashboard.Login(r.Context(), workspaceFrom(r), r.PathValue("id"))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"redirect_url": redirectURL})
	}
}

// AuthCallbackHandler receives the browser back from the broker. The token is stored on the
// active session and the browser is sent on to a URL without the token parameters.
func (s *Server) AuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		redirect, sessionID, err := s.dashboard.CompleteLogin(r.Context(), workspaceFrom(r), query)
		if err != nil {
			log.Warn().Err(err).Str("workspace", workspaceFrom(r)).Msg("login callback failed")
			http.Redirect(w, r, "/?login_error="+url.QueryEscape(loginErrorMessage(err, query.Get("error"))), http.StatusSeeOther)
			return
		}
		log.Info().Str("workspace", workspaceFrom(r)).Str("session", sessionID).Msg("login completed")
		http.Redirect(w, r, landingPath(redirect.RedirectURL), http.StatusSeeOther)
	}
}

func loginErrorMessage(err error, brokerError string) string {
	switch {
	case apperrors.Is(err, apperrors.ErrRedirect):
		return brokerError
	case apperrors.Is(err, apperrors.ErrMissingToken), apperrors.Is(err, apperrors.ErrTokenDecode):
		return "Invalid token received"
	case apperrors.Is(err, apperrors.ErrActiveSessionTimeout):
		return "No active session to complete login"
	default:
		return "Login failed"
	}
}

// landingPath accepts only same-origin relative paths.
func landingPath(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "/"
	}
	return u.Path
}
