package server

import (
	"encoding/json"
	"io"
	"net/http"
)

const (
	themeCookieName = "theme"
	themeDark       = "dark"
	themeLight      = "light"
)

type preferences struct {
	DarkMode bool `json:"darkMode"`
}

func (s *Server) GetPreferencesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefs := preferences{}
		if c, err := r.Cookie(themeCookieName); err == nil {
			prefs.DarkMode = c.Value == themeDark
		}
		writeJSON(w, http.StatusOK, prefs)
	}
}

func (s *Server) PutPreferencesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var prefs preferences
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<12)).Decode(&prefs); err != nil {
			writeJSONError(w, "invalid_request", "body must be a JSON object", http.StatusBadRequest)
			return
		}
		theme := themeLight
		if prefs.DarkMode {
			theme = themeDark
		}
		http.SetCookie(w, &http.Cookie{
			Name:     themeCookieName,
			Value:    theme,
			Path:     "/",
			MaxAge:   365 * 24 * 3600,
			Secure:   s.config.GetSecureCookies(),
			SameSite: http.SameSiteLaxMode,
		})
		writeJSON(w, http.StatusOK, prefs)
	}
}
