package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jrsteele09/fb-page-poster/dashboard"
	apperrors "github.com/jrsteele09/fb-page-poster/internal/errors"
)

// BootstrapHandler hydrates the workspace on page load, creating the default session if needed.
func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.dashboard.Bootstrap(r.Context(), workspaceFrom(r))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ws)
	}
}

func (s *Server) ListSessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.dashboard.ListSessions(r.Context(), workspaceFrom(r))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
	}
}

func (s *Server) CreateSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeJSONError(w, "invalid_request", "body must be a JSON object", http.StatusBadRequest)
			return
		}
		tab, err := s.dashboard.CreateSession(r.Context(), workspaceFrom(r), body.Name)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, tab)
	}
}

func (s *Server) SessionHandler() http.HandlerFunc {
	return s.sessionViewHandler(s.dashboard.Session)
}

func (s *Server) RemoveSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		activeID, err := s.dashboard.RemoveSession(r.Context(), workspaceFrom(r), r.PathValue("id"))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"activeId": activeID})
	}
}

func (s *Server) ActivateSessionHandler() http.HandlerFunc {
	return s.sessionViewHandler(s.dashboard.Activate)
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return s.sessionViewHandler(s.dashboard.Logout)
}

func (s *Server) RefreshHandler() http.HandlerFunc {
	return s.sessionViewHandler(s.dashboard.Refresh)
}

func (s *Server) ReloadHandler() http.HandlerFunc {
	return s.sessionViewHandler(s.dashboard.Reload)
}

type sessionOp func(ctx context.Context, workspaceID, sessionID string) (dashboard.SessionView, error)

func (s *Server) sessionViewHandler(op sessionOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			writeAppError(w, r, apperrors.ErrInvalidRequest)
			return
		}
		view, err := op(r.Context(), workspaceFrom(r), id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}
