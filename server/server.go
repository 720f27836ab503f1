// Package server exposes the dashboard over HTTP. Every browser session is a workspace,
// identified by a session cookie.
package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/fb-page-poster/dashboard"
	"github.com/jrsteele09/fb-page-poster/internal/config"
	"github.com/jrsteele09/fb-page-poster/internal/metrics"
	"github.com/rs/zerolog/log"
)

const maxUploadBytes = 64 << 20

type Server struct {
	env       string // Environment (e.g., "DEV", "PROD")
	mux       *http.ServeMux
	routes    []string
	config    config.Config
	dashboard *dashboard.Service
	metrics   *metrics.Metrics
}

func New(cfg config.Config, svc *dashboard.Service, m *metrics.Metrics) *Server {
	s := &Server{
		env:       cfg.GetEnv(),
		mux:       http.NewServeMux(),
		config:    cfg,
		dashboard: svc,
		metrics:   m,
	}
	s.initRoutes()
	s.logRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)
		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	color, ok := methodColors[method]
	if !ok {
		color = Gray
	}
	log.Debug().Msgf("[%s] %s", color+paddedMethod+ResetColor, path)
}
