package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))

	s.RegisterRouteHandler("GET "+RouteAuthCallback, ChainMiddleware(s.AuthCallbackHandler(), s.BrowserMiddleware()...))

	s.RegisterRouteHandler("GET "+RouteAPIBootstrap, ChainMiddleware(s.BootstrapHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPISessions, ChainMiddleware(s.ListSessionsHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPISessions, ChainMiddleware(s.CreateSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPISession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("DELETE "+RouteAPISession, ChainMiddleware(s.RemoveSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteAPISessionActive, ChainMiddleware(s.ActivateSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPILogin, ChainMiddleware(s.LoginHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPILogout, ChainMiddleware(s.LogoutHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIRefresh, ChainMiddleware(s.RefreshHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIReload, ChainMiddleware(s.ReloadHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAPIPosts, ChainMiddleware(s.CreatePostHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAPIPreferences, ChainMiddleware(s.GetPreferencesHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("PUT "+RouteAPIPreferences, ChainMiddleware(s.PutPreferencesHandler(), s.APIMiddleware()...))

	// CORS preflight for every API path
	s.RegisterRouteHandler("OPTIONS /api/", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {}, s.CorsMiddleware))
}
