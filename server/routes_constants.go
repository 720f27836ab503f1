package server

// Route path constants
const (
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"

	// OAuth redirect target the broker sends the browser back to
	RouteAuthCallback = "/auth/callback"

	RouteAPIBootstrap     = "/api/bootstrap"
	RouteAPISessions      = "/api/sessions"
	RouteAPISession       = "/api/sessions/{id}"
	RouteAPISessionActive = "/api/sessions/{id}/active"
	RouteAPILogin         = "/api/sessions/{id}/login"
	RouteAPILogout        = "/api/sessions/{id}/logout"
	RouteAPIRefresh       = "/api/sessions/{id}/refresh"
	RouteAPIReload        = "/api/sessions/{id}/reload"
	RouteAPIPosts         = "/api/sessions/{id}/pages/{pageId}/posts"
	RouteAPIPreferences   = "/api/preferences"
)
