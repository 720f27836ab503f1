package config

import (
	"strings"
	"time"
)

const backendURLEnvVar = "BACKEND_URL"

// BackendConfig points at the broker that owns the Facebook OAuth app, token refresh and the Graph API calls.
type BackendConfig interface {
	GetBackendURL() string
	GetBackendTimeout() time.Duration
}

type Backend struct{}

var _ BackendConfig = Backend{}

func (Backend) GetBackendURL() string {
	return strings.TrimRight(GetEnv(backendURLEnvVar, "http://127.0.0.1:8000/api"), "/")
}

// GetBackendTimeout bounds a single broker round trip. Uploads can be large so this is generous.
func (Backend) GetBackendTimeout() time.Duration {
	return 2 * time.Minute
}
