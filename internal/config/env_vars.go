package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	portEnvVar      = "PORT"
	appNameVar      = "APP_NAME"
	publicURLEnvVar = "PUBLIC_URL"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Page Poster")
}

// GetPublicURL returns the origin the browser uses to reach this service (e.g. "https://poster.example.com").
// The OAuth broker redirects back to this origin after login.
func (EnvVars) GetPublicURL() string {
	return strings.TrimRight(GetEnv(publicURLEnvVar, "http://localhost:8080"), "/")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
