package config

type Config interface {
	EnvConfig
	CorsConfig
	BackendConfig
	CredentialConfig
	StorageConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetPublicURL() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Backend
	Credentials
	Storage
	Security
}

func New() Config {
	return mainConfig{}
}
