package config

type SecurityConfig interface {
	GetTokenSealKey() string
	GetSecureCookies() bool
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetTokenSealKey returns the base64 encoded 32 byte key used to seal tokens at rest.
// Empty disables sealing.
func (Security) GetTokenSealKey() string {
	return GetEnv("TOKEN_SEAL_KEY", "")
}

func (Security) GetSecureCookies() bool {
	return GetEnv("ENV", "DEV") != "DEV"
}
