package config

import "time"

type CredentialConfig interface {
	GetExpiryCheckInterval() time.Duration
	GetRefreshThreshold() time.Duration
	GetRedirectPollAttempts() int
	GetRedirectPollInterval() time.Duration
}

type Credentials struct{}

var _ CredentialConfig = Credentials{}

func (Credentials) GetExpiryCheckInterval() time.Duration {
	return time.Minute
}

// GetRefreshThreshold is how close to expiry a token may get before it is refreshed.
func (Credentials) GetRefreshThreshold() time.Duration {
	return 5 * time.Minute
}

func (Credentials) GetRedirectPollAttempts() int {
	return 20
}

func (Credentials) GetRedirectPollInterval() time.Duration {
	return 100 * time.Millisecond
}
