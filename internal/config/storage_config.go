package config

import "time"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type StorageConfig interface {
	GetStore() string
	GetDatabaseURL() string
	GetWorkspaceIdleTTL() time.Duration
	GetJanitorInterval() time.Duration
}

type Storage struct{}

var _ StorageConfig = Storage{}

func (Storage) GetStore() string {
	return GetEnv("STORE", StoreMemory)
}

func (Storage) GetDatabaseURL() string {
	return GetEnv("DATABASE_URL", "")
}

// GetWorkspaceIdleTTL is how long an untouched workspace survives. Browsers drop the
// workspace cookie when they close, so anything older is unreachable.
func (Storage) GetWorkspaceIdleTTL() time.Duration {
	return 24 * time.Hour
}

func (Storage) GetJanitorInterval() time.Duration {
	return 10 * time.Minute
}
