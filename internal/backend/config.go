package backend

import (
	"fmt"

	"finix/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.Backend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.Backend)
	}

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,

		PostgresHost:     appConfig.Postgres.Host,
		PostgresPort:     appConfig.Postgres.Port,
		PostgresDatabase: appConfig.Postgres.Database,
		PostgresUser:     appConfig.Postgres.User,
		PostgresPassword: appConfig.Postgres.Password,
		PostgresSSLMode:  appConfig.Postgres.SSLMode,
		PostgresMaxPool:  appConfig.Postgres.MaxPool,

		DataDirectory: appConfig.SeedDir,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.PostgresHost == "" {
			return fmt.Errorf("PostgreSQL host is required for postgres backend")
		}
		if c.PostgresDatabase == "" {
			return fmt.Errorf("PostgreSQL database is required for postgres backend")
		}
	case MemoryBackend:
		// DataDirectory may be empty: the store then starts blank.
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, PostgresBackend, MemoryBackend}
}
