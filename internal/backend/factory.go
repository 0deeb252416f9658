package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finix/internal/storage"
	"finix/internal/storage/memory"
	"finix/internal/storage/postgres"
)

const flushTimeout = 5 * time.Second

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend opens the configured store and, unless Synchronous is set,
// puts a write-behind queue in front of it.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		result, err = f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		result, err = f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.Synchronous {
		return result, nil
	}
	return f.writeBehind(result), nil
}

func (f *DefaultFactory) writeBehind(inner *BackendResult) *BackendResult {
	wb := storage.NewWriteBehind(inner.Store, f.logger)
	return &BackendResult{
		Store: wb,
		Cleanup: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			defer cancel()
			flushErr := wb.Flush(ctx)
			closeErr := wb.Close()
			var innerErr error
			if inner.Cleanup != nil {
				innerErr = inner.Cleanup()
			}
			return errors.Join(flushErr, closeErr, innerErr)
		},
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &BackendResult{Store: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := postgres.New(ctx, postgres.Config{
		Host:        config.PostgresHost,
		Port:        config.PostgresPort,
		Database:    config.PostgresDatabase,
		User:        config.PostgresUser,
		Password:    config.PostgresPassword,
		SSLMode:     config.PostgresSSLMode,
		MaxPoolSize: config.PostgresMaxPool,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("initialize PostgreSQL store: %w", err)
	}

	f.logger.Info("Initialized PostgreSQL backend", "host", config.PostgresHost, "database", config.PostgresDatabase)
	return &BackendResult{
		Store: store,
		Cleanup: func() error {
			store.Close()
			return nil
		},
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	var store *memory.Store
	if config.DataDirectory != "" {
		store = memory.NewFromDir(config.DataDirectory)
	} else {
		store = memory.New()
	}

	f.logger.Info("Initialized memory backend", "data_directory", config.DataDirectory, "seeded_keys", store.Len())
	return &BackendResult{Store: store}, nil
}
