package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"worktracker/internal/adapters"
	"worktracker/internal/amqp"
	"worktracker/internal/cache"
	"worktracker/internal/core"
	gdocs "worktracker/internal/documents/google"
	"worktracker/internal/documents/memory"
	"worktracker/internal/documents/redis"
	"worktracker/internal/identity"
	gidentity "worktracker/internal/identity/google"
	"worktracker/internal/identity/token"
	applog "worktracker/internal/log"
	"worktracker/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(applog.FieldComponent, applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case RedisBackend:
		return f.createRedisBackend(ctx, config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP is optional; without it the mirror worker finds documents by scanning
	var publisher adapters.Publisher
	if config.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without sync messages", "error", err)
		} else {
			publisher = amqpClient
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	store := adapters.NewQueuedDocumentStore(sqliteRepo, publisher)

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", publisher != nil)

	return &BackendResult{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createRedisBackend(ctx context.Context, config Config) (*BackendResult, error) {
	store, err := redis.Dial(ctx, redis.Config{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis store: %w", err)
	}

	f.logger.Info("Initialized Redis backend", "addr", config.RedisAddr, "db", config.RedisDB)

	return &BackendResult{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := gdocs.New(ctx, gdocs.Config{
		SpreadsheetID: config.GoogleSpreadsheetID,
		SheetName:     config.GoogleSheetName,
		Credentials:   config.Google,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	caches := cache.NewManager(f.logger)
	caches.Register(cli.RowCache())
	if config.RowCacheSweep > 0 {
		caches.Start(context.WithoutCancel(ctx), config.RowCacheSweep)
	}

	f.logger.Info("Initialized Google Sheets backend", "sheet", config.GoogleSheetName)

	return &BackendResult{
		Store: cli,
		Cleanup: func() error {
			caches.Stop()
			return nil
		},
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() (*BackendResult, error) {
	f.logger.Info("Initialized memory backend; documents are lost on exit")
	return &BackendResult{Store: memory.New()}, nil
}

// CreateIdentity builds the identity provider selected by config.Identity.
func (f *DefaultFactory) CreateIdentity(ctx context.Context, config Config) (identity.Provider, error) {
	switch config.Identity {
	case LocalIdentity, "":
		id := core.Identity{ID: config.LocalUserID, Name: config.LocalUserName}
		if id.Key() == "" {
			return nil, errors.New("local identity needs a user id")
		}
		f.logger.Info("Using local identity", applog.FieldUserID, id.Key())
		return identity.NewLocal(id, true), nil

	case GoogleIdentity:
		if !config.Google.HasOAuth() {
			return nil, errors.New("google identity needs an OAuth client and token")
		}
		f.logger.Info("Using Google identity")
		return gidentity.New(config.Google), nil

	case TokenIdentity:
		manager, err := token.NewManager(config.SessionTokenSecret, config.SessionTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("session tokens: %w", err)
		}
		f.logger.Info("Using session token identity", "token_file", config.SessionTokenFile)
		return token.NewProvider(manager, FileTokenSource(config.SessionTokenFile)), nil

	default:
		return nil, fmt.Errorf("unsupported identity provider: %s", config.Identity)
	}
}

// FileTokenSource reads a bearer token from path on every sign-in. An empty
// path yields token.ErrMissingToken.
func FileTokenSource(path string) token.Source {
	return func(ctx context.Context) (string, error) {
		if path == "" {
			return "", token.ErrMissingToken
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		raw := strings.TrimSpace(string(b))
		if raw == "" {
			return "", token.ErrMissingToken
		}
		return raw, nil
	}
}
