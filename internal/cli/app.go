package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"worktracker/internal/backend"
	"worktracker/internal/config"
	"worktracker/internal/services"
	"worktracker/internal/session"
	"worktracker/internal/state"
)

// ErrSignedOut is returned when a command needs a session but nobody is
// signed in.
var ErrSignedOut = errors.New("not signed in")

// ErrLoadFailed is returned by Open when the user's document could not be
// read. The session is then empty and any edit would overwrite the document.
var ErrLoadFailed = errors.New("document not loaded")

// App is one host process: a document store, an identity provider and the
// session that binds them to the entity store.
type App struct {
	Session *session.Controller
	Metrics *services.Metrics

	backend *backend.BackendResult
	logger  *slog.Logger
}

// NewApp builds the store, sync engine and session for cfg. Nothing is
// loaded until Open.
func NewApp(ctx context.Context, cfg *config.Config, factory backend.Factory, registerer prometheus.Registerer, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if factory == nil {
		factory = backend.NewFactory(logger)
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}

	res, err := factory.CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	provider, err := factory.CreateIdentity(ctx, bcfg)
	if err != nil {
		_ = res.Close()
		return nil, err
	}

	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}
	metrics := services.NewMetrics(registerer)
	store := state.New()
	syncer := services.NewSyncer(store, res.Store, services.SyncConfig{
		Debounce: cfg.SyncDebounce,
		MaxDelay: cfg.SyncMaxDelay,
	}, metrics, logger)

	return &App{
		Session: session.New(store, syncer, provider, logger),
		Metrics: metrics,
		backend: res,
		logger:  logger,
	}, nil
}

// Open starts the session. When the provider has no remembered identity it
// is asked to sign in. Open returns once the session is settled, with
// ErrLoadFailed if the document load failed.
func (a *App) Open(ctx context.Context) error {
	a.Session.Start(ctx)
	if a.Session.State() != session.Authenticated {
		if err := a.Session.SignIn(ctx); err != nil {
			return err
		}
		if a.Session.State() != session.Authenticated {
			return ErrSignedOut
		}
	}
	if err := a.Session.LastError(); err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return nil
}

// Close writes pending edits and releases the backend.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Session.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("session: %w", err))
	}
	if err := a.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("backend: %w", err))
	}
	return errors.Join(errs...)
}

// Store is the signed-in user's entity store.
func (a *App) Store() *state.Store {
	return a.Session.Store()
}
