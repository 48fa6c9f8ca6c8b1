// Package app wires configuration into a ready-to-use wizard. The server and
// the CLI share it.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"slide2video/internal/backend"
	"slide2video/internal/compose"
	"slide2video/internal/config"
	"slide2video/internal/events"
	"slide2video/internal/prefs"
	"slide2video/internal/supabase"
	"slide2video/internal/wizard"
)

type App struct {
	Config    *config.Config
	Client    *backend.Client
	Wizard    *wizard.Wizard
	Hub       *events.Hub
	Prefs     prefs.Store
	SessionID uuid.UUID

	logger  *slog.Logger
	closers []func()
}

// New builds the backend client, the preference store and the event fan-out,
// then the wizard on top. Extra publishers receive every wizard event after
// the hub.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, publishers ...events.Publisher) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{
		Config:    cfg,
		SessionID: uuid.New(),
		Hub:       events.NewHub(logger),
		logger:    logger,
	}
	a.closers = append(a.closers, a.Hub.Close)

	a.Client = backend.NewClient(cfg.BackendBaseURL, cfg.BackendAPIKey,
		backend.WithTimeout(cfg.RequestTimeout),
		backend.WithUploadTimeout(cfg.UploadTimeout),
		backend.WithRateLimit(cfg.BackendRateLimit),
	)

	a.Prefs = a.openPrefs(ctx)

	pubs := events.Multi{a.Hub}
	pubs = append(pubs, publishers...)

	opts := []wizard.Option{
		wizard.WithPrefs(a.Prefs),
		wizard.WithLogger(logger),
		wizard.WithPollInterval(cfg.PollInterval),
		wizard.WithProgressTick(cfg.ProgressTick),
		wizard.WithPollTimeout(cfg.PollTimeout),
		wizard.WithAspectRatio(cfg.DefaultAspectRatio),
	}

	if cfg.SupabaseEnabled() {
		sb, err := supabase.NewClient(cfg)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize supabase: %w", err)
		}
		realtime := supabase.NewRealtimePublisher(sb, cfg.SupabaseEventsTable, a.SessionID, logger)
		a.closers = append(a.closers, realtime.Close)
		pubs = append(pubs, realtime)

		storage := supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseStorageBucket)
		opts = append(opts, wizard.WithCompositor(compose.New(storage, compose.WithLogger(logger))))
		logger.Info("supabase integration enabled", "bucket", cfg.SupabaseStorageBucket, "events_table", cfg.SupabaseEventsTable)
	}

	opts = append(opts, wizard.WithPublisher(pubs))
	a.Wizard = wizard.New(a.Client, opts...)
	return a, nil
}

// openPrefs prefers Postgres when DATABASE_URL is set and falls back to the
// JSON file store if the database is unreachable.
func (a *App) openPrefs(ctx context.Context) prefs.Store {
	if a.Config.DatabaseURL != "" {
		store, err := prefs.OpenPostgres(ctx, a.Config.DatabaseURL, a.logger)
		if err == nil {
			a.closers = append(a.closers, func() { _ = store.Close() })
			a.logger.Info("preferences stored in postgres")
			return store
		}
		a.logger.Warn("postgres unavailable, falling back to file preferences", "error", err)
	}
	a.logger.Debug("preferences stored in file", "path", a.Config.PrefsPath)
	return prefs.NewFileStore(a.Config.PrefsPath)
}

// Close releases everything New opened, newest first. Safe to call twice.
func (a *App) Close() {
	closers := a.closers
	a.closers = nil
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
