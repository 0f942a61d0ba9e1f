package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/malone1029/nia-results-tracker-sub003/internal/config"
	"github.com/malone1029/nia-results-tracker-sub003/internal/db"
	"github.com/malone1029/nia-results-tracker-sub003/internal/engine"
	"github.com/malone1029/nia-results-tracker-sub003/internal/migrate"
	"github.com/malone1029/nia-results-tracker-sub003/internal/observability"
	"github.com/malone1029/nia-results-tracker-sub003/internal/ratelimit"
)

// Options selects the workspace and config source for Open.
type Options struct {
	Workspace string
	// ConfigFile overrides <workspace>/hub.yml when set.
	ConfigFile string
	// Override is applied after the file is loaded and before validation
	// of the final config.
	Override  func(*config.Config)
	LogOutput io.Writer
}

// App is a migrated database plus the engine and ambient services built from
// one config.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Engine  engine.Engine
	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Open loads config, opens and migrates the database and builds the engine.
func Open(ctx context.Context, opts Options) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: opts.LogOutput,
	})
	conn, err := db.Open(db.Config{
		Workspace: opts.Workspace,
		Driver:    cfg.Database.Driver,
		DSN:       cfg.Database.DSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := migrate.Migrate(conn, db.Dialect(cfg.Database.Driver)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	metrics := observability.NewMetrics()
	e := engine.New(conn, cfg)
	e.Logger = logger
	e.Metrics = metrics
	logger.Debug("workspace opened", "driver", cfg.Database.Driver, "timezone", cfg.Snapshot.Timezone)
	return &App{
		Config:  cfg,
		DB:      conn,
		Engine:  e,
		Logger:  logger,
		Metrics: metrics,
	}, nil
}

func loadConfig(opts Options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigFile != "" {
		cfg, err = config.FromFile(opts.ConfigFile)
	} else {
		cfg, err = config.LoadOptional(opts.Workspace)
	}
	if err != nil {
		return nil, err
	}
	if opts.Override != nil {
		opts.Override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// RateLimiter builds the per-actor write limiter from config.
func (a *App) RateLimiter() ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		RequestsPerMinute: a.Config.RateLimit.RequestsPerMinute,
		Burst:             a.Config.RateLimit.Burst,
		EntryTTL:          a.Config.RateLimit.EntryTTL,
	})
}

func (a *App) Close() error {
	if a == nil || a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
