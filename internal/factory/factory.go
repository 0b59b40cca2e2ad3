package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mcoot/pingpong/internal/config"
	"github.com/mcoot/pingpong/internal/dependencies/clock"
	"github.com/mcoot/pingpong/internal/dependencies/ids"
	"github.com/mcoot/pingpong/internal/localstore"
	"github.com/mcoot/pingpong/internal/services/auth"
	"github.com/mcoot/pingpong/internal/services/cache"
	"github.com/mcoot/pingpong/internal/services/session"
	"github.com/mcoot/pingpong/internal/services/tournament"
	"github.com/mcoot/pingpong/internal/storage"
	"github.com/mcoot/pingpong/internal/storage/memory"
	"github.com/mcoot/pingpong/internal/storage/postgres"
	redisstorage "github.com/mcoot/pingpong/internal/storage/redis"
	"github.com/mcoot/pingpong/internal/web/live"
)

// App contains all wired application components
type App struct {
	// Storage
	Store storage.Store
	// Local is the client-side key-value store; nil for the server
	Local localstore.Store

	// External dependencies
	Clock clock.Clock
	IDs   ids.Generator

	// Services
	AuthService *auth.Service
	Tournament  *tournament.Service
	Cache       *cache.Cache
	Hub         *live.Hub
	Broadcaster *live.Broadcaster

	// Client-side services, set only when Local is
	AuthClient *auth.Client
	Session    *session.Manager

	logger *slog.Logger
	detach func()
}

// Config holds configuration for the application factory
type Config struct {
	// Env is the loaded process configuration
	Env config.Config
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// Local enables the client-side session services (optional)
	Local localstore.Store
}

// New creates a new application with all dependencies wired. Nothing is
// started until Start.
func New(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	store, err := newStore(cfg.Env, logger)
	if err != nil {
		return nil, err
	}

	return newWithDependencies(store, cfg.Local, clock.New(), ids.New(), cfg.Env, logger), nil
}

func newStore(env config.Config, logger *slog.Logger) (storage.Store, error) {
	storageType := env.StorageType
	if storageType == "" {
		storageType = config.StorageMemory
	}
	buffer := env.ChangeBuffer

	switch storageType {
	case config.StorageMemory:
		if buffer > 0 {
			return memory.NewWithBuffer(buffer, logger), nil
		}
		return memory.New(logger), nil

	case config.StorageRedis:
		if env.RedisURL == "" {
			return nil, errors.New("REDIS_URL required when STORAGE_TYPE is redis")
		}
		redisCfg := redisstorage.DefaultConfig()
		redisCfg.URL = env.RedisURL
		if buffer > 0 {
			redisCfg.ChangeBuffer = buffer
		}
		store, err := redisstorage.New(redisCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return store, nil

	case config.StoragePostgres:
		if env.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL required when STORAGE_TYPE is postgres")
		}
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = env.DatabaseURL
		if buffer > 0 {
			pgCfg.ChangeBuffer = buffer
		}
		store, err := postgres.New(pgCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("invalid StorageType %q", storageType)
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Store, local localstore.Store, clk clock.Clock, gen ids.Generator, env config.Config, logger *slog.Logger) *App {
	authCfg := auth.DefaultConfig()
	if env.JWTSecret != "" {
		authCfg.Secret = env.JWTSecret
	}
	if env.SessionTTL > 0 {
		authCfg.SessionDuration = env.SessionTTL
	}
	tournamentCfg := tournament.DefaultConfig()
	if env.StatsRetries > 0 {
		tournamentCfg.StatsRetries = env.StatsRetries
	}

	authService := auth.New(store, clk, gen, authCfg)
	tournamentService := tournament.New(store, clk, gen, tournamentCfg, logger)
	c := cache.New(store, cache.DefaultConfig(), logger)
	hub := live.NewHub(logger)

	app := &App{
		Store:       store,
		Local:       local,
		Clock:       clk,
		IDs:         gen,
		AuthService: authService,
		Tournament:  tournamentService,
		Cache:       c,
		Hub:         hub,
		Broadcaster: live.NewBroadcaster(hub, c, logger),
		logger:      logger.With(slog.String("component", "app")),
	}

	if local != nil {
		app.AuthClient = auth.NewClient(authService, local, logger)
		app.Session = session.New(local, app.AuthClient, store, tournamentService, logger)
	}
	return app
}

// Start mounts the application: it starts the live hub, attaches it to the
// cache, starts the cache and resolves the client session if there is one
func (a *App) Start(ctx context.Context) error {
	go a.Hub.Run()
	a.detach = a.Broadcaster.Attach()

	if err := a.Cache.Start(ctx); err != nil {
		a.detach()
		a.Hub.Close()
		return fmt.Errorf("starting cache: %w", err)
	}

	if a.Session != nil {
		if err := a.Session.Start(ctx); err != nil {
			a.Cache.Close()
			a.detach()
			a.Hub.Close()
			return fmt.Errorf("starting session: %w", err)
		}
	}

	a.logger.Info("application started")
	return nil
}

// Close unmounts everything Start acquired and closes the stores
func (a *App) Close() error {
	if a.Session != nil {
		a.Session.Close()
	}
	a.Cache.Close()
	if a.detach != nil {
		a.detach()
	}
	a.Hub.Close()

	var errs []error
	if err := a.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	if a.Local != nil {
		if err := a.Local.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing local store: %w", err))
		}
	}
	a.logger.Info("application stopped")
	return errors.Join(errs...)
}
