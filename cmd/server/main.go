package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcoot/pingpong/internal/api"
	"github.com/mcoot/pingpong/internal/config"
	"github.com/mcoot/pingpong/internal/factory"
	"github.com/mcoot/pingpong/internal/web"
)

func main() {
	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	env, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create application factory
	app, err := factory.New(factory.Config{
		Env:    *env,
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		logger.Error("failed to start application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create API router
	apiRouter := api.NewRouter(api.RouterConfig{
		Logger:      logger,
		Store:       app.Store,
		AuthService: app.AuthService,
		Tournament:  app.Tournament,
		Cache:       app.Cache,
	})

	// Create web router
	webRouter := web.NewRouter(web.RouterConfig{
		Logger: logger,
		Cache:  app.Cache,
		Hub:    app.Hub,
	})

	// Combine routers
	mux := http.NewServeMux()
	mux.Handle("/api/", apiRouter)
	mux.Handle("/", webRouter)

	// Create server
	serverConfig := api.DefaultServerConfig()
	serverConfig.Port = env.ServerPort
	server := api.NewServer(mux, serverConfig, logger)

	if err := server.Listen(); err != nil {
		logger.Error("failed to listen", slog.String("error", err.Error()))
		_ = app.Close()
		os.Exit(1)
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started", slog.String("addr", server.Addr()))

	exitCode := 0
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			exitCode = 1
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		// Live streams only end when the hub closes
		app.Hub.Close()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			exitCode = 1
		}
	}

	if err := app.Close(); err != nil {
		logger.Error("close error", slog.String("error", err.Error()))
		exitCode = 1
	}
	logger.Info("server stopped")
	cancel()
	os.Exit(exitCode)
}
