package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/pingpong/internal/api/handler"
	"github.com/mcoot/pingpong/internal/api/middleware"
	"github.com/mcoot/pingpong/internal/api/response"
	"github.com/mcoot/pingpong/internal/services/auth"
	"github.com/mcoot/pingpong/internal/services/cache"
	"github.com/mcoot/pingpong/internal/services/tournament"
	"github.com/mcoot/pingpong/internal/storage"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	Store       storage.Store
	AuthService *auth.Service
	Tournament  *tournament.Service
	Cache       *cache.Cache
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	playerHandler := handler.NewPlayerHandler(cfg.Cache, cfg.Tournament)
	matchHandler := handler.NewMatchHandler(cfg.Cache, cfg.Tournament)
	adminHandler := handler.NewAdminHandler(cfg.AuthService, cfg.Store, cfg.Logger)

	// Create middleware
	adminMiddleware := middleware.AdminAuth(cfg.AuthService, cfg.Store, cfg.Logger)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Public reads, served from the synchronized cache
	api.HandleFunc("/health", healthHandler(cfg.Cache)).Methods(http.MethodGet)
	api.HandleFunc("/players", playerHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", playerHandler.Leaderboard).Methods(http.MethodGet)
	api.HandleFunc("/matches", matchHandler.List).Methods(http.MethodGet)

	// Registration and admin sign-in
	api.HandleFunc("/players", playerHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/admin/login", adminHandler.Login).Methods(http.MethodPost)

	// Admin-only mutations
	admin := api.NewRoute().Subrouter()
	admin.Use(adminMiddleware)
	admin.HandleFunc("/matches", matchHandler.Create).Methods(http.MethodPost)
	admin.HandleFunc("/matches/{id}/score", matchHandler.UpdateScore).Methods(http.MethodPut)
	admin.HandleFunc("/matches/{id}", matchHandler.Delete).Methods(http.MethodDelete)
	admin.HandleFunc("/players/{id}", playerHandler.Delete).Methods(http.MethodDelete)

	return r
}

func healthHandler(c *cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, response.Health{
			Status: "ok",
			Loaded: c.Loaded(),
			Stats:  c.Stats(),
		})
	}
}
