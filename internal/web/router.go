// Package web serves the public scoreboard and its live feeds.
package web

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/pingpong/internal/services/cache"
	"github.com/mcoot/pingpong/internal/web/handler"
	"github.com/mcoot/pingpong/internal/web/live"
	"github.com/mcoot/pingpong/internal/web/middleware"
)

// RouterConfig holds configuration for the web router
type RouterConfig struct {
	Logger *slog.Logger
	Cache  *cache.Cache
	Hub    *live.Hub
}

// NewRouter creates a new web router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	scoreboard := handler.NewScoreboardHandler(cfg.Cache, cfg.Logger)

	r.HandleFunc("/", scoreboard.Scoreboard).Methods(http.MethodGet)

	// Live change feeds
	r.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		live.ServeSSE(w, r, cfg.Hub)
	}).Methods(http.MethodGet)
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		live.ServeWS(w, r, cfg.Hub)
	}).Methods(http.MethodGet)

	return r
}
