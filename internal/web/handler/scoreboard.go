package handler

import (
	"log/slog"
	"net/http"

	"github.com/a-h/templ"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/services/cache"
	"github.com/mcoot/pingpong/internal/web/components"
)

// ScoreboardHandler renders the public scoreboard from the local cache
type ScoreboardHandler struct {
	cache  *cache.Cache
	logger *slog.Logger
}

// NewScoreboardHandler creates a new ScoreboardHandler
func NewScoreboardHandler(c *cache.Cache, logger *slog.Logger) *ScoreboardHandler {
	return &ScoreboardHandler{cache: c, logger: logger}
}

// Scoreboard renders the full page, or just the scoreboard section when
// ?fragment=1 is set so the page can refresh itself on live changes
func (h *ScoreboardHandler) Scoreboard(w http.ResponseWriter, r *http.Request) {
	data := components.ScoreboardData{
		Live:        h.cache.MatchesByStatus(model.MatchStatusLive),
		Upcoming:    h.cache.MatchesByStatus(model.MatchStatusUpcoming),
		Finished:    h.cache.MatchesByStatus(model.MatchStatusFinished),
		Leaderboard: h.cache.Leaderboard(),
		Stats:       h.cache.Stats(),
		Loaded:      h.cache.Loaded(),
		Name:        h.cache.PlayerName,
	}

	var view templ.Component = components.Scoreboard(data)
	if r.URL.Query().Get("fragment") != "1" {
		view = components.Page("Ping Pong Tournament", view)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := view.Render(r.Context(), w); err != nil {
		h.logger.Error("failed to render scoreboard", slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
