package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/pingpong/internal/api/middleware"
	"github.com/mcoot/pingpong/internal/api/request"
	"github.com/mcoot/pingpong/internal/api/response"
	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/services/cache"
	"github.com/mcoot/pingpong/internal/services/tournament"
)

// MatchHandler handles match endpoints
type MatchHandler struct {
	cache      *cache.Cache
	tournament *tournament.Service
}

// NewMatchHandler creates a new match handler
func NewMatchHandler(c *cache.Cache, t *tournament.Service) *MatchHandler {
	return &MatchHandler{cache: c, tournament: t}
}

// List handles GET /api/v1/matches, optionally filtered by ?status=
func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	matches := h.cache.Matches()
	if s := r.URL.Query().Get("status"); s != "" {
		status := model.MatchStatus(s)
		if !status.Valid() {
			WriteError(w, NewInvalidRequestError("status must be upcoming, live or finished"))
			return
		}
		matches = h.cache.MatchesByStatus(status)
	}
	response.JSON(w, http.StatusOK, response.MatchesFromModel(matches, h.cache.PlayerName))
}

// Create handles POST /api/v1/matches
func (h *MatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	match, err := h.tournament.CreateMatch(r.Context(), middleware.GetActor(r.Context()),
		model.PlayerID(req.Player1ID), model.PlayerID(req.Player2ID))
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, response.MatchFromModel(match, h.cache.PlayerName))
}

// UpdateScore handles PUT /api/v1/matches/{id}/score. The match write is
// reported as success even if a player's record could not be updated; that
// failure comes back as stats_warning.
func (h *MatchHandler) UpdateScore(w http.ResponseWriter, r *http.Request) {
	var req request.UpdateScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	id := model.MatchID(mux.Vars(r)["id"])
	result, err := h.tournament.UpdateScore(r.Context(), middleware.GetActor(r.Context()), id,
		int(req.Player1Score), int(req.Player2Score))
	if err != nil {
		WriteError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, response.ScoreResponseFromResult(result, h.cache.PlayerName))
}

// Delete handles DELETE /api/v1/matches/{id}?confirm=true
func (h *MatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !requireConfirm(w, r) {
		return
	}
	id := model.MatchID(mux.Vars(r)["id"])
	if err := h.tournament.DeleteMatch(r.Context(), middleware.GetActor(r.Context()), id); err != nil {
		WriteError(w, err)
		return
	}
	response.NoContent(w)
}
