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

// PlayerHandler handles player endpoints. Reads are served from the cache.
type PlayerHandler struct {
	cache      *cache.Cache
	tournament *tournament.Service
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(c *cache.Cache, t *tournament.Service) *PlayerHandler {
	return &PlayerHandler{cache: c, tournament: t}
}

// List handles GET /api/v1/players
func (h *PlayerHandler) List(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.PlayersFromModel(h.cache.Players()))
}

// Leaderboard handles GET /api/v1/leaderboard
func (h *PlayerHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.PlayersFromModel(h.cache.Leaderboard()))
}

// Register handles POST /api/v1/players. An existing player with the same
// name and room is returned instead of creating a duplicate.
func (h *PlayerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}

	player, created, err := h.tournament.FindOrCreatePlayer(r.Context(), req.Name, req.Room)
	if err != nil {
		WriteError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.JSON(w, status, response.RegisterResponse{
		Player:  response.PlayerFromModel(player),
		Created: created,
	})
}

// Delete handles DELETE /api/v1/players/{id}?confirm=true
func (h *PlayerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !requireConfirm(w, r) {
		return
	}
	id := model.PlayerID(mux.Vars(r)["id"])
	if err := h.tournament.DeletePlayer(r.Context(), middleware.GetActor(r.Context()), id); err != nil {
		WriteError(w, err)
		return
	}
	response.NoContent(w)
}
