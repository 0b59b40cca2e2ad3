package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mcoot/pingpong/internal/api/request"
	"github.com/mcoot/pingpong/internal/api/response"
	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/services/auth"
	"github.com/mcoot/pingpong/internal/storage"
)

// AdminHandler handles admin sign-in
type AdminHandler struct {
	authService *auth.Service
	store       storage.Store
	logger      *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(authService *auth.Service, store storage.Store, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		authService: authService,
		store:       store,
		logger:      logger.With(slog.String("component", "admin-handler")),
	}
}

// Login handles POST /api/v1/admin/login. Valid credentials for a principal
// that is not on the allow-list get no token.
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewInvalidRequestError("invalid request body"))
		return
	}
	if req.Email == "" {
		WriteError(w, NewInvalidRequestError("email is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	session, err := h.authService.SignInWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}

	ok, err := h.store.IsAdmin(r.Context(), session.Principal.ID)
	if err != nil || !ok {
		h.logger.Warn("admin login refused",
			slog.String("principal_id", string(session.Principal.ID)),
			slog.Bool("check_failed", err != nil))
		WriteError(w, model.ErrNotAuthorized)
		return
	}

	response.JSON(w, http.StatusOK, response.LoginResponseFromSession(session))
}
