package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/services/auth"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidScore       = "INVALID_SCORE"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodePlayerNotFound     = "PLAYER_NOT_FOUND"
	CodeMatchNotFound      = "MATCH_NOT_FOUND"
	CodeMatchFinished      = "MATCH_FINISHED"
	CodeInvalidTransition  = "INVALID_STATUS_TRANSITION"
	CodeConfirmRequired    = "CONFIRMATION_REQUIRED"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeConflict           = "CONFLICT"
	CodeInternalError      = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	he := toHTTPError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(he.status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: he.apiError})
}

// Status returns the HTTP status an error maps to
func Status(err error) int {
	return toHTTPError(err).status
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	switch {
	// Validation
	case errors.Is(err, model.ErrNameRequired),
		errors.Is(err, model.ErrRoomRequired),
		errors.Is(err, model.ErrPlayerRequired),
		errors.Is(err, model.ErrSamePlayer):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, err.Error()}}
	case errors.Is(err, model.ErrInvalidScore):
		return &httpError{http.StatusBadRequest, APIError{CodeInvalidScore, "Scores must be non-negative integers"}}

	// Not found
	case errors.Is(err, model.ErrPlayerNotFound):
		return &httpError{http.StatusNotFound, APIError{CodePlayerNotFound, "Player not found"}}
	case errors.Is(err, model.ErrMatchNotFound):
		return &httpError{http.StatusNotFound, APIError{CodeMatchNotFound, "Match not found"}}

	// State
	case errors.Is(err, model.ErrMatchFinished):
		return &httpError{http.StatusConflict, APIError{CodeMatchFinished, "Match is already finished"}}
	case errors.Is(err, model.ErrInvalidStatusTransition):
		return &httpError{http.StatusConflict, APIError{CodeInvalidTransition, "Match status cannot move backwards"}}
	case errors.Is(err, model.ErrRecordExists), errors.Is(err, model.ErrAccountExists):
		return &httpError{http.StatusConflict, APIError{CodeConflict, err.Error()}}

	// Authorization
	case errors.Is(err, model.ErrNotAdmin), errors.Is(err, model.ErrNotAuthorized):
		return &httpError{http.StatusForbidden, APIError{CodeForbidden, "Admin privileges required"}}
	case errors.Is(err, auth.ErrInvalidCredentials):
		return &httpError{http.StatusUnauthorized, APIError{CodeInvalidCredentials, "Invalid email or password"}}
	case errors.Is(err, auth.ErrInvalidSession):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid or expired session"}}

	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewConfirmationRequiredError is returned for destructive requests without confirm=true
func NewConfirmationRequiredError() error {
	return &httpError{http.StatusPreconditionRequired, APIError{CodeConfirmRequired, "Add confirm=true to delete permanently"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
