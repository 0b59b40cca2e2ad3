package handler

import (
	"net/http"
	"strconv"

	"github.com/mcoot/pingpong/internal/api/apierr"
)

// Re-export from apierr for convenience
type APIError = apierr.APIError
type ErrorResponse = apierr.ErrorResponse

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	apierr.WriteError(w, err)
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return apierr.NewInvalidRequestError(message)
}

// requireConfirm reports whether a destructive request carries confirm=true,
// writing the error response if not
func requireConfirm(w http.ResponseWriter, r *http.Request) bool {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	if !confirmed {
		WriteError(w, apierr.NewConfirmationRequiredError())
		return false
	}
	return true
}
