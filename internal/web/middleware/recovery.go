package middleware

import (
	"log/slog"
	"net/http"

	"github.com/mcoot/pingpong/internal/middleware"
	"github.com/mcoot/pingpong/internal/web/components"
)

// Recovery creates panic recovery middleware for the web interface.
// The client gets an HTML error page.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return middleware.Recovery(logger.With(slog.String("component", "web")), webPanicHandler)
}

func webPanicHandler(w http.ResponseWriter, r *http.Request, _ any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_ = components.ErrorPage("The scoreboard could not be shown. Please try again.").Render(r.Context(), w)
}
