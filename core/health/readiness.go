package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/chatrelay/core/logger"
)

// Readiness verifies all service dependencies are functioning.
// Returns "READY" if every check passes, 503 Service Unavailable if any
// fails. Checks run in order and the first failure short-circuits.
func Readiness(log *slog.Logger, checks ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				log.ErrorContext(r.Context(), "readiness check failed", logger.Error(err))
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
