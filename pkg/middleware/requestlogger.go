package middleware

import (
	"log/slog"
	"net/http"

	"github.com/JRebertt/shortcart-v3/pkg/logger"
)

// RequestLogger stores a request-scoped logger in context carrying the
// correlation id, the organization from X-Organization-ID and the trace ids.
// Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if org := r.Header.Get(HeaderOrganizationID); org != "" {
				ctx = logger.WithOrganizationID(ctx, org)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
