package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JRebertt/shortcart-v3/pkg/health"
	"github.com/JRebertt/shortcart-v3/pkg/middleware"
)

const serviceName = "payment"

// NewRouter creates a chi router with all payment service routes registered.
func NewRouter(svc PaymentService, healthHandler *health.Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.RequestLogger(logger))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	payments := NewPaymentHandler(svc, logger)
	webhooks := NewWebhookHandler(svc, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)
		r.Use(RequireOrganization)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", payments.ProcessPayment)
			r.Get("/{provider}/{paymentId}", payments.GetPaymentStatus)
			r.Post("/{provider}/{paymentId}/cancel", payments.CancelPayment)
			r.Post("/{provider}/{paymentId}/refund", payments.RefundPayment)
		})

		r.Route("/gateways", func(r chi.Router) {
			r.Get("/", payments.ListGateways)
			r.Get("/health", payments.CheckHealth)
			r.Post("/invalidate", payments.ReloadGateways)
		})
	})

	// Providers call back without tenant headers; the path carries the
	// organization.
	r.Post("/webhooks/{organizationId}/{provider}", webhooks.HandleGatewayWebhook)

	return r
}
