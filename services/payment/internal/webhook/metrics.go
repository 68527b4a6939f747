package webhook

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveryAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_delivery_attempts_total",
			Help: "Outbound webhook HTTP attempts by status class.",
		},
		[]string{"status"},
	)

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Outbound webhook deliveries by final outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(deliveryAttempts, deliveries)
}
