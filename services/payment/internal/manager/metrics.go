package manager

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	paymentAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_attempts_total",
			Help: "CreatePayment attempts by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	paymentDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_attempt_duration_seconds",
			Help:    "Latency of CreatePayment attempts.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	gatewayHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "payment_gateway_healthy",
			Help: "Last health probe result per provider (1 healthy, 0 not).",
		},
		[]string{"provider"},
	)

	failovers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payment_gateway_failovers_total",
		Help: "Payments that moved past their primary gateway.",
	})
)

func init() {
	prometheus.MustRegister(paymentAttempts, paymentDuration, gatewayHealthy, failovers)
}
