package rest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the backend client.
// Pass to NewClient via WithMetrics.
type Metrics struct {
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	UnauthorizedTotal prometheus.Counter
	BreakerState      *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "storefront",
				Subsystem: "backend",
				Name:      "requests_total",
				Help:      "Total number of backend requests",
			},
			[]string{"op", "status"}, // op=fetch_cart, status=ok/auth/validation/server/network
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "storefront",
				Subsystem: "backend",
				Name:      "request_duration_seconds",
				Help:      "Backend request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		UnauthorizedTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "storefront",
				Subsystem: "backend",
				Name:      "unauthorized_total",
				Help:      "Credentialed requests rejected with 401",
			},
		),
		BreakerState: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "storefront",
				Subsystem: "backend",
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}
}
