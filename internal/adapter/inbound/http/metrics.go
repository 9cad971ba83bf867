package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics of the mock backend.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CartMutations   *prometheus.CounterVec
	OrdersPlaced    prometheus.Counter
	LoginsTotal     *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "storefront_mock",
				Name:      "requests_total",
				Help:      "Total number of API requests served",
			},
			[]string{"method", "route", "status"}, // status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "storefront_mock",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		CartMutations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "storefront_mock",
				Name:      "cart_mutations_total",
				Help:      "Cart changes by operation and result",
			},
			[]string{"op", "result"}, // op=add/set/remove/clear
		),
		OrdersPlaced: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "storefront_mock",
				Name:      "orders_placed_total",
				Help:      "Total orders accepted",
			},
		),
		LoginsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "storefront_mock",
				Name:      "logins_total",
				Help:      "Login attempts by result",
			},
			[]string{"result"},
		),
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
