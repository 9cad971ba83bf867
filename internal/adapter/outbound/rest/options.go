package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL sets the backend address.
// If not set, defaults to DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithTimeout sets the HTTP request timeout.
// If not set, defaults to 10 seconds. Ignored when WithHTTPClient is used.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient sets a custom http.Client for making requests.
// This is useful for testing, proxying, or custom transport configurations.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCredentialSource sets the function consulted for the bearer
// credential of every request.
func WithCredentialSource(src CredentialSource) Option {
	return func(c *Client) {
		c.credentials = src
	}
}

// WithUnauthorizedHandler sets the hook invoked when a credentialed request
// is rejected with 401.
func WithUnauthorizedHandler(h UnauthorizedHandler) Option {
	return func(c *Client) {
		c.onUnauthorized = h
	}
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithLogger sets the logger. If not set, defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// BreakerConfig configures the circuit breaker in front of the backend.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// WithBreaker puts a circuit breaker in front of the backend. While open,
// requests fail fast with a network error. Zero MaxFailures disables it.
func WithBreaker(cfg BreakerConfig) Option {
	return func(c *Client) {
		if cfg.MaxFailures == 0 {
			c.breaker = nil
			return
		}
		settings := gobreaker.Settings{
			Name:        "backend",
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.MaxFailures
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn("backend circuit breaker state changed",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
				if c.metrics != nil {
					c.metrics.BreakerState.WithLabelValues(name).Set(float64(to))
				}
			},
		}
		c.breaker = gobreaker.NewCircuitBreaker[*http.Response](settings)
	}
}
