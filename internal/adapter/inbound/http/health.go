package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/storefront-dev/storefront/internal/fakeapi"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"` // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
	Uptime  string            `json:"uptime"`
}

// HealthChecker reports the state of the backend.
type HealthChecker struct {
	backend *fakeapi.Backend
	version string
	started time.Time
}

// NewHealthChecker creates a HealthChecker. backend may be nil, in which case
// the check reports unhealthy.
func NewHealthChecker(backend *fakeapi.Backend, version string) *HealthChecker {
	return &HealthChecker{backend: backend, version: version, started: time.Now()}
}

// Check collects the component checks.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.backend != nil {
		stats := h.backend.Stats()
		checks["users"] = fmt.Sprintf("%d registered", stats.Users)
		checks["products"] = fmt.Sprintf("%d listed", stats.Products)
		checks["orders"] = fmt.Sprintf("%d placed", stats.Orders)
	} else {
		checks["backend"] = "not configured"
		healthy = false
	}
	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
	}
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(health)
	})
}
