package http

import (
	"math"
	"net"
	"net/http"
	"strconv"

	"github.com/storefront-dev/storefront/internal/domain/ratelimit"
	"github.com/storefront-dev/storefront/internal/fakeapi"
)

// LoginThrottle limits requests per client address. Denied requests get 429
// with a Retry-After header in whole seconds. A limiter error lets the
// request through.
func LoginThrottle(limiter ratelimit.Limiter, limit ratelimit.Limit, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || !limit.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ratelimit.Key(ratelimit.ScopeLogin, clientIP(r))
			d, err := limiter.Allow(r.Context(), key, limit)
			if err != nil {
				LoggerFromContext(r.Context()).Warn("rate limiter failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				if metrics != nil {
					metrics.LoginsTotal.WithLabelValues("throttled").Inc()
				}
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, r, &fakeapi.Error{
					Status: http.StatusTooManyRequests,
					Detail: "Too many login attempts. Try again in " + strconv.Itoa(secs) + " seconds.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP is the host part of RemoteAddr. Forwarding headers are ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
