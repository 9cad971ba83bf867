package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/storefront-dev/storefront/internal/domain/ratelimit"
)

// Compile-time interface check.
var _ ratelimit.Limiter = (*Limiter)(nil)

// Limiter implements ratelimit.Limiter with GCRA: each key stores the
// theoretical arrival time (TAT) of its next event, and an event is allowed
// when it arrives no earlier than TAT minus the burst window.
type Limiter struct {
	mu    sync.Mutex
	cells map[string]time.Time

	now     func() time.Time
	idleTTL time.Duration
	logger  *slog.Logger
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithLimiterClock sets the time source.
func WithLimiterClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithIdleTTL sets how long after its TAT an idle key is kept. Default: 1h.
func WithIdleTTL(d time.Duration) LimiterOption {
	return func(l *Limiter) {
		l.idleTTL = d
	}
}

// WithLimiterLogger sets the logger.
func WithLimiterLogger(logger *slog.Logger) LimiterOption {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// NewLimiter creates an empty limiter.
func NewLimiter(opts ...LimiterOption) *Limiter {
	l := &Limiter{
		cells:   make(map[string]time.Time),
		now:     time.Now,
		idleTTL: time.Hour,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow checks key against limit and records the event when allowed.
// A disabled limit allows everything.
func (l *Limiter) Allow(_ context.Context, key string, limit ratelimit.Limit) (ratelimit.Decision, error) {
	if !limit.Enabled() {
		return ratelimit.Decision{Allowed: true}, nil
	}
	burst := limit.Burst
	if burst <= 0 {
		burst = limit.Rate
	}
	emission := limit.Period / time.Duration(limit.Rate)
	window := time.Duration(burst) * emission

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tat, ok := l.cells[key]
	if !ok || tat.Before(now) {
		tat = now
	}

	if allowAt := tat.Add(-window + emission); now.Before(allowAt) {
		return ratelimit.Decision{RetryAfter: allowAt.Sub(now)}, nil
	}

	tat = tat.Add(emission)
	l.cells[key] = tat

	remaining := int((window - tat.Sub(now)) / emission)
	if remaining < 0 {
		remaining = 0
	}
	return ratelimit.Decision{Allowed: true, Remaining: remaining}, nil
}

// Sweep drops keys idle for longer than the idle TTL and returns how many
// were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.idleTTL)
	removed := 0
	for key, tat := range l.cells {
		if tat.Before(cutoff) {
			delete(l.cells, key)
			removed++
		}
	}
	if removed > 0 {
		l.logger.Debug("rate limiter sweep", "removed", removed, "remaining", len(l.cells))
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cells)
}
