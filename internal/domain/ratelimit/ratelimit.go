// Package ratelimit defines request throttling limits and decisions.
package ratelimit

import (
	"context"
	"time"
)

// Limit allows Rate events per Period, with up to Burst at once.
type Limit struct {
	Rate   int
	Burst  int
	Period time.Duration
}

// PerMinute returns a limit of n events per minute with the given burst.
func PerMinute(n, burst int) Limit {
	return Limit{Rate: n, Burst: burst, Period: time.Minute}
}

// Enabled reports whether the limit restricts anything.
func (l Limit) Enabled() bool {
	return l.Rate > 0 && l.Period > 0
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is when the next event will be allowed. Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter decides whether the event identified by key may proceed.
// Allow records the event when it is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string, limit Limit) (Decision, error)
}

// Scope namespaces limiter keys.
type Scope string

// ScopeLogin throttles password logins per client address.
const ScopeLogin Scope = "login"

// Key builds a limiter key, e.g. Key(ScopeLogin, "10.0.0.7") is "login:10.0.0.7".
func Key(scope Scope, subject string) string {
	return string(scope) + ":" + subject
}
