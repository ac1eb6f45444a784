package quota

import (
	"context"
	"fmt"
	"time"

	"lifescore_backend/internal/logger"
	"lifescore_backend/internal/metrics"
)

// Decision describes an admitted action.
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// QuotaExceededError is returned when an action must not be attempted.
type QuotaExceededError struct {
	Class      Class
	Limit      int64
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota %s exceeded, retry after %s", e.Class, e.RetryAfter.Round(time.Second))
}

// Guard enforces the configured policies against a counter store.
type Guard struct {
	store    CounterStore
	policies map[Class]Policy
	bypass   bool
	now      func() time.Time
}

// Option configures a Guard.
type Option func(*Guard)

// WithDevBypass asks for all checks to be skipped. It only takes effect in
// builds tagged devquota; elsewhere the request is logged and ignored.
func WithDevBypass(enabled bool) Option {
	return func(g *Guard) {
		if !enabled {
			return
		}
		if !bypassAvailable {
			logger.Warn("quota bypass requested but not compiled in; quotas stay enforced")
			return
		}
		logger.Warn("quota bypass enabled; all quota checks are skipped")
		g.bypass = true
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func NewGuard(store CounterStore, policies map[Class]Policy, opts ...Option) *Guard {
	g := &Guard{store: store, policies: policies, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Policy returns the policy for class.
func (g *Guard) Policy(class Class) (Policy, bool) {
	p, ok := g.policies[class]
	return p, ok
}

// Check counts one action for id under class. A rejected action gets a
// *QuotaExceededError and must not be attempted. Counter store failures
// are returned as errors; the guard never fails open.
func (g *Guard) Check(ctx context.Context, id Identity, class Class) (Decision, error) {
	p, ok := g.policies[class]
	if !ok {
		return Decision{}, fmt.Errorf("quota: unknown class %q", class)
	}
	if bypassAvailable && g.bypass {
		return Decision{Allowed: true, Limit: p.Limit, Remaining: p.Limit, ResetAt: g.now().Add(p.Window)}, nil
	}

	count, resetIn, err := g.store.Incr(ctx, counterKey(class, p.Window, id), p.Window)
	if err != nil {
		return Decision{}, fmt.Errorf("quota %s: %w", class, err)
	}
	resetAt := g.now().Add(resetIn)

	if count > p.Limit {
		metrics.QuotaBlocked.WithLabelValues(string(class)).Inc()
		return Decision{Limit: p.Limit, ResetAt: resetAt}, &QuotaExceededError{
			Class:      class,
			Limit:      p.Limit,
			RetryAfter: resetIn,
			ResetAt:    resetAt,
		}
	}

	metrics.QuotaRequests.WithLabelValues(string(class)).Inc()
	return Decision{
		Allowed:   true,
		Limit:     p.Limit,
		Remaining: p.Limit - count,
		ResetAt:   resetAt,
	}, nil
}
