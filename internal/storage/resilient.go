package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"lifescore_backend/internal/logger"
	"lifescore_backend/internal/metrics"
)

// Fallback is the backend used when the durable store cannot answer. It
// also receives a copy of every durable result.
type Fallback interface {
	Backend
	Mirror(collection string, rows []Row)
}

// Gateway is a Backend that can also hand out a single backend for a
// multi-step operation.
type Gateway interface {
	Backend
	Pick(ctx context.Context) Backend
}

// Resilient routes queries to the durable backend and falls back to the
// in-memory store on StorageError, on timeout, or on an empty result for a
// select that declared ExpectRows. This is the only place that policy lives.
type Resilient struct {
	durable  Backend
	fallback Fallback
	timeout  time.Duration
	cooldown time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	downUntil time.Time
}

var _ Gateway = (*Resilient)(nil)

// ResilientOption configures a Resilient.
type ResilientOption func(*Resilient)

// WithTimeout bounds every durable call.
func WithTimeout(d time.Duration) ResilientOption {
	return func(r *Resilient) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithCooldown sets how long the durable store is skipped after a failure.
func WithCooldown(d time.Duration) ResilientOption {
	return func(r *Resilient) {
		if d >= 0 {
			r.cooldown = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ResilientOption {
	return func(r *Resilient) { r.now = now }
}

// NewResilient wires a durable backend (nil for memory-only mode) in front
// of a fallback.
func NewResilient(durable Backend, fallback Fallback, opts ...ResilientOption) *Resilient {
	r := &Resilient{
		durable:  durable,
		fallback: fallback,
		timeout:  2 * time.Second,
		cooldown: 15 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resilient) Name() string { return "resilient" }

// Available is always true: the fallback can serve every query.
func (r *Resilient) Available(context.Context) bool { return true }

// Degraded reports whether the durable store is missing or marked down.
func (r *Resilient) Degraded() bool {
	_, ok := r.durableReady()
	return !ok
}

// Fallback exposes the in-memory backend.
func (r *Resilient) Fallback() Fallback {
	return r.fallback
}

func (r *Resilient) Query(ctx context.Context, q Query) ([]Row, error) {
	if durable, ok := r.durableReady(); ok {
		rows, err := r.queryDurable(ctx, durable, q)
		switch {
		case err == nil:
			if q.Op == OpSelect && q.ExpectRows && len(rows) == 0 {
				metrics.StorageFallbacks.WithLabelValues(q.Collection, "empty").Inc()
				logger.Debug("durable store returned no rows, serving fallback", "collection", q.Collection)
				return r.fallback.Query(ctx, q)
			}
			return rows, nil
		case IsStorageError(err):
			r.markDown(q.Collection, string(q.Op), err)
		default:
			return nil, err
		}
	}
	return r.fallback.Query(ctx, q)
}

func (r *Resilient) Increment(ctx context.Context, inc Increment) (IncrementResult, error) {
	if durable, ok := r.durableReady(); ok {
		res, err := r.incrementDurable(ctx, durable, inc)
		switch {
		case err == nil:
			return res, nil
		case IsStorageError(err):
			r.markDown(inc.Collection, "increment", err)
		default:
			return IncrementResult{}, err
		}
	}
	return r.fallback.Increment(ctx, inc)
}

// Pick returns the backend a multi-step operation must use for all of its
// steps. Errors from a picked backend are not absorbed: the caller either
// compensates or reports the operation failed.
func (r *Resilient) Pick(context.Context) Backend {
	if durable, ok := r.durableReady(); ok {
		return &pinned{r: r, durable: durable}
	}
	return r.fallback
}

func (r *Resilient) durableReady() (Backend, bool) {
	if r.durable == nil {
		return nil, false
	}
	r.mu.RLock()
	down := r.now().Before(r.downUntil)
	r.mu.RUnlock()
	return r.durable, !down
}

func (r *Resilient) markDown(collection, op string, err error) {
	metrics.StorageFallbacks.WithLabelValues(collection, "error").Inc()
	logger.Warn("durable store failed, using fallback",
		"collection", collection, "op", op, "error", err, "cooldown", r.cooldown)

	r.mu.Lock()
	r.downUntil = r.now().Add(r.cooldown)
	r.mu.Unlock()
}

func (r *Resilient) queryDurable(ctx context.Context, durable Backend, q Query) ([]Row, error) {
	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := durable.Query(tctx, q)
	if err != nil {
		return nil, asTimeout(ctx, tctx, durable.Name(), string(q.Op), q.Collection, err)
	}
	r.fallback.Mirror(q.Collection, rows)
	return rows, nil
}

func (r *Resilient) incrementDurable(ctx context.Context, durable Backend, inc Increment) (IncrementResult, error) {
	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := durable.Increment(tctx, inc)
	if err != nil {
		return IncrementResult{}, asTimeout(ctx, tctx, durable.Name(), "increment", inc.Collection, err)
	}
	if res.Row != nil {
		r.fallback.Mirror(inc.Collection, []Row{res.Row})
	}
	return res, nil
}

// asTimeout turns an expired per-call deadline into a StorageError so it
// triggers fallback. Cancellation of the caller's own context is returned
// unchanged.
func asTimeout(parent, call context.Context, backend, op, collection string, err error) error {
	if IsStorageError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) && call.Err() != nil && parent.Err() == nil {
		return &StorageError{Backend: backend, Op: op, Collection: collection, Err: err}
	}
	return err
}

// pinned is the durable backend as handed out by Pick: bounded by the same
// timeout and still mirrored, but without fallback.
type pinned struct {
	r       *Resilient
	durable Backend
}

func (p *pinned) Name() string { return p.durable.Name() }

func (p *pinned) Available(ctx context.Context) bool { return p.durable.Available(ctx) }

func (p *pinned) Query(ctx context.Context, q Query) ([]Row, error) {
	rows, err := p.r.queryDurable(ctx, p.durable, q)
	if IsStorageError(err) {
		p.r.markDown(q.Collection, string(q.Op), err)
	}
	return rows, err
}

func (p *pinned) Increment(ctx context.Context, inc Increment) (IncrementResult, error) {
	res, err := p.r.incrementDurable(ctx, p.durable, inc)
	if IsStorageError(err) {
		p.r.markDown(inc.Collection, "increment", err)
	}
	return res, err
}
