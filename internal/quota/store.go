package quota

import (
	"context"
	"strconv"
	"sync"
	"time"

	"lifescore_backend/internal/logger"
	"lifescore_backend/internal/metrics"
)

// CounterStore counts admitted actions per key in fixed windows. Incr must
// be atomic per key: concurrent callers each observe a distinct count.
type CounterStore interface {
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}

type window struct {
	count int64
	start time.Time
	ttl   time.Duration
}

// MemoryCounterStore keeps counters in process. Expired windows are
// restarted on the next Incr and removed by Sweep.
type MemoryCounterStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{windows: make(map[string]*window), now: time.Now}
}

func (s *MemoryCounterStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.start.Add(w.ttl)) {
		w = &window{start: now, ttl: ttl}
		s.windows[key] = w
	}
	w.count++
	return w.count, w.start.Add(w.ttl).Sub(now), nil
}

// Sweep drops windows that have rolled over and returns how many went.
func (s *MemoryCounterStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for k, w := range s.windows {
		if !now.Before(w.start.Add(w.ttl)) {
			delete(s.windows, k)
			n++
		}
	}
	return n
}

// Len returns the number of live windows.
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

// FallbackCounterStore counts in primary and switches to secondary for a
// call that primary fails. Quotas stay enforced while Redis is down, per
// process instead of globally.
type FallbackCounterStore struct {
	primary   CounterStore
	secondary CounterStore
}

func NewFallbackCounterStore(primary, secondary CounterStore) *FallbackCounterStore {
	return &FallbackCounterStore{primary: primary, secondary: secondary}
}

func (s *FallbackCounterStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, time.Duration, error) {
	count, resetIn, err := s.primary.Incr(ctx, key, ttl)
	if err == nil {
		return count, resetIn, nil
	}
	if ctx.Err() != nil {
		return 0, 0, err
	}
	metrics.QuotaStoreFallbacks.Inc()
	logger.Warn("quota counter store failed, counting locally", "key", key, "error", err)
	return s.secondary.Incr(ctx, key, ttl)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}
