package quota

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestGuard(limit int64, window time.Duration) (*Guard, *MemoryCounterStore, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryCounterStore()
	store.now = c.now
	policies := map[Class]Policy{
		ClassAIDaily: {Class: ClassAIDaily, Limit: limit, Window: window},
	}
	return NewGuard(store, policies, WithClock(c.now)), store, c
}

func TestGuardRejectsOverLimit(t *testing.T) {
	g, _, c := newTestGuard(2, 24*time.Hour)
	id := Identity{UserID: "u1"}
	ctx := context.Background()

	d, err := g.Check(ctx, id, ClassAIDaily)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Remaining)

	_, err = g.Check(ctx, id, ClassAIDaily)
	require.NoError(t, err)

	c.advance(time.Hour)
	_, err = g.Check(ctx, id, ClassAIDaily)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, ClassAIDaily, qe.Class)
	assert.Equal(t, 23*time.Hour, qe.RetryAfter)
	assert.Equal(t, c.now().Add(23*time.Hour), qe.ResetAt)
}

func TestGuardWindowRollover(t *testing.T) {
	g, store, c := newTestGuard(1, time.Minute)
	id := Identity{UserID: "u1"}
	ctx := context.Background()

	_, err := g.Check(ctx, id, ClassAIDaily)
	require.NoError(t, err)
	_, err = g.Check(ctx, id, ClassAIDaily)
	require.Error(t, err)

	c.advance(time.Minute)
	d, err := g.Check(ctx, id, ClassAIDaily)
	require.NoError(t, err)
	assert.Equal(t, int64(0), d.Remaining)

	c.advance(2 * time.Minute)
	assert.Equal(t, 1, store.Sweep(c.now()))
	assert.Equal(t, 0, store.Len())
}

func TestGuardKeysAreIndependent(t *testing.T) {
	g, _, _ := newTestGuard(1, time.Minute)
	ctx := context.Background()

	_, err := g.Check(ctx, Identity{UserID: "a"}, ClassAIDaily)
	require.NoError(t, err)
	_, err = g.Check(ctx, Identity{UserID: "b"}, ClassAIDaily)
	require.NoError(t, err)
	_, err = g.Check(ctx, Identity{Addr: "10.0.0.1"}, ClassAIDaily)
	require.NoError(t, err)
}

func TestGuardUnknownClass(t *testing.T) {
	g, _, _ := newTestGuard(1, time.Minute)
	_, err := g.Check(context.Background(), Identity{UserID: "a"}, ClassGeneral)
	require.Error(t, err)
	var qe *QuotaExceededError
	assert.False(t, errors.As(err, &qe))
}

func TestGuardNoOverAdmissionUnderBurst(t *testing.T) {
	g, _, _ := newTestGuard(10, time.Minute)
	id := Identity{UserID: "burst"}

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Check(context.Background(), id, ClassAIDaily); err == nil {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(10), admitted)
}

func TestBypassIgnoredWithoutBuildTag(t *testing.T) {
	if bypassAvailable {
		t.Skip("built with devquota")
	}
	store := NewMemoryCounterStore()
	g := NewGuard(store, map[Class]Policy{
		ClassGeneral: {Class: ClassGeneral, Limit: 1, Window: time.Minute},
	}, WithDevBypass(true))

	_, err := g.Check(context.Background(), Identity{UserID: "u"}, ClassGeneral)
	require.NoError(t, err)
	_, err = g.Check(context.Background(), Identity{UserID: "u"}, ClassGeneral)
	require.Error(t, err)
}

type failingStore struct{ calls int }

func (f *failingStore) Incr(context.Context, string, time.Duration) (int64, time.Duration, error) {
	f.calls++
	return 0, 0, errors.New("connection refused")
}

func TestFallbackCounterStoreStillEnforces(t *testing.T) {
	primary := &failingStore{}
	store := NewFallbackCounterStore(primary, NewMemoryCounterStore())
	g := NewGuard(store, map[Class]Policy{
		ClassMissionCompletion: {Class: ClassMissionCompletion, Limit: 1, Window: time.Minute},
	})

	_, err := g.Check(context.Background(), Identity{UserID: "u"}, ClassMissionCompletion)
	require.NoError(t, err)
	_, err = g.Check(context.Background(), Identity{UserID: "u"}, ClassMissionCompletion)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, 2, primary.calls)
}

func TestIdentityKeyPreference(t *testing.T) {
	assert.Equal(t, "user:u", Identity{UserID: "u", SessionID: "s", Addr: "a"}.Key())
	assert.Equal(t, "session:s", Identity{SessionID: "s", Addr: "a"}.Key())
	assert.Equal(t, "addr:a", Identity{Addr: "a"}.Key())
	assert.Equal(t, "anon", Identity{}.Key())
}

func TestDefaultPolicies(t *testing.T) {
	prod := DefaultPolicies(true)
	dev := DefaultPolicies(false)
	assert.Equal(t, int64(100), prod[ClassGeneral].Limit)
	assert.Equal(t, int64(1000), dev[ClassGeneral].Limit)
	assert.Equal(t, 15*time.Minute, prod[ClassMissionCompletion].Window)
	assert.Equal(t, 24*time.Hour, prod[ClassAIDaily].Window)
	assert.Equal(t, int64(60), prod[ClassAIDaily].Limit)
}
