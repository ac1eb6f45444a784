package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lifescore_backend/internal/storage"
	"lifescore_backend/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDurable answers from its own memory store unless told to fail.
type fakeDurable struct {
	*memory.Store
	mu    sync.Mutex
	err   error
	delay time.Duration
	calls int
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{Store: memory.New()}
}

func (f *fakeDurable) Name() string { return "fake" }

func (f *fakeDurable) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeDurable) before(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	err, delay := f.err, f.delay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeDurable) Query(ctx context.Context, q storage.Query) ([]storage.Row, error) {
	if err := f.before(ctx); err != nil {
		return nil, err
	}
	return f.Store.Query(ctx, q)
}

func (f *fakeDurable) Increment(ctx context.Context, inc storage.Increment) (storage.IncrementResult, error) {
	if err := f.before(ctx); err != nil {
		return storage.IncrementResult{}, err
	}
	return f.Store.Increment(ctx, inc)
}

func (f *fakeDurable) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var errDown = &storage.StorageError{Backend: "fake", Op: "select", Collection: "users", Err: errors.New("connection refused")}

func selectUsers() storage.Query {
	return storage.Query{Collection: "users", Op: storage.OpSelect, OrderBy: []storage.Order{{Column: "id", Direction: storage.Asc}}}
}

func TestResilientMirrorsDurableResults(t *testing.T) {
	durable := newFakeDurable()
	fallback := memory.New()
	r := storage.NewResilient(durable, fallback)
	ctx := context.Background()

	_, err := r.Query(ctx, storage.Query{Collection: "users", Op: storage.OpInsert, Data: storage.Row{"id": "u1", "coins": 5}})
	require.NoError(t, err)
	assert.Equal(t, 1, fallback.Len("users"))

	_, err = r.Increment(ctx, storage.Increment{Collection: "users", Filters: map[string]any{"id": "u1"}, Column: "coins", Delta: 3})
	require.NoError(t, err)

	rows, err := fallback.Query(ctx, selectUsers())
	require.NoError(t, err)
	assert.Equal(t, int64(8), rows[0].Int64("coins"))
}

func TestResilientFallsBackOnStorageErrorAndCoolsDown(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	durable := newFakeDurable()
	fallback := memory.New()
	fallback.Seed("users", []storage.Row{{"id": "u1", "coins": int64(9)}})
	r := storage.NewResilient(durable, fallback,
		storage.WithCooldown(time.Minute),
		storage.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	durable.fail(errDown)
	rows, err := r.Query(ctx, selectUsers())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(9), rows[0].Int64("coins"))
	assert.True(t, r.Degraded())

	// within cooldown the durable store is not called at all
	calls := durable.callCount()
	_, err = r.Query(ctx, selectUsers())
	require.NoError(t, err)
	assert.Equal(t, calls, durable.callCount())

	durable.fail(nil)
	now = now.Add(2 * time.Minute)
	assert.False(t, r.Degraded())
	_, err = r.Query(ctx, selectUsers())
	require.NoError(t, err)
	assert.Equal(t, calls+1, durable.callCount())
}

func TestResilientTimeoutTriggersFallback(t *testing.T) {
	durable := newFakeDurable()
	durable.delay = 200 * time.Millisecond
	fallback := memory.New()
	fallback.Seed("users", []storage.Row{{"id": "u1"}})
	r := storage.NewResilient(durable, fallback, storage.WithTimeout(10*time.Millisecond))

	rows, err := r.Query(context.Background(), selectUsers())
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.True(t, r.Degraded())
}

func TestResilientCallerCancellationIsNotFallback(t *testing.T) {
	durable := newFakeDurable()
	durable.delay = 200 * time.Millisecond
	r := storage.NewResilient(durable, memory.New(), storage.WithTimeout(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := r.Query(ctx, selectUsers())
	require.Error(t, err)
	assert.False(t, storage.IsStorageError(err))
	assert.False(t, r.Degraded())
}

func TestResilientExpectRowsServesFallbackOnEmpty(t *testing.T) {
	durable := newFakeDurable()
	fallback := memory.New()
	fallback.Seed("missions", []storage.Row{{"id": "m1", "is_active": true}})
	r := storage.NewResilient(durable, fallback)
	ctx := context.Background()

	q := storage.Query{Collection: "missions", Op: storage.OpSelect, Filters: map[string]any{"is_active": true}}
	rows, err := r.Query(ctx, q)
	require.NoError(t, err)
	assert.Empty(t, rows, "plain select trusts an empty durable answer")

	q.ExpectRows = true
	rows, err = r.Query(ctx, q)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.False(t, r.Degraded())
}

func TestResilientPassesAnswersThrough(t *testing.T) {
	durable := newFakeDurable()
	r := storage.NewResilient(durable, memory.New())
	ctx := context.Background()

	_, err := r.Query(ctx, storage.Query{Collection: "users", Op: storage.OpInsert, Data: storage.Row{"id": "u1", "coins": 1}})
	require.NoError(t, err)
	_, err = r.Query(ctx, storage.Query{Collection: "users", Op: storage.OpInsert, Data: storage.Row{"id": "u1", "coins": 1}})
	assert.ErrorIs(t, err, storage.ErrConflict)

	_, err = r.Increment(ctx, storage.Increment{Collection: "users", Filters: map[string]any{"id": "u1"}, Column: "coins", Delta: -2, Min: storage.Bound(0)})
	assert.ErrorIs(t, err, storage.ErrConditionFailed)
	assert.False(t, r.Degraded())
}

func TestPickDoesNotFallBack(t *testing.T) {
	durable := newFakeDurable()
	fallback := memory.New()
	r := storage.NewResilient(durable, fallback)
	ctx := context.Background()

	picked := r.Pick(ctx)
	assert.Equal(t, "fake", picked.Name())

	durable.fail(errDown)
	_, err := picked.Query(ctx, selectUsers())
	assert.True(t, storage.IsStorageError(err))
	assert.True(t, r.Degraded())

	assert.Equal(t, "memory", r.Pick(ctx).Name())
}

func TestMemoryOnlyMode(t *testing.T) {
	r := storage.NewResilient(nil, memory.New())
	assert.True(t, r.Degraded())
	assert.Equal(t, "memory", r.Pick(context.Background()).Name())

	_, err := r.Query(context.Background(), storage.Query{Collection: "users", Op: storage.OpInsert, Data: storage.Row{"id": "u1"}})
	require.NoError(t, err)
}
