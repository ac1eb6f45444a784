package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"lifescore_backend/internal/domain"
	"lifescore_backend/internal/repository"
	"lifescore_backend/internal/storage"
	"lifescore_backend/internal/storage/memory"

	"github.com/stretchr/testify/require"
)

// faultyBackend is a memory store that can be told to fail writes to a
// collection.
type faultyBackend struct {
	*memory.Store
	mu         sync.Mutex
	insertErrs map[string]error
	incrErrs   map[string]error
	inserts    map[string]int
	onInsert   map[string]func()
}

func newFaultyBackend() *faultyBackend {
	return &faultyBackend{
		Store:      memory.New(),
		insertErrs: map[string]error{},
		incrErrs:   map[string]error{},
		inserts:    map[string]int{},
		onInsert:   map[string]func(){},
	}
}

func (f *faultyBackend) Name() string { return "faulty" }

func (f *faultyBackend) failInserts(collection string, err error) {
	f.mu.Lock()
	f.insertErrs[collection] = err
	f.mu.Unlock()
}

func (f *faultyBackend) failIncrements(collection string, err error) {
	f.mu.Lock()
	f.incrErrs[collection] = err
	f.mu.Unlock()
}

// failColumn fails increments of one column only.
func (f *faultyBackend) failColumn(collection, column string, err error) {
	f.failIncrements(collection+"."+column, err)
}

// beforeInsert runs fn ahead of every insert into collection.
func (f *faultyBackend) beforeInsert(collection string, fn func()) {
	f.mu.Lock()
	f.onInsert[collection] = fn
	f.mu.Unlock()
}

func (f *faultyBackend) insertAttempts(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts[collection]
}

func (f *faultyBackend) Query(ctx context.Context, q storage.Query) ([]storage.Row, error) {
	if q.Op == storage.OpInsert {
		f.mu.Lock()
		f.inserts[q.Collection]++
		err := f.insertErrs[q.Collection]
		hook := f.onInsert[q.Collection]
		f.mu.Unlock()
		if hook != nil {
			hook()
		}
		if err != nil {
			return nil, err
		}
	}
	return f.Store.Query(ctx, q)
}

func (f *faultyBackend) Increment(ctx context.Context, inc storage.Increment) (storage.IncrementResult, error) {
	f.mu.Lock()
	err := f.incrErrs[inc.Collection]
	if err == nil {
		err = f.incrErrs[inc.Collection+"."+inc.Column]
	}
	f.mu.Unlock()
	if err != nil {
		return storage.IncrementResult{}, err
	}
	return f.Store.Increment(ctx, inc)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
}

func (n *recordingNotifier) Notify(_ string, ev domain.Event) {
	n.mu.Lock()
	n.events = append(n.events, ev)
	n.mu.Unlock()
}

// cancelOn cancels a context when an event of the given type is published.
type cancelOn struct {
	recordingNotifier
	typ    string
	cancel context.CancelFunc
}

func (n *cancelOn) Notify(userID string, ev domain.Event) {
	n.recordingNotifier.Notify(userID, ev)
	if ev.Type == n.typ {
		n.cancel()
	}
}

func (n *recordingNotifier) count(typ string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, ev := range n.events {
		if ev.Type == typ {
			c++
		}
	}
	return c
}

type testEnv struct {
	store    *storage.Resilient
	durable  *faultyBackend
	fallback *memory.Store
	ledger   *LedgerService
	missions *MissionService
	notifier *recordingNotifier
}

// newEnv wires the services over a healthy durable store and a memory
// fallback. Pass memoryOnly to run without the durable store.
func newEnv(t *testing.T, memoryOnly bool) *testEnv {
	t.Helper()
	env := &testEnv{
		fallback: memory.New(),
		notifier: &recordingNotifier{},
	}
	var durable storage.Backend
	if !memoryOnly {
		env.durable = newFaultyBackend()
		durable = env.durable
	}
	env.store = storage.NewResilient(durable, env.fallback)
	env.ledger = NewLedgerService(env.store,
		WithNotifier(env.notifier),
		WithRedeemRetry(3, time.Millisecond))
	env.missions = NewMissionService(env.store, env.ledger, env.notifier)
	return env
}

func (e *testEnv) fund(t *testing.T, userID string, coins int64) {
	t.Helper()
	_, err := e.ledger.Account(context.Background(), userID)
	require.NoError(t, err)
	_, err = e.ledger.AdjustCoins(context.Background(), userID, coins, domain.TxAdjustment)
	require.NoError(t, err)
}

func (e *testEnv) seedRewards(t *testing.T, rewards ...*domain.Reward) {
	t.Helper()
	for _, r := range rewards {
		require.NoError(t, r.Validate())
		_, err := e.store.Query(context.Background(), storage.Query{
			Collection: "rewards",
			Op:         storage.OpInsert,
			Data:       repository.RewardRow(r),
		})
		require.NoError(t, err)
	}
}

func badge(id string, cost int64) *domain.Reward {
	return &domain.Reward{
		ID:        id,
		Title:     id,
		CoinsCost: cost,
		XPReward:  10,
		Kind:      domain.RewardBadge,
		IsActive:  true,
		Badge:     &domain.BadgeDetails{BadgeCode: id, Tier: 1},
	}
}

func (e *testEnv) balance(t *testing.T, userID string) int64 {
	t.Helper()
	u, err := e.ledger.Account(context.Background(), userID)
	require.NoError(t, err)
	return u.Coins
}
