package service

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"lifescore_backend/internal/domain"
	"lifescore_backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountStartsWithDefaults(t *testing.T) {
	env := newEnv(t, false)
	u, err := env.ledger.Account(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), u.Coins)
	assert.Equal(t, domain.DefaultLifeScore, u.LifeScore)
	assert.Equal(t, int64(1), u.Level)

	again, err := env.ledger.Account(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	_, err = env.ledger.Account(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestCoinFloor(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()
	rnd := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		delta := rnd.Int63n(200) - 120
		balance, err := env.ledger.AdjustCoins(ctx, "u1", delta, domain.TxAdjustment)
		require.NoError(t, err)
		require.GreaterOrEqual(t, balance, int64(0))
	}

	env.fund(t, "u2", 30)
	balance, err := env.ledger.AdjustCoins(ctx, "u2", -100, domain.TxAdjustment)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	txs, err := env.ledger.Transactions(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(-30), txs[0].Amount, "audit records the applied amount")
	assert.Equal(t, int64(0), txs[0].BalanceAfter)
}

func TestLifeScoreBoundsAndAudit(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()

	score, err := env.ledger.AdjustLifeScore(ctx, "u1", 60, "test")
	require.NoError(t, err)
	assert.Equal(t, int64(100), score)

	score, err = env.ledger.AdjustLifeScore(ctx, "u1", -250, "test")
	require.NoError(t, err)
	assert.Equal(t, int64(0), score)

	history, err := env.ledger.History(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, int64(100), history[0].OldScore)
	assert.Equal(t, int64(0), history[0].NewScore)
	assert.Equal(t, int64(50), history[1].OldScore)
	assert.Equal(t, int64(100), history[1].NewScore)
	assert.Equal(t, 2, env.notifier.count(domain.EventLifeScore))
}

func TestLifeScoreAuditFailureIsSoft(t *testing.T) {
	env := newEnv(t, false)
	env.durable.failInserts("lifescore_history", errors.New("audit table locked"))

	score, err := env.ledger.AdjustLifeScore(context.Background(), "u1", 5, "test")
	require.NoError(t, err)
	assert.Equal(t, int64(55), score)
}

func TestAddXPRaisesLevel(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()

	u, err := env.ledger.AddXP(ctx, "u1", 99)
	require.NoError(t, err)
	assert.Equal(t, int64(1), u.Level)

	u, err = env.ledger.AddXP(ctx, "u1", 150)
	require.NoError(t, err)
	assert.Equal(t, int64(249), u.XP)
	assert.Equal(t, int64(3), u.Level)

	stored, err := env.ledger.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stored.Level)
}

func TestRedeemScenario(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()
	env.seedRewards(t, badge("r-200", 200), badge("r-250", 250))
	env.fund(t, "u1", 300)

	ur, err := env.ledger.RedeemReward(ctx, "u1", "r-200")
	require.NoError(t, err)
	assert.Equal(t, int64(200), ur.CoinsSpent)
	assert.Equal(t, "r-200", ur.Details["badge_code"])
	assert.Equal(t, int64(100), env.balance(t, "u1"))

	_, err = env.ledger.RedeemReward(ctx, "u1", "r-250")
	assert.ErrorIs(t, err, domain.ErrInsufficientCoins)
	assert.Equal(t, int64(100), env.balance(t, "u1"))

	redemptions, err := env.ledger.UserRewards(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, redemptions, 1)

	u, err := env.ledger.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), u.XP)
	assert.Equal(t, 1, env.notifier.count(domain.EventRewardRedeemed))
}

func TestRedeemExactBalance(t *testing.T) {
	env := newEnv(t, true)
	env.seedRewards(t, badge("r-50", 50))
	env.fund(t, "u1", 50)

	_, err := env.ledger.RedeemReward(context.Background(), "u1", "r-50")
	require.NoError(t, err)
	assert.Equal(t, int64(0), env.balance(t, "u1"))
}

func TestRedeemUnknownOrInactiveReward(t *testing.T) {
	env := newEnv(t, false)
	inactive := badge("r-old", 10)
	inactive.IsActive = false
	env.seedRewards(t, inactive)
	env.fund(t, "u1", 100)

	_, err := env.ledger.RedeemReward(context.Background(), "u1", "r-missing")
	assert.ErrorIs(t, err, domain.ErrRewardNotFound)
	_, err = env.ledger.RedeemReward(context.Background(), "u1", "r-old")
	assert.ErrorIs(t, err, domain.ErrRewardNotFound)
	assert.Equal(t, int64(100), env.balance(t, "u1"))
}

func TestRedeemWriteFailureIsCompensated(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()
	env.seedRewards(t, badge("r-100", 100))
	env.fund(t, "u1", 150)

	env.durable.failInserts("user_rewards", &storage.StorageError{
		Backend: "faulty", Op: "insert", Collection: "user_rewards", Err: errors.New("connection reset"),
	})

	_, err := env.ledger.RedeemReward(ctx, "u1", "r-100")
	require.Error(t, err)
	assert.True(t, storage.IsStorageError(err))
	assert.Equal(t, 3, env.durable.insertAttempts("user_rewards"))

	rows, err := env.durable.Store.Query(ctx, storage.Query{
		Collection: "users",
		Op:         storage.OpSelect,
		Filters:    map[string]any{"id": "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), rows[0].Int64("coins"), "debit must be refunded on the same backend")
	assert.Equal(t, 0, env.durable.Len("user_rewards"))
}

func TestRedeemSeedCatalogReward(t *testing.T) {
	env := newEnv(t, true)
	env.fund(t, "u1", 60)

	rewards, err := env.ledger.Rewards(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, rewards)

	_, err = env.ledger.RedeemReward(context.Background(), "u1", "r-early-bird")
	require.NoError(t, err)
	assert.Equal(t, int64(10), env.balance(t, "u1"))
}

func TestFallbackEquivalence(t *testing.T) {
	ctx := context.Background()
	seed := func(env *testEnv) {
		env.seedRewards(t, badge("r-a", 10), badge("r-b", 20))
		for i, id := range []string{"u1", "u2", "u3"} {
			_, err := env.ledger.AdjustLifeScore(ctx, id, int64(i*10), "seed")
			require.NoError(t, err)
		}
	}

	durableEnv := newEnv(t, false)
	seed(durableEnv)
	memEnv := newEnv(t, true)
	seed(memEnv)

	for _, env := range []*testEnv{durableEnv, memEnv} {
		rewards, err := env.ledger.Rewards(ctx)
		require.NoError(t, err)
		require.Len(t, rewards, 2)
		assert.Equal(t, "r-a", rewards[0].ID)
		assert.NotNil(t, rewards[0].Badge)

		board, err := env.ledger.Leaderboard(ctx, 10)
		require.NoError(t, err)
		require.Len(t, board, 3)
		assert.Equal(t, []string{"u3", "u2", "u1"}, []string{board[0].ID, board[1].ID, board[2].ID})
	}

	// the durable path also warmed the fallback, so an outage still serves
	// the same leaderboard
	board, err := durableEnv.fallback.Query(ctx, storage.Query{
		Collection: "users",
		Op:         storage.OpSelect,
		OrderBy:    []storage.Order{{Column: "lifescore", Direction: storage.Desc}},
	})
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, "u3", board[0].String("id"))
}

func TestRedeemFinishesAfterCallerCancel(t *testing.T) {
	env := newEnv(t, false)
	env.seedRewards(t, badge("r-100", 100))
	env.fund(t, "u1", 150)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.durable.beforeInsert("user_rewards", cancel)

	ur, err := env.ledger.RedeemReward(ctx, "u1", "r-100")
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.Equal(t, int64(100), ur.CoinsSpent)
	assert.Equal(t, int64(50), env.balance(t, "u1"))
	assert.Equal(t, 1, env.durable.Len("user_rewards"))
}

func TestRedeemRefundSurvivesCallerCancel(t *testing.T) {
	env := newEnv(t, false)
	env.seedRewards(t, badge("r-100", 100))
	env.fund(t, "u1", 150)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.durable.beforeInsert("user_rewards", cancel)
	env.durable.failInserts("user_rewards", &storage.StorageError{
		Backend: "faulty", Op: "insert", Collection: "user_rewards", Err: errors.New("connection reset"),
	})

	_, err := env.ledger.RedeemReward(ctx, "u1", "r-100")
	require.Error(t, err)

	rows, err := env.durable.Store.Query(context.Background(), storage.Query{
		Collection: "users",
		Op:         storage.OpSelect,
		Filters:    map[string]any{"id": "u1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), rows[0].Int64("coins"))
	assert.Equal(t, 0, env.durable.Len("user_rewards"))
}
