package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lifescore_backend/internal/domain"
	"lifescore_backend/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const walk = "m-morning-walk" // seed catalog: 20 coins, 30 xp, +2 lifescore

func completeAllSteps(t *testing.T, env *testEnv, userID string, um *domain.UserMissionWithSteps) {
	t.Helper()
	for _, step := range um.Steps {
		_, err := env.missions.CompleteStep(context.Background(), userID, step.ID)
		require.NoError(t, err)
	}
}

func TestMissionScenario(t *testing.T) {
	for _, memoryOnly := range []bool{false, true} {
		env := newEnv(t, memoryOnly)
		ctx := context.Background()

		um, err := env.missions.StartMission(ctx, "u1", walk)
		require.NoError(t, err)
		require.Len(t, um.Steps, 3)
		for i, s := range um.Steps {
			assert.Equal(t, int64(i+1), s.StepNumber)
			assert.Equal(t, domain.StepPending, s.Status)
		}
		assert.Equal(t, domain.MissionActive, um.Status)

		for _, s := range um.Steps[:2] {
			_, err := env.missions.CompleteStep(ctx, "u1", s.ID)
			require.NoError(t, err)
		}
		done, err := env.missions.AreAllStepsCompleted(ctx, um.ID)
		require.NoError(t, err)
		assert.False(t, done)

		_, err = env.missions.CompleteMission(ctx, "u1", walk, nil)
		assert.ErrorIs(t, err, domain.ErrMissionNotActive)

		_, err = env.missions.CompleteStep(ctx, "u1", um.Steps[2].ID)
		require.NoError(t, err)
		done, err = env.missions.AreAllStepsCompleted(ctx, um.ID)
		require.NoError(t, err)
		assert.True(t, done)

		completed, err := env.missions.CompleteMission(ctx, "u1", walk, map[string]interface{}{"note": "sunny"})
		require.NoError(t, err)
		assert.Equal(t, domain.MissionCompleted, completed.Status)
		assert.True(t, completed.Credited)
		assert.NotNil(t, completed.CompletedAt)
		assert.Equal(t, "sunny", completed.CompletionData["note"])

		u, err := env.ledger.Account(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(20), u.Coins)
		assert.Equal(t, int64(30), u.XP)
		assert.Equal(t, int64(52), u.LifeScore)
	}
}

func TestStartMissionExclusive(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()

	_, err := env.missions.StartMission(ctx, "u1", walk)
	require.NoError(t, err)
	_, err = env.missions.StartMission(ctx, "u1", walk)
	assert.ErrorIs(t, err, domain.ErrMissionAlreadyActive)

	ums, err := env.missions.UserMissions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, ums, 1)

	// other users and other missions are independent
	_, err = env.missions.StartMission(ctx, "u2", walk)
	require.NoError(t, err)
	_, err = env.missions.StartMission(ctx, "u1", "m-budget-review")
	require.NoError(t, err)
}

func TestStartMissionConcurrentSingleWinner(t *testing.T) {
	env := newEnv(t, false)
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.missions.StartMission(context.Background(), "u1", walk)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrMissionAlreadyActive)
	}
	assert.Equal(t, 1, ok)
}

func TestStartUnknownMission(t *testing.T) {
	env := newEnv(t, false)
	_, err := env.missions.StartMission(context.Background(), "u1", "m-nope")
	assert.ErrorIs(t, err, domain.ErrMissionNotFound)
}

func TestStartMissionStepWriteFailureFreesSlot(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()
	env.durable.failInserts("mission_steps", errors.New("disk full"))

	_, err := env.missions.StartMission(ctx, "u1", walk)
	require.Error(t, err)

	env.durable.failInserts("mission_steps", nil)
	um, err := env.missions.StartMission(ctx, "u1", walk)
	require.NoError(t, err)
	assert.Len(t, um.Steps, 3)
}

func TestCompleteStepRules(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()
	um, err := env.missions.StartMission(ctx, "u1", walk)
	require.NoError(t, err)
	stepID := um.Steps[0].ID

	_, err = env.missions.CompleteStep(ctx, "u2", stepID)
	assert.ErrorIs(t, err, domain.ErrStepNotFound, "step owned by another user")
	_, err = env.missions.CompleteStep(ctx, "u1", "missing")
	assert.ErrorIs(t, err, domain.ErrStepNotFound)

	first, err := env.missions.CompleteStep(ctx, "u1", stepID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepCompleted, first.Status)

	second, err := env.missions.CompleteStep(ctx, "u1", stepID)
	require.NoError(t, err, "completing twice is a no-op")
	assert.Equal(t, domain.StepCompleted, second.Status)
	assert.Equal(t, first.CompletedAt.Unix(), second.CompletedAt.Unix())

	// steps of a finished mission can no longer be touched
	completeAllSteps(t, env, "u1", um)
	_, err = env.missions.CompleteMission(ctx, "u1", walk, nil)
	require.NoError(t, err)
	_, err = env.missions.CompleteStep(ctx, "u1", stepID)
	assert.ErrorIs(t, err, domain.ErrStepNotFound)
}

func TestCompleteMissionWithoutActive(t *testing.T) {
	env := newEnv(t, false)
	_, err := env.missions.CompleteMission(context.Background(), "u1", walk, nil)
	assert.ErrorIs(t, err, domain.ErrMissionNotActive)
}

func TestAreAllStepsCompletedNeedsExactlyThree(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()
	um, err := env.missions.StartMission(ctx, "u1", walk)
	require.NoError(t, err)
	completeAllSteps(t, env, "u1", um)

	// a fourth step (corrupt data) makes the set incomplete
	_, err = env.store.Query(ctx, storage.Query{
		Collection: "mission_steps",
		Op:         storage.OpInsert,
		Data: storage.Row{
			"id": "extra", "user_mission_id": um.ID, "user_id": "u1", "step_number": int64(4),
			"title": "extra", "description": "", "status": string(domain.StepCompleted), "completed_at": nil,
		},
	})
	require.NoError(t, err)

	done, err := env.missions.AreAllStepsCompleted(ctx, um.ID)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestConcurrentCompleteCreditsOnce(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()
	um, err := env.missions.StartMission(ctx, "u1", walk)
	require.NoError(t, err)
	completeAllSteps(t, env, "u1", um)

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.missions.CompleteMission(ctx, "u1", walk, nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrMissionNotActive)
	}
	assert.Equal(t, 1, wins)

	u, err := env.ledger.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), u.Coins)
	assert.Equal(t, int64(52), u.LifeScore)
	assert.Equal(t, 1, env.notifier.count(domain.EventMissionCompleted))
}

func TestSettleIsIdempotentAndReleasesOnFailure(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()
	um, err := env.missions.StartMission(ctx, "u1", walk)
	require.NoError(t, err)
	completeAllSteps(t, env, "u1", um)

	// crediting fails: the mission completes but stays uncredited
	env.durable.failIncrements("users", errors.New("row locked"))
	completed, err := env.missions.CompleteMission(ctx, "u1", walk, nil)
	require.NoError(t, err)
	assert.False(t, completed.Credited)

	stored, err := env.missions.missions.UserMissionByID(ctx, um.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MissionCompleted, stored.Status)
	assert.False(t, stored.Credited, "claim must be released")

	env.durable.failIncrements("users", nil)
	credited, err := env.missions.Settle(ctx, um.ID)
	require.NoError(t, err)
	assert.True(t, credited)

	credited, err = env.missions.Settle(ctx, um.ID)
	require.NoError(t, err)
	assert.False(t, credited)

	assert.Equal(t, int64(20), env.balance(t, "u1"))
}

func TestSettleForUserChecksOwner(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()
	um, err := env.missions.StartMission(ctx, "u1", walk)
	require.NoError(t, err)

	_, err = env.missions.SettleForUser(ctx, "u2", um.ID)
	assert.ErrorIs(t, err, domain.ErrUserMissionNotFound)
	_, err = env.missions.SettleForUser(ctx, "u1", um.ID)
	assert.ErrorIs(t, err, domain.ErrMissionNotActive, "active missions cannot be settled")
}

func TestSweeperSettlesLeftovers(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()
	um, err := env.missions.StartMission(ctx, "u1", walk)
	require.NoError(t, err)
	completeAllSteps(t, env, "u1", um)

	env.durable.failIncrements("users", errors.New("row locked"))
	_, err = env.missions.CompleteMission(ctx, "u1", walk, nil)
	require.NoError(t, err)
	env.durable.failIncrements("users", nil)

	// inside the grace period nothing is picked up
	n, err := env.missions.SettleUnsettled(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	env.missions.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	n, err = env.missions.SettleUnsettled(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = env.missions.SettleUnsettled(ctx, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(20), env.balance(t, "u1"))
}

func TestSettlementSurvivesCallerCancel(t *testing.T) {
	env := newEnv(t, true)
	um, err := env.missions.StartMission(context.Background(), "u1", walk)
	require.NoError(t, err)
	completeAllSteps(t, env, "u1", um)

	// the caller goes away as soon as the coins land
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.ledger.notifier = &cancelOn{typ: domain.EventCoins, cancel: cancel}

	completed, err := env.missions.CompleteMission(ctx, "u1", walk, nil)
	require.NoError(t, err)
	require.Error(t, ctx.Err())
	assert.True(t, completed.Credited)

	u, err := env.ledger.Account(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), u.Coins)
	assert.Equal(t, int64(30), u.XP)
	assert.Equal(t, int64(52), u.LifeScore)
}

func TestSettleRetrySkipsAppliedParts(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()
	um, err := env.missions.StartMission(ctx, "u1", walk)
	require.NoError(t, err)
	completeAllSteps(t, env, "u1", um)

	// coins land, XP fails
	env.durable.failColumn("users", "xp", errors.New("row locked"))
	completed, err := env.missions.CompleteMission(ctx, "u1", walk, nil)
	require.NoError(t, err)
	assert.False(t, completed.Credited)

	stored, err := env.missions.missions.UserMissionByID(ctx, um.ID)
	require.NoError(t, err)
	assert.False(t, stored.Credited)
	assert.True(t, stored.CoinsCredited)
	assert.False(t, stored.XPCredited)
	assert.False(t, stored.LifeScoreCredited)
	assert.Equal(t, int64(20), env.balance(t, "u1"))

	env.durable.failColumn("users", "xp", nil)
	credited, err := env.missions.Settle(ctx, um.ID)
	require.NoError(t, err)
	assert.True(t, credited)

	n, err := env.missions.SettleUnsettled(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	u, err := env.ledger.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), u.Coins, "coins must not be credited twice")
	assert.Equal(t, int64(30), u.XP)
	assert.Equal(t, int64(52), u.LifeScore)
}
