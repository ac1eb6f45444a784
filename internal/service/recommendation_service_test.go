package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"lifescore_backend/internal/ai"
	"lifescore_backend/internal/quota"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAdvisor struct {
	calls int
	last  ai.Profile
}

func (a *countingAdvisor) Recommend(_ context.Context, p ai.Profile) ([]ai.Recommendation, error) {
	a.calls++
	a.last = p
	return []ai.Recommendation{{MissionID: "m-digital-detox", Title: "Digital detox"}}, nil
}

func TestRecommendChargesAndRespectsQuota(t *testing.T) {
	env := newEnv(t, false)
	ctx := context.Background()
	env.fund(t, "u1", 10)
	_, err := env.missions.StartMission(ctx, "u1", walk)
	require.NoError(t, err)

	guard := quota.NewGuard(quota.NewMemoryCounterStore(), map[quota.Class]quota.Policy{
		quota.ClassAIDaily: {Class: quota.ClassAIDaily, Limit: 2, Window: 24 * time.Hour},
	})
	advisor := &countingAdvisor{}
	svc := NewRecommendationService(guard, env.ledger, env.missions, advisor, 3)
	id := quota.Identity{UserID: "u1"}

	recs, err := svc.Recommend(ctx, id)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, []string{walk}, advisor.last.ActiveMissions)
	assert.Equal(t, int64(7), env.balance(t, "u1"))

	_, err = svc.Recommend(ctx, id)
	require.NoError(t, err)

	_, err = svc.Recommend(ctx, id)
	var qe *quota.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, quota.ClassAIDaily, qe.Class)
	assert.Positive(t, qe.RetryAfter)
	assert.Equal(t, 2, advisor.calls, "rejected call must not reach the advisor")
	assert.Equal(t, int64(4), env.balance(t, "u1"))
}

func TestRecommendRequiresUser(t *testing.T) {
	env := newEnv(t, true)
	guard := quota.NewGuard(quota.NewMemoryCounterStore(), quota.DefaultPolicies(true))
	svc := NewRecommendationService(guard, env.ledger, env.missions, &countingAdvisor{}, 0)

	_, err := svc.Recommend(context.Background(), quota.Identity{Addr: "1.2.3.4"})
	require.Error(t, err)
}
