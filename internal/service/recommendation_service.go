package service

import (
	"context"

	"lifescore_backend/internal/ai"
	"lifescore_backend/internal/domain"
	"lifescore_backend/internal/logger"
	"lifescore_backend/internal/quota"
)

// RecommendationService gates advisor calls behind the daily AI quota and
// charges the configured coin cost per call.
type RecommendationService struct {
	guard    *quota.Guard
	ledger   *LedgerService
	missions *MissionService
	advisor  ai.Advisor
	callCost int64
}

func NewRecommendationService(guard *quota.Guard, ledger *LedgerService, missions *MissionService, advisor ai.Advisor, callCost int64) *RecommendationService {
	return &RecommendationService{
		guard:    guard,
		ledger:   ledger,
		missions: missions,
		advisor:  advisor,
		callCost: callCost,
	}
}

// Recommend returns *quota.QuotaExceededError without calling the advisor
// when the daily quota is spent.
func (s *RecommendationService) Recommend(ctx context.Context, id quota.Identity) ([]ai.Recommendation, error) {
	if id.UserID == "" {
		return nil, domain.ErrUserNotFound
	}
	if _, err := s.guard.Check(ctx, id, quota.ClassAIDaily); err != nil {
		return nil, err
	}

	profile, err := s.profile(ctx, id.UserID)
	if err != nil {
		return nil, err
	}
	recs, err := s.advisor.Recommend(ctx, profile)
	if err != nil {
		return nil, err
	}

	if s.callCost > 0 {
		if _, err := s.ledger.AdjustCoins(ctx, id.UserID, -s.callCost, domain.TxAICall); err != nil {
			logger.FromContext(ctx).Error("ai call debit failed", "user_id", id.UserID, "cost", s.callCost, "error", err)
		}
	}
	return recs, nil
}

func (s *RecommendationService) profile(ctx context.Context, userID string) (ai.Profile, error) {
	u, err := s.ledger.Account(ctx, userID)
	if err != nil {
		return ai.Profile{}, err
	}
	ums, err := s.missions.missions.UserMissions(ctx, userID)
	if err != nil {
		return ai.Profile{}, err
	}

	p := ai.Profile{
		UserID:            u.ID,
		LifeScore:         u.LifeScore,
		Level:             u.Level,
		XP:                u.XP,
		CompletedMissions: []string{},
		ActiveMissions:    []string{},
	}
	for _, um := range ums {
		switch um.Status {
		case domain.MissionCompleted:
			p.CompletedMissions = append(p.CompletedMissions, um.MissionID)
		case domain.MissionActive:
			p.ActiveMissions = append(p.ActiveMissions, um.MissionID)
		}
	}
	return p, nil
}
