package repository

import (
	"encoding/json"

	"lifescore_backend/internal/domain"
	"lifescore_backend/internal/storage"
)

// Collections
const (
	colUsers        = "users"
	colMissions     = "missions"
	colUserMissions = "user_missions"
	colSteps        = "mission_steps"
	colLifeScore    = "lifescore_history"
	colCoinTx       = "coin_transactions"
	colRewards      = "rewards"
	colUserRewards  = "user_rewards"
)

// UserFromRow decodes a users row.
func UserFromRow(row storage.Row) *domain.User {
	return &domain.User{
		ID:        row.String("id"),
		Coins:     row.Int64("coins"),
		LifeScore: row.Int64("lifescore"),
		XP:        row.Int64("xp"),
		Level:     row.Int64("level"),
		CreatedAt: row.Time("created_at"),
		UpdatedAt: row.Time("updated_at"),
	}
}

func missionFromRow(row storage.Row) *domain.Mission {
	return &domain.Mission{
		ID:             row.String("id"),
		Title:          row.String("title"),
		Description:    row.String("description"),
		Category:       row.String("category"),
		CoinsReward:    row.Int64("coins_reward"),
		XPReward:       row.Int64("xp_reward"),
		LifeScoreDelta: row.Int64("lifescore_delta"),
		AIDriven:       row.Bool("ai_driven"),
		IsActive:       row.Bool("is_active"),
		SortOrder:      row.Int64("sort_order"),
		CreatedAt:      row.Time("created_at"),
	}
}

// MissionRow is the stored form of a catalog mission.
func MissionRow(m *domain.Mission) storage.Row {
	return storage.Row{
		"id":              m.ID,
		"title":           m.Title,
		"description":     m.Description,
		"category":        m.Category,
		"coins_reward":    m.CoinsReward,
		"xp_reward":       m.XPReward,
		"lifescore_delta": m.LifeScoreDelta,
		"ai_driven":       m.AIDriven,
		"is_active":       m.IsActive,
		"sort_order":      m.SortOrder,
		"created_at":      m.CreatedAt,
	}
}

func userMissionFromRow(row storage.Row) *domain.UserMission {
	return &domain.UserMission{
		ID:             row.String("id"),
		UserID:         row.String("user_id"),
		MissionID:      row.String("mission_id"),
		Status:         domain.MissionStatus(row.String("status")),
		StartedAt:      row.Time("started_at"),
		CompletedAt:    row.TimePtr("completed_at"),
		CompletionData: row.Map("completion_data"),
		Credited:       row.Bool("credited"),
		CreditedAt:     row.TimePtr("credited_at"),

		CoinsCredited:     row.Bool(partColumn(domain.CreditCoins)),
		XPCredited:        row.Bool(partColumn(domain.CreditXP)),
		LifeScoreCredited: row.Bool(partColumn(domain.CreditLifeScore)),
	}
}

func userMissionRow(um *domain.UserMission) storage.Row {
	return storage.Row{
		"id":              um.ID,
		"user_id":         um.UserID,
		"mission_id":      um.MissionID,
		"status":          string(um.Status),
		"started_at":      um.StartedAt,
		"completed_at":    timeOrNil(um.CompletedAt),
		"completion_data": mapOrNil(um.CompletionData),
		"credited":        um.Credited,
		"credited_at":     timeOrNil(um.CreditedAt),

		"coins_credited":     um.CoinsCredited,
		"xp_credited":        um.XPCredited,
		"lifescore_credited": um.LifeScoreCredited,
	}
}

func stepFromRow(row storage.Row) *domain.MissionStep {
	return &domain.MissionStep{
		ID:            row.String("id"),
		UserMissionID: row.String("user_mission_id"),
		UserID:        row.String("user_id"),
		StepNumber:    row.Int64("step_number"),
		Title:         row.String("title"),
		Description:   row.String("description"),
		Status:        domain.StepStatus(row.String("status")),
		CompletedAt:   row.TimePtr("completed_at"),
	}
}

func stepRow(s *domain.MissionStep) storage.Row {
	return storage.Row{
		"id":              s.ID,
		"user_mission_id": s.UserMissionID,
		"user_id":         s.UserID,
		"step_number":     s.StepNumber,
		"title":           s.Title,
		"description":     s.Description,
		"status":          string(s.Status),
		"completed_at":    timeOrNil(s.CompletedAt),
	}
}

func lifeScoreFromRow(row storage.Row) *domain.LifeScoreEntry {
	return &domain.LifeScoreEntry{
		ID:           row.String("id"),
		UserID:       row.String("user_id"),
		OldScore:     row.Int64("old_score"),
		NewScore:     row.Int64("new_score"),
		ChangeReason: row.String("change_reason"),
		CreatedAt:    row.Time("created_at"),
	}
}

func coinTxFromRow(row storage.Row) *domain.CoinTransaction {
	return &domain.CoinTransaction{
		ID:           row.String("id"),
		UserID:       row.String("user_id"),
		Type:         row.String("type"),
		Amount:       row.Int64("amount"),
		BalanceAfter: row.Int64("balance_after"),
		Meta:         row.Map("meta"),
		CreatedAt:    row.Time("created_at"),
	}
}

// rewardFromRow decodes the JSON details into the variant named by kind.
func rewardFromRow(row storage.Row) (*domain.Reward, error) {
	r := &domain.Reward{
		ID:          row.String("id"),
		Title:       row.String("title"),
		Description: row.String("description"),
		CoinsCost:   row.Int64("coins_cost"),
		XPReward:    row.Int64("xp_reward"),
		Kind:        domain.RewardKind(row.String("kind")),
		IsActive:    row.Bool("is_active"),
		SortOrder:   row.Int64("sort_order"),
		CreatedAt:   row.Time("created_at"),
	}

	raw, err := json.Marshal(row.Map("details"))
	if err != nil {
		return nil, err
	}
	switch r.Kind {
	case domain.RewardBadge:
		r.Badge = &domain.BadgeDetails{}
		err = json.Unmarshal(raw, r.Badge)
	case domain.RewardPartnerOffer:
		r.PartnerOffer = &domain.PartnerOfferDetails{}
		err = json.Unmarshal(raw, r.PartnerOffer)
	case domain.RewardCoinBoost:
		r.CoinBoost = &domain.CoinBoostDetails{}
		err = json.Unmarshal(raw, r.CoinBoost)
	}
	if err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// RewardRow is the stored form of a catalog reward.
func RewardRow(r *domain.Reward) storage.Row {
	return storage.Row{
		"id":          r.ID,
		"title":       r.Title,
		"description": r.Description,
		"coins_cost":  r.CoinsCost,
		"xp_reward":   r.XPReward,
		"kind":        string(r.Kind),
		"details":     r.DetailsMap(),
		"is_active":   r.IsActive,
		"sort_order":  r.SortOrder,
		"created_at":  r.CreatedAt,
	}
}

func userRewardFromRow(row storage.Row) *domain.UserReward {
	return &domain.UserReward{
		ID:         row.String("id"),
		UserID:     row.String("user_id"),
		RewardID:   row.String("reward_id"),
		CoinsSpent: row.Int64("coins_spent"),
		Details:    row.Map("details"),
		RedeemedAt: row.Time("redeemed_at"),
	}
}

func timeOrNil[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func mapOrNil(m map[string]interface{}) any {
	if m == nil {
		return nil
	}
	return m
}
