package repository

import (
	"context"
	"time"

	"lifescore_backend/internal/catalog"
	"lifescore_backend/internal/domain"
	"lifescore_backend/internal/logger"
	"lifescore_backend/internal/storage"
)

type RewardRepository struct {
	db  storage.Backend
	now func() time.Time
}

func NewRewardRepository(db storage.Backend) *RewardRepository {
	return &RewardRepository{db: db, now: time.Now}
}

func (r *RewardRepository) With(db storage.Backend) *RewardRepository {
	return &RewardRepository{db: db, now: r.now}
}

// ActiveRewards returns the reward catalog, or the static seed when no
// store has one. Rows whose details do not match their kind are skipped.
func (r *RewardRepository) ActiveRewards(ctx context.Context) ([]*domain.Reward, error) {
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colRewards,
		Op:         storage.OpSelect,
		Filters:    map[string]any{"is_active": true},
		OrderBy: []storage.Order{
			{Column: "sort_order", Direction: storage.Asc},
			{Column: "id", Direction: storage.Asc},
		},
		ExpectRows: true,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return catalog.Rewards(), nil
	}

	out := make([]*domain.Reward, 0, len(rows))
	for _, row := range rows {
		reward, err := rewardFromRow(row)
		if err != nil {
			logger.Warn("skipping malformed reward", "reward_id", row.String("id"), "error", err)
			continue
		}
		out = append(out, reward)
	}
	return out, nil
}

func (r *RewardRepository) RewardByID(ctx context.Context, id string) (*domain.Reward, error) {
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colRewards,
		Op:         storage.OpSelect,
		Filters:    map[string]any{"id": id},
		Limit:      1,
		ExpectRows: true,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		reward, err := rewardFromRow(rows[0])
		if err != nil {
			return nil, err
		}
		return reward, nil
	}
	for _, reward := range catalog.Rewards() {
		if reward.ID == id {
			return reward, nil
		}
	}
	return nil, domain.ErrRewardNotFound
}

// CreateRedemption writes the immutable redemption record.
func (r *RewardRepository) CreateRedemption(ctx context.Context, ur *domain.UserReward) error {
	details := ur.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	_, err := r.db.Query(ctx, storage.Query{
		Collection: colUserRewards,
		Op:         storage.OpInsert,
		Data: storage.Row{
			"id":          ur.ID,
			"user_id":     ur.UserID,
			"reward_id":   ur.RewardID,
			"coins_spent": ur.CoinsSpent,
			"details":     details,
			"redeemed_at": ur.RedeemedAt,
		},
	})
	return err
}

func (r *RewardRepository) UserRewards(ctx context.Context, userID string) ([]*domain.UserReward, error) {
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colUserRewards,
		Op:         storage.OpSelect,
		Filters:    map[string]any{"user_id": userID},
		OrderBy:    []storage.Order{{Column: "redeemed_at", Direction: storage.Desc}},
	})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.UserReward, 0, len(rows))
	for _, row := range rows {
		out = append(out, userRewardFromRow(row))
	}
	return out, nil
}
