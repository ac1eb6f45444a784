package repository

import (
	"context"
	"errors"
	"time"

	"lifescore_backend/internal/domain"
	"lifescore_backend/internal/storage"
)

type UserRepository struct {
	db  storage.Backend
	now func() time.Time
}

func NewUserRepository(db storage.Backend) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

// With returns a copy bound to another backend, typically one handed out by
// storage.Resilient.Pick.
func (r *UserRepository) With(db storage.Backend) *UserRepository {
	return &UserRepository{db: db, now: r.now}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colUsers,
		Op:         storage.OpSelect,
		Filters:    map[string]any{"id": id},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrUserNotFound
	}
	return UserFromRow(rows[0]), nil
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	now := r.now().UTC()
	if u.Level < 1 {
		u.Level = domain.LevelForXP(u.XP)
	}
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := r.db.Query(ctx, storage.Query{
		Collection: colUsers,
		Op:         storage.OpInsert,
		Data: storage.Row{
			"id":         u.ID,
			"coins":      u.Coins,
			"lifescore":  u.LifeScore,
			"xp":         u.XP,
			"level":      u.Level,
			"created_at": now,
			"updated_at": now,
		},
	})
	return err
}

// GetOrCreate returns the user, creating it with the starting balances when
// missing. A concurrent create that wins the insert is read back.
func (r *UserRepository) GetOrCreate(ctx context.Context, id string, initialCoins int64) (*domain.User, bool, error) {
	u, err := r.GetByID(ctx, id)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, false, err
	}

	u = &domain.User{
		ID:        id,
		Coins:     initialCoins,
		LifeScore: domain.DefaultLifeScore,
		Level:     1,
	}
	if err := r.Create(ctx, u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			u, err = r.GetByID(ctx, id)
			return u, false, err
		}
		return nil, false, err
	}
	return u, true, nil
}

// AdjustCoins adds delta, flooring the balance at zero.
func (r *UserRepository) AdjustCoins(ctx context.Context, id string, delta int64) (storage.IncrementResult, error) {
	return r.increment(ctx, id, "coins", delta, storage.Bound(0), nil, true)
}

// DebitCoins subtracts amount only if the balance covers it. An uncovered
// debit returns storage.ErrConditionFailed and leaves the balance alone.
func (r *UserRepository) DebitCoins(ctx context.Context, id string, amount int64) (storage.IncrementResult, error) {
	return r.increment(ctx, id, "coins", -amount, storage.Bound(0), nil, false)
}

// AdjustLifeScore adds delta, clamped into the LifeScore range.
func (r *UserRepository) AdjustLifeScore(ctx context.Context, id string, delta int64) (storage.IncrementResult, error) {
	return r.increment(ctx, id, "lifescore", delta,
		storage.Bound(domain.LifeScoreMin), storage.Bound(domain.LifeScoreMax), true)
}

func (r *UserRepository) AddXP(ctx context.Context, id string, delta int64) (storage.IncrementResult, error) {
	return r.increment(ctx, id, "xp", delta, storage.Bound(0), nil, true)
}

// RaiseLevel sets the level only if it is below the given one, so the
// stored level never goes down under concurrent XP grants.
func (r *UserRepository) RaiseLevel(ctx context.Context, id string, level int64) (bool, error) {
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colUsers,
		Op:         storage.OpUpdate,
		Filters:    map[string]any{"id": id},
		Guards:     []storage.Guard{{Column: "level", Cmp: storage.Lt, Value: level}},
		Data:       storage.Row{"level": level, "updated_at": r.now().UTC()},
	})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Top returns users ordered by LifeScore, then XP.
func (r *UserRepository) Top(ctx context.Context, limit int) ([]*domain.User, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colUsers,
		Op:         storage.OpSelect,
		OrderBy: []storage.Order{
			{Column: "lifescore", Direction: storage.Desc},
			{Column: "xp", Direction: storage.Desc},
			{Column: "id", Direction: storage.Asc},
		},
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}
	users := make([]*domain.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, UserFromRow(row))
	}
	return users, nil
}

func (r *UserRepository) increment(ctx context.Context, id, column string, delta int64, min, max *int64, clamp bool) (storage.IncrementResult, error) {
	return r.db.Increment(ctx, storage.Increment{
		Collection: colUsers,
		Filters:    map[string]any{"id": id},
		Column:     column,
		Delta:      delta,
		Min:        min,
		Max:        max,
		Clamp:      clamp,
		Touch:      storage.Row{"updated_at": r.now().UTC()},
	})
}
