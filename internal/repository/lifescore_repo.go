package repository

import (
	"context"
	"time"

	"lifescore_backend/internal/domain"
	"lifescore_backend/internal/storage"

	"github.com/google/uuid"
)

// LifeScoreRepository stores the LifeScore audit trail
type LifeScoreRepository struct {
	db  storage.Backend
	now func() time.Time
}

func NewLifeScoreRepository(db storage.Backend) *LifeScoreRepository {
	return &LifeScoreRepository{db: db, now: time.Now}
}

// Create appends an audit entry
func (r *LifeScoreRepository) Create(ctx context.Context, e *domain.LifeScoreEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	_, err := r.db.Query(ctx, storage.Query{
		Collection: colLifeScore,
		Op:         storage.OpInsert,
		Data: storage.Row{
			"id":            e.ID,
			"user_id":       e.UserID,
			"old_score":     e.OldScore,
			"new_score":     e.NewScore,
			"change_reason": e.ChangeReason,
			"created_at":    e.CreatedAt,
		},
	})
	return err
}

// GetByUserID returns audit entries for a user, newest first
func (r *LifeScoreRepository) GetByUserID(ctx context.Context, userID string, limit int) ([]*domain.LifeScoreEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colLifeScore,
		Op:         storage.OpSelect,
		Filters:    map[string]any{"user_id": userID},
		OrderBy:    []storage.Order{{Column: "created_at", Direction: storage.Desc}},
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*domain.LifeScoreEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, lifeScoreFromRow(row))
	}
	return out, nil
}
