package repository

import (
	"context"
	"time"

	"lifescore_backend/internal/domain"
	"lifescore_backend/internal/storage"

	"github.com/google/uuid"
)

type TransactionRepository struct {
	db  storage.Backend
	now func() time.Time
}

func NewTransactionRepository(db storage.Backend) *TransactionRepository {
	return &TransactionRepository{db: db, now: time.Now}
}

// Create appends a coin transaction, filling in id and timestamp.
func (r *TransactionRepository) Create(ctx context.Context, tx *domain.CoinTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = r.now().UTC()
	}
	meta := tx.Meta
	if meta == nil {
		meta = map[string]interface{}{}
	}

	_, err := r.db.Query(ctx, storage.Query{
		Collection: colCoinTx,
		Op:         storage.OpInsert,
		Data: storage.Row{
			"id":            tx.ID,
			"user_id":       tx.UserID,
			"type":          tx.Type,
			"amount":        tx.Amount,
			"balance_after": tx.BalanceAfter,
			"meta":          meta,
			"created_at":    tx.CreatedAt,
		},
	})
	return err
}

// GetByUserID returns recent transactions for a user, newest first
func (r *TransactionRepository) GetByUserID(ctx context.Context, userID string, limit int) ([]*domain.CoinTransaction, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx, storage.Query{
		Collection: colCoinTx,
		Op:         storage.OpSelect,
		Filters:    map[string]any{"user_id": userID},
		OrderBy:    []storage.Order{{Column: "created_at", Direction: storage.Desc}},
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]*domain.CoinTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, coinTxFromRow(row))
	}
	return out, nil
}
