package db

import (
	"context"
	"fmt"

	"lifescore_backend/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pool and pings it. An empty dsn means no durable store
// and returns nil, nil.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, nil
	}

	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database connected")
	return db, nil
}
