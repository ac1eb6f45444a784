package integration

import (
	"context"
	"os"
	"testing"

	"lifescore_backend/internal/db"
	"lifescore_backend/internal/migrations"
	"lifescore_backend/internal/repository"
	"lifescore_backend/internal/storage/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// connect opens DATABASE_URL, applies migrations and seeds the catalog.
// Tests skip when no database is configured.
func connect(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, migrations.Apply(ctx, pool, nil))
	_, err = repository.SeedCatalog(ctx, postgres.New(pool))
	require.NoError(t, err)
	return pool
}
