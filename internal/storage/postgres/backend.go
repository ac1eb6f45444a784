// Package postgres is the durable storage backend on top of pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"lifescore_backend/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Backend runs storage queries against Postgres. Every failure other than a
// unique violation is surfaced as *storage.StorageError; nothing is retried
// here.
type Backend struct {
	db     *pgxpool.Pool
	schema schema
}

var _ storage.Backend = (*Backend)(nil)

func New(db *pgxpool.Pool) *Backend {
	return &Backend{db: db, schema: defaultSchema()}
}

func (b *Backend) Name() string { return "postgres" }

func (b *Backend) Available(ctx context.Context) bool {
	return b.db.Ping(ctx) == nil
}

func (b *Backend) Query(ctx context.Context, q storage.Query) ([]storage.Row, error) {
	stmt, err := buildQuery(b.schema, q)
	if err != nil {
		return nil, b.wrap(string(q.Op), q.Collection, err)
	}

	rows, err := b.db.Query(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return nil, b.wrap(string(q.Op), q.Collection, err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, b.wrap(string(q.Op), q.Collection, err)
	}

	out := make([]storage.Row, len(maps))
	for i, m := range maps {
		out[i] = storage.Row(m)
	}
	return out, nil
}

func (b *Backend) Increment(ctx context.Context, inc storage.Increment) (storage.IncrementResult, error) {
	stmt, err := buildIncrement(b.schema, inc)
	if err != nil {
		return storage.IncrementResult{}, b.wrap("increment", inc.Collection, err)
	}

	rows, err := b.db.Query(ctx, stmt.sql, stmt.args...)
	if err != nil {
		return storage.IncrementResult{}, b.wrap("increment", inc.Collection, err)
	}
	m, err := pgx.CollectOneRow(rows, pgx.RowToMap)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.IncrementResult{}, storage.ErrConditionFailed
		}
		return storage.IncrementResult{}, b.wrap("increment", inc.Collection, err)
	}

	row := storage.Row(m)
	prev := row.Int64(previousColumn)
	delete(row, previousColumn)
	return storage.IncrementResult{
		Previous: prev,
		Current:  row.Int64(inc.Column),
		Row:      row,
	}, nil
}

func (b *Backend) wrap(op, collection string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", storage.ErrConflict, pgErr.ConstraintName)
	}
	return &storage.StorageError{Backend: b.Name(), Op: op, Collection: collection, Err: err}
}
