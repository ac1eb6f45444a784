// Package memory is the process-local fallback backend. Records are kept per
// collection and per user, in insertion order.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"lifescore_backend/internal/storage"
)

const globalPartition = ""

// Store is an in-memory implementation of storage.Backend. It is safe for
// concurrent use; every row is cloned on the way in and out.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string][]storage.Row
	order       map[string][]string
}

var _ storage.Backend = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string][]storage.Row),
		order:       make(map[string][]string),
	}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Available(context.Context) bool { return true }

// partitionColumn is the column a collection is keyed by. Users are keyed by
// their own id, everything owned by a user by user_id.
func partitionColumn(collection string) string {
	if collection == "users" {
		return "id"
	}
	return "user_id"
}

func partitionOf(collection string, row storage.Row) string {
	v, ok := row[partitionColumn(collection)].(string)
	if !ok {
		return globalPartition
	}
	return v
}

func (s *Store) Query(ctx context.Context, q storage.Query) ([]storage.Row, error) {
	if err := q.Validate(); err != nil {
		return nil, &storage.StorageError{Backend: s.Name(), Op: string(q.Op), Collection: q.Collection, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &storage.StorageError{Backend: s.Name(), Op: string(q.Op), Collection: q.Collection, Err: err}
	}

	switch q.Op {
	case storage.OpInsert:
		return s.insert(q)
	case storage.OpUpdate:
		return s.update(q)
	default:
		return s.selectRows(q), nil
	}
}

func (s *Store) insert(q storage.Query) ([]storage.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := q.InsertRows()
	for _, row := range rows {
		if id, ok := row["id"]; ok && s.findLocked(q.Collection, map[string]any{"id": id}) != nil {
			return nil, fmt.Errorf("%w: %s id %v", storage.ErrConflict, q.Collection, id)
		}
	}

	out := make([]storage.Row, 0, len(rows))
	for _, row := range rows {
		stored := normalizeRow(row)
		s.appendLocked(q.Collection, stored)
		out = append(out, stored.Clone())
	}
	return out, nil
}

func (s *Store) update(q storage.Query) ([]storage.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []storage.Row
	s.eachMatchLocked(q.Collection, q.Filters, func(row storage.Row) bool {
		for _, g := range q.Guards {
			if !g.Holds(row[g.Column]) {
				return true
			}
		}
		for k, v := range q.Data {
			row[k] = storage.Normalize(v)
		}
		out = append(out, row.Clone())
		return q.Limit <= 0 || len(out) < q.Limit
	})
	return out, nil
}

func (s *Store) selectRows(q storage.Query) []storage.Row {
	s.mu.RLock()
	var out []storage.Row
	s.eachMatchLocked(q.Collection, q.Filters, func(row storage.Row) bool {
		for _, g := range q.Guards {
			if !g.Holds(row[g.Column]) {
				return true
			}
		}
		out = append(out, row.Clone())
		return true
	})
	s.mu.RUnlock()

	if len(q.OrderBy) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.OrderBy {
				c, _ := storage.Compare(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Direction == storage.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (s *Store) Increment(ctx context.Context, inc storage.Increment) (storage.IncrementResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.IncrementResult{}, &storage.StorageError{Backend: s.Name(), Op: "increment", Collection: inc.Collection, Err: err}
	}
	if inc.Column == "" || len(inc.Filters) == 0 {
		return storage.IncrementResult{}, &storage.StorageError{Backend: s.Name(), Op: "increment", Collection: inc.Collection, Err: fmt.Errorf("column and filters are required")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.findLocked(inc.Collection, inc.Filters)
	if row == nil {
		return storage.IncrementResult{}, storage.ErrConditionFailed
	}

	prev := row.Int64(inc.Column)
	next := prev + inc.Delta
	if inc.Clamp {
		if inc.Min != nil && next < *inc.Min {
			next = *inc.Min
		}
		if inc.Max != nil && next > *inc.Max {
			next = *inc.Max
		}
	} else if (inc.Min != nil && next < *inc.Min) || (inc.Max != nil && next > *inc.Max) {
		return storage.IncrementResult{}, storage.ErrConditionFailed
	}

	row[inc.Column] = next
	for k, v := range inc.Touch {
		row[k] = storage.Normalize(v)
	}
	return storage.IncrementResult{Previous: prev, Current: next, Row: row.Clone()}, nil
}

// Mirror upserts rows by id. The resilience layer calls it with every
// successful durable result so fallback reads stay warm.
func (s *Store) Mirror(collection string, rows []storage.Row) {
	if len(rows) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		id, ok := row["id"]
		if !ok {
			continue
		}
		stored := normalizeRow(row)
		if existing := s.findLocked(collection, map[string]any{"id": id}); existing != nil {
			for k := range existing {
				delete(existing, k)
			}
			for k, v := range stored {
				existing[k] = v
			}
			continue
		}
		s.appendLocked(collection, stored)
	}
}

// Seed loads static catalog rows, replacing rows that share an id.
func (s *Store) Seed(collection string, rows []storage.Row) {
	s.Mirror(collection, rows)
}

// Len returns the number of rows held for a collection.
func (s *Store) Len(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rows := range s.collections[collection] {
		n += len(rows)
	}
	return n
}

func (s *Store) appendLocked(collection string, row storage.Row) {
	parts, ok := s.collections[collection]
	if !ok {
		parts = make(map[string][]storage.Row)
		s.collections[collection] = parts
	}
	key := partitionOf(collection, row)
	if _, seen := parts[key]; !seen {
		s.order[collection] = append(s.order[collection], key)
	}
	parts[key] = append(parts[key], row)
}

func (s *Store) findLocked(collection string, filters map[string]any) storage.Row {
	var found storage.Row
	s.eachMatchLocked(collection, filters, func(row storage.Row) bool {
		found = row
		return false
	})
	return found
}

// eachMatchLocked walks matching rows in insertion order until fn returns
// false. A filter on the partition column narrows the walk to one user.
func (s *Store) eachMatchLocked(collection string, filters map[string]any, fn func(storage.Row) bool) {
	parts := s.collections[collection]
	if len(parts) == 0 {
		return
	}

	keys := s.order[collection]
	if v, ok := filters[partitionColumn(collection)].(string); ok {
		keys = []string{v}
	}

	for _, key := range keys {
		for _, row := range parts[key] {
			if !matches(row, filters) {
				continue
			}
			if !fn(row) {
				return
			}
		}
	}
}

func matches(row storage.Row, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := row[k]
		if want == nil {
			if ok && got != nil {
				return false
			}
			continue
		}
		if !storage.Equal(got, want) {
			return false
		}
	}
	return true
}

func normalizeRow(row storage.Row) storage.Row {
	out := make(storage.Row, len(row))
	for k, v := range row {
		out[k] = storage.Normalize(v)
	}
	return out
}
