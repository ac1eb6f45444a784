// Package storage defines the uniform query contract shared by the durable
// Postgres backend and the in-memory fallback store.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Op is the kind of statement a Query runs.
type Op string

const (
	OpSelect Op = "select"
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// Direction of an ORDER BY clause.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Order is one ORDER BY term.
type Order struct {
	Column    string
	Direction Direction
}

// Cmp is a comparison operator usable in a Guard.
type Cmp string

const (
	Lt  Cmp = "<"
	Lte Cmp = "<="
	Gt  Cmp = ">"
	Gte Cmp = ">="
	Ne  Cmp = "!="
)

// Guard is a non-equality condition. Guards let an update act as a
// compare-and-swap: the row is only touched when every guard holds.
type Guard struct {
	Column string
	Cmp    Cmp
	Value  any
}

// Query is a single statement against one collection.
//
// Filters are ANDed equality conditions (a nil value matches NULL). Data is
// the inserted row for OpInsert or the SET map for OpUpdate; Rows is a batch
// insert that backends must apply as a single statement. ExpectRows marks a
// select whose empty result is suspicious (catalog listings) so the
// resilience layer may serve it from the fallback instead.
type Query struct {
	Collection string
	Op         Op
	Filters    map[string]any
	Guards     []Guard
	OrderBy    []Order
	Limit      int
	Data       Row
	Rows       []Row
	ExpectRows bool
}

// Increment atomically adds Delta to Column on the rows matching Filters.
//
// With Clamp set the result is forced into [Min, Max]. Without it a result
// outside the bounds is rejected with ErrConditionFailed and the row is left
// untouched. Nil bounds are open. Touch holds extra columns to set in the
// same statement (updated_at).
type Increment struct {
	Collection string
	Filters    map[string]any
	Column     string
	Delta      int64
	Min        *int64
	Max        *int64
	Clamp      bool
	Touch      Row
}

// IncrementResult reports the value before and after an Increment.
type IncrementResult struct {
	Previous int64
	Current  int64
	Row      Row
}

// Backend is implemented by every store the service can read and write.
type Backend interface {
	Name() string
	Available(ctx context.Context) bool
	Query(ctx context.Context, q Query) ([]Row, error)
	Increment(ctx context.Context, inc Increment) (IncrementResult, error)
}

var (
	// ErrConditionFailed means a conditional write matched no row.
	ErrConditionFailed = errors.New("storage: condition failed")
	// ErrConflict means a unique constraint rejected the write.
	ErrConflict = errors.New("storage: conflict")
)

// StorageError is a transport, auth, schema or timeout failure of a backend.
// Backends never retry; callers decide whether to fall back.
type StorageError struct {
	Backend    string
	Op         string
	Collection string
	Err        error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %s %s: %v", e.Backend, e.Op, e.Collection, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is (or wraps) a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// Bound returns a pointer for use as an Increment bound.
func Bound(v int64) *int64 {
	return &v
}

// Validate checks the parts of a query every backend relies on.
func (q Query) Validate() error {
	if q.Collection == "" {
		return errors.New("collection is required")
	}
	switch q.Op {
	case OpSelect:
	case OpInsert:
		if q.Data == nil && len(q.Rows) == 0 {
			return errors.New("insert without data")
		}
	case OpUpdate:
		if len(q.Data) == 0 {
			return errors.New("update without data")
		}
		if len(q.Filters) == 0 {
			return errors.New("update without filters")
		}
	default:
		return fmt.Errorf("unknown op %q", q.Op)
	}
	return nil
}

// InsertRows returns the rows an insert query writes.
func (q Query) InsertRows() []Row {
	if len(q.Rows) > 0 {
		return q.Rows
	}
	if q.Data != nil {
		return []Row{q.Data}
	}
	return nil
}
