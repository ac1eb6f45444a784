package storage

import (
	"encoding/json"
	"strings"
	"time"
)

// Row is one record as column name -> value.
type Row map[string]any

// Clone returns a deep copy of the row. Nested maps and slices produced by
// JSON decoding are copied too.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case Row:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}

func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func (r Row) Int64(key string) int64 {
	n, _ := toInt64(r[key])
	return n
}

func (r Row) Int(key string) int {
	return int(r.Int64(key))
}

func (r Row) Bool(key string) bool {
	b, _ := r[key].(bool)
	return b
}

func (r Row) Time(key string) time.Time {
	t, _ := r[key].(time.Time)
	return t
}

// TimePtr returns nil for NULL / missing timestamps.
func (r Row) TimePtr(key string) *time.Time {
	t, ok := r[key].(time.Time)
	if !ok || t.IsZero() {
		return nil
	}
	return &t
}

// Map returns a JSON object column. Raw JSON text is decoded.
func (r Row) Map(key string) map[string]any {
	switch v := r[key].(type) {
	case map[string]any:
		return v
	case Row:
		return map[string]any(v)
	case []byte:
		var m map[string]any
		if err := json.Unmarshal(v, &m); err == nil {
			return m
		}
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err == nil {
			return m
		}
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case float64:
		return int64(n), n == float64(int64(n))
	case float32:
		return int64(n), float32(int64(n)) == n
	}
	return 0, false
}

// Normalize converts a value to the canonical form used for comparisons:
// integers become int64 and times become UTC.
func Normalize(v any) any {
	switch t := v.(type) {
	case int, int32, int16, int8, uint32, uint16, uint8:
		n, _ := toInt64(t)
		return n
	case time.Time:
		return t.UTC()
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC()
	case map[string]any, Row, []any:
		return cloneValue(t)
	}
	return v
}

// Compare orders two values of compatible kinds. ok is false when the values
// cannot be ordered against each other.
func Compare(a, b any) (c int, ok bool) {
	a, b = Normalize(a), Normalize(b)
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, true
		case a == nil:
			return -1, true
		default:
			return 1, true
		}
	}

	if ai, aok := toInt64(a); aok {
		if bi, bok := toInt64(b); bok {
			switch {
			case ai < bi:
				return -1, true
			case ai > bi:
				return 1, true
			}
			return 0, true
		}
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return cmpFloat(af, bf), true
		}
	}

	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), true
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), true
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Equal reports whether two column values are equal after normalization.
func Equal(a, b any) bool {
	c, ok := Compare(a, b)
	return ok && c == 0
}

// Holds evaluates a guard against a row value.
func (g Guard) Holds(v any) bool {
	if v == nil || g.Value == nil {
		return false
	}
	c, ok := Compare(v, g.Value)
	if !ok {
		return false
	}
	switch g.Cmp {
	case Lt:
		return c < 0
	case Lte:
		return c <= 0
	case Gt:
		return c > 0
	case Gte:
		return c >= 0
	case Ne:
		return c != 0
	}
	return false
}
