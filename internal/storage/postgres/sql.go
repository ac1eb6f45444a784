package postgres

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"lifescore_backend/internal/storage"
)

// statement is a SQL string with its positional arguments.
type statement struct {
	sql  string
	args []any
}

type builder struct {
	schema schema
	table  string
	args   []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

func (b *builder) column(name string) (string, error) {
	if !b.schema.hasColumn(b.table, name) {
		return "", fmt.Errorf("unknown column %s.%s", b.table, name)
	}
	return name, nil
}

// where renders equality filters and guards, sorted by column so generated
// SQL is stable. prefix qualifies columns ("cur." in increments).
func (b *builder) where(prefix string, filters map[string]any, guards []storage.Guard) (string, error) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		col, err := b.column(k)
		if err != nil {
			return "", err
		}
		v := filters[k]
		if v == nil {
			parts = append(parts, prefix+col+" IS NULL")
			continue
		}
		parts = append(parts, prefix+col+" = "+b.arg(v))
	}
	for _, g := range guards {
		col, err := b.column(g.Column)
		if err != nil {
			return "", err
		}
		op, err := sqlCmp(g.Cmp)
		if err != nil {
			return "", err
		}
		parts = append(parts, prefix+col+" "+op+" "+b.arg(g.Value))
	}
	if len(parts) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(parts, " AND "), nil
}

func sqlCmp(c storage.Cmp) (string, error) {
	switch c {
	case storage.Lt, storage.Lte, storage.Gt, storage.Gte:
		return string(c), nil
	case storage.Ne:
		return "<>", nil
	}
	return "", fmt.Errorf("unknown comparison %q", c)
}

func buildQuery(s schema, q storage.Query) (statement, error) {
	if err := q.Validate(); err != nil {
		return statement{}, err
	}
	if !s.hasTable(q.Collection) {
		return statement{}, fmt.Errorf("unknown collection %s", q.Collection)
	}
	b := &builder{schema: s, table: q.Collection}

	switch q.Op {
	case storage.OpInsert:
		return b.insert(q.InsertRows())
	case storage.OpUpdate:
		return b.update(q)
	default:
		return b.selectStmt(q)
	}
}

func (b *builder) selectStmt(q storage.Query) (statement, error) {
	where, err := b.where("", q.Filters, q.Guards)
	if err != nil {
		return statement{}, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM " + b.table + where)

	if len(q.OrderBy) > 0 {
		terms := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			col, err := b.column(o.Column)
			if err != nil {
				return statement{}, err
			}
			dir := "ASC"
			if o.Direction == storage.Desc {
				dir = "DESC"
			}
			terms = append(terms, col+" "+dir)
		}
		sb.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + b.arg(q.Limit))
	}
	return statement{sql: sb.String(), args: b.args}, nil
}

// insert writes every row in one statement. Column set comes from the first
// row; all rows of a batch carry the same columns.
func (b *builder) insert(rows []storage.Row) (statement, error) {
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		if _, err := b.column(k); err != nil {
			return statement{}, err
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)

	values := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) != len(cols) {
			return statement{}, fmt.Errorf("batch rows for %s have different columns", b.table)
		}
		ph := make([]string, 0, len(cols))
		for _, c := range cols {
			v, ok := row[c]
			if !ok {
				return statement{}, fmt.Errorf("batch row for %s is missing %s", b.table, c)
			}
			ph = append(ph, b.arg(v))
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
	}

	sql := "INSERT INTO " + b.table + " (" + strings.Join(cols, ", ") + ") VALUES " +
		strings.Join(values, ", ") + " RETURNING *"
	return statement{sql: sql, args: b.args}, nil
}

func (b *builder) update(q storage.Query) (statement, error) {
	keys := make([]string, 0, len(q.Data))
	for k := range q.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys))
	for _, k := range keys {
		col, err := b.column(k)
		if err != nil {
			return statement{}, err
		}
		sets = append(sets, col+" = "+b.arg(q.Data[k]))
	}

	where, err := b.where("", q.Filters, q.Guards)
	if err != nil {
		return statement{}, err
	}
	sql := "UPDATE " + b.table + " SET " + strings.Join(sets, ", ") + where + " RETURNING *"
	return statement{sql: sql, args: b.args}, nil
}

const previousColumn = "__previous"

// buildIncrement renders the atomic add as a single UPDATE. The FOR UPDATE
// sub-select locks the row and captures the value the update started from.
func buildIncrement(s schema, inc storage.Increment) (statement, error) {
	if !s.hasTable(inc.Collection) {
		return statement{}, fmt.Errorf("unknown collection %s", inc.Collection)
	}
	if len(inc.Filters) == 0 {
		return statement{}, fmt.Errorf("increment on %s without filters", inc.Collection)
	}
	b := &builder{schema: s, table: inc.Collection}
	col, err := b.column(inc.Column)
	if err != nil {
		return statement{}, err
	}

	delta := b.arg(inc.Delta) + "::bigint"
	expr := "cur." + col + " + " + delta
	var bounds []string
	if inc.Clamp {
		if inc.Min != nil {
			expr = "GREATEST(" + expr + ", " + b.arg(*inc.Min) + "::bigint)"
		}
		if inc.Max != nil {
			expr = "LEAST(" + expr + ", " + b.arg(*inc.Max) + "::bigint)"
		}
	} else {
		if inc.Min != nil {
			bounds = append(bounds, "cur."+col+" + "+delta+" >= "+b.arg(*inc.Min)+"::bigint")
		}
		if inc.Max != nil {
			bounds = append(bounds, "cur."+col+" + "+delta+" <= "+b.arg(*inc.Max)+"::bigint")
		}
	}

	sets := []string{col + " = " + expr}
	touch := make([]string, 0, len(inc.Touch))
	for k := range inc.Touch {
		touch = append(touch, k)
	}
	sort.Strings(touch)
	for _, k := range touch {
		tc, err := b.column(k)
		if err != nil {
			return statement{}, err
		}
		sets = append(sets, tc+" = "+b.arg(inc.Touch[k]))
	}

	where, err := b.where("", inc.Filters, nil)
	if err != nil {
		return statement{}, err
	}

	cond := append([]string{"cur.id = prev.id"}, bounds...)
	sql := "UPDATE " + b.table + " AS cur SET " + strings.Join(sets, ", ") +
		" FROM (SELECT id, " + col + " AS " + previousColumn + " FROM " + b.table + where + " LIMIT 1 FOR UPDATE) AS prev" +
		" WHERE " + strings.Join(cond, " AND ") +
		" RETURNING cur.*, prev." + previousColumn
	return statement{sql: sql, args: b.args}, nil
}
