package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// nowValue marks a write value that must be rendered as the dialect's
// current-timestamp expression instead of a bound parameter.
type nowValue struct{}

// Now is the sentinel for "stamp this column with the database clock".
var Now nowValue

// Clause resolves a where template with positional %1, %2, ... markers into
// a parameter-bound SQL fragment. A bare % (not followed by digits) passes
// through untouched so LIKE patterns keep working.
func Clause(pb ParamBuilder, template string, args ...any) (string, error) {
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		c := template[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(template) && template[j] >= '0' && template[j] <= '9' {
			j++
		}
		if j == i+1 {
			b.WriteByte(c)
			continue
		}
		n, err := strconv.Atoi(template[i+1 : j])
		if err != nil || n < 1 || n > len(args) {
			return "", fmt.Errorf("clause %q: placeholder %%%s out of range (%d args)", template, template[i+1:j], len(args))
		}
		b.WriteString(pb.Add(args[n-1]))
		i = j - 1
	}
	return b.String(), nil
}

// Clause resolves a template against this store's dialect, returning the
// fragment and the bound parameter values.
func (s *Store) Clause(template string, args ...any) (string, []any, error) {
	pb := s.Dialect.NewParamBuilder()
	frag, err := Clause(pb, template, args...)
	if err != nil {
		return "", nil, err
	}
	return frag, pb.Params(), nil
}

// Query runs raw SQL (already in dialect placeholder form) and returns rows as maps.
func (s *Store) Query(ctx context.Context, q Querier, sqlStr string, args ...any) ([]map[string]any, error) {
	start := time.Now()
	rows, err := QueryRows(ctx, q, sqlStr, args...)
	s.logSQL(sqlStr, start, err)
	if err != nil {
		return nil, s.Dialect.MapError(err)
	}
	return rows, nil
}

// Fetch selects all rows from a table matching a %n where template.
func (s *Store) Fetch(ctx context.Context, q Querier, table, where string, args ...any) ([]map[string]any, error) {
	if !validIdent(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}
	pb := s.Dialect.NewParamBuilder()
	cond, err := Clause(pb, where, args...)
	if err != nil {
		return nil, err
	}
	sqlStr := fmt.Sprintf("SELECT * FROM %s WHERE %s", table, cond)
	return s.Query(ctx, q, sqlStr, pb.Params()...)
}

// Choose selects one row by id. A missing row returns (nil, nil).
func (s *Store) Choose(ctx context.Context, q Querier, table string, id int64) (map[string]any, error) {
	rows, err := s.Fetch(ctx, q, table, "id = %1", id)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Insert writes one row and returns it as stored (RETURNING *). Column
// order is sorted for deterministic SQL; the Now sentinel renders as the
// dialect clock expression.
func (s *Store) Insert(ctx context.Context, q Querier, table string, values map[string]any) (map[string]any, error) {
	if !validIdent(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}

	var sqlStr string
	pb := s.Dialect.NewParamBuilder()
	if len(values) == 0 {
		sqlStr = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", table)
	} else {
		cols := sortedKeys(values)
		phs := make([]string, 0, len(cols))
		for _, col := range cols {
			if !validIdent(col) {
				return nil, fmt.Errorf("invalid column name: %s", col)
			}
			if _, ok := values[col].(nowValue); ok {
				phs = append(phs, s.Dialect.NowExpr())
				continue
			}
			phs = append(phs, pb.Add(values[col]))
		}
		sqlStr = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			table, strings.Join(cols, ", "), strings.Join(phs, ", "))
	}

	start := time.Now()
	rows, err := QueryRows(ctx, q, sqlStr, pb.Params()...)
	s.logSQL(sqlStr, start, err)
	if err != nil {
		return nil, s.Dialect.MapError(err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert into %s: %w", table, ErrNotFound)
	}
	return rows[0], nil
}

// Update writes values to rows matching a %n where template and returns the
// affected count.
func (s *Store) Update(ctx context.Context, q Querier, table string, values map[string]any, where string, args ...any) (int64, error) {
	if !validIdent(table) {
		return 0, fmt.Errorf("invalid table name: %s", table)
	}
	if len(values) == 0 {
		return 0, nil
	}

	pb := s.Dialect.NewParamBuilder()
	cols := sortedKeys(values)
	sets := make([]string, 0, len(cols))
	for _, col := range cols {
		if !validIdent(col) {
			return 0, fmt.Errorf("invalid column name: %s", col)
		}
		if _, ok := values[col].(nowValue); ok {
			sets = append(sets, fmt.Sprintf("%s = %s", col, s.Dialect.NowExpr()))
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", col, pb.Add(values[col])))
	}
	cond, err := Clause(pb, where, args...)
	if err != nil {
		return 0, err
	}

	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), cond)
	start := time.Now()
	n, err := Exec(ctx, q, sqlStr, pb.Params()...)
	s.logSQL(sqlStr, start, err)
	if err != nil {
		return 0, s.Dialect.MapError(err)
	}
	return n, nil
}

// Delete removes rows matching a %n where template and returns the affected count.
func (s *Store) Delete(ctx context.Context, q Querier, table, where string, args ...any) (int64, error) {
	if !validIdent(table) {
		return 0, fmt.Errorf("invalid table name: %s", table)
	}
	pb := s.Dialect.NewParamBuilder()
	cond, err := Clause(pb, where, args...)
	if err != nil {
		return 0, err
	}
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s", table, cond)
	start := time.Now()
	n, err := Exec(ctx, q, sqlStr, pb.Params()...)
	s.logSQL(sqlStr, start, err)
	if err != nil {
		return 0, s.Dialect.MapError(err)
	}
	return n, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
