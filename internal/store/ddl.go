package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ColumnSpec describes one column contributed by a field. Type is the
// abstract tag resolved per dialect by ColumnType.
type ColumnSpec struct {
	Name    string
	Type    string
	Default string
}

func (c ColumnSpec) render(d Dialect) (string, error) {
	if !validIdent(c.Name) {
		return "", fmt.Errorf("invalid column name: %s", c.Name)
	}
	ddl := c.Name + " " + d.ColumnType(c.Type)
	if c.Default != "" {
		ddl += " DEFAULT " + literal(c.Default)
	}
	return ddl, nil
}

// literal renders a default value: bare for plain numbers, single-quoted
// otherwise.
func literal(v string) string {
	numeric := true
	for i, c := range v {
		if c >= '0' && c <= '9' {
			continue
		}
		if c == '-' && i == 0 {
			continue
		}
		numeric = false
		break
	}
	if numeric && v != "" && v != "-" {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// TreeAlias is the CTE name used by RecursiveQuery. Slugified table names
// can never start with an underscore, so it cannot shadow a real table.
const TreeAlias = "__tree"

func (s *Store) exec(ctx context.Context, q Querier, sqlStr string) error {
	start := time.Now()
	_, err := q.ExecContext(ctx, sqlStr)
	s.logSQL(sqlStr, start, err)
	if err != nil {
		return fmt.Errorf("%s: %w", sqlStr, s.Dialect.MapError(err))
	}
	return nil
}

// CreateTable creates a table with the given columns.
func (s *Store) CreateTable(ctx context.Context, q Querier, name string, cols ...ColumnSpec) error {
	if !validIdent(name) {
		return fmt.Errorf("invalid table name: %s", name)
	}
	defs := make([]string, 0, len(cols))
	for _, col := range cols {
		ddl, err := col.render(s.Dialect)
		if err != nil {
			return err
		}
		defs = append(defs, ddl)
	}
	return s.exec(ctx, q, fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", ")))
}

// AddColumn appends one column to a table.
func (s *Store) AddColumn(ctx context.Context, q Querier, table string, col ColumnSpec) error {
	if !validIdent(table) {
		return fmt.Errorf("invalid table name: %s", table)
	}
	ddl, err := col.render(s.Dialect)
	if err != nil {
		return err
	}
	return s.exec(ctx, q, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, ddl))
}

// HasColumn reports whether a column already exists on a table.
func (s *Store) HasColumn(ctx context.Context, q Querier, table, column string) (bool, error) {
	cols, err := s.Dialect.Columns(ctx, q, table)
	if err != nil {
		return false, err
	}
	_, ok := cols[column]
	return ok, nil
}

// RenameColumn renames a column in place.
func (s *Store) RenameColumn(ctx context.Context, q Querier, table, oldName, newName string) error {
	if !validIdent(table) || !validIdent(oldName) || !validIdent(newName) {
		return fmt.Errorf("invalid identifier in rename %s.%s -> %s", table, oldName, newName)
	}
	return s.exec(ctx, q, fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", table, oldName, newName))
}

// DropColumn removes a column.
func (s *Store) DropColumn(ctx context.Context, q Querier, table, column string) error {
	if !validIdent(table) || !validIdent(column) {
		return fmt.Errorf("invalid identifier in drop %s.%s", table, column)
	}
	return s.exec(ctx, q, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, column))
}

// RenameTable renames a table.
func (s *Store) RenameTable(ctx context.Context, q Querier, oldName, newName string) error {
	if !validIdent(oldName) || !validIdent(newName) {
		return fmt.Errorf("invalid identifier in rename %s -> %s", oldName, newName)
	}
	return s.exec(ctx, q, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", oldName, newName))
}

// DropTable removes a table, tolerating its absence.
func (s *Store) DropTable(ctx context.Context, q Querier, name string) error {
	if !validIdent(name) {
		return fmt.Errorf("invalid table name: %s", name)
	}
	return s.exec(ctx, q, fmt.Sprintf("DROP TABLE IF EXISTS %s", name))
}

// TableExists checks whether a table exists.
func (s *Store) TableExists(ctx context.Context, q Querier, name string) (bool, error) {
	return s.Dialect.TableExists(ctx, q, name)
}

// Columns returns the existing columns of a table, keyed by name.
func (s *Store) Columns(ctx context.Context, q Querier, table string) (map[string]string, error) {
	return s.Dialect.Columns(ctx, q, table)
}

// RecursiveQuery walks a self-referencing table with a recursive CTE. The
// base rows match baseWhere (a %n template over args); each recursion step
// joins the table (aliased t) against the accumulated set (aliased by
// TreeAlias) on recurWhere, e.g. "t.id = __tree.parent_id". Results are
// ordered by id for determinism.
func (s *Store) RecursiveQuery(ctx context.Context, q Querier, table string, columns []string, baseWhere, recurWhere string, args ...any) ([]map[string]any, error) {
	if !validIdent(table) {
		return nil, fmt.Errorf("invalid table name: %s", table)
	}
	cols := "*"
	tcols := "t.*"
	if len(columns) > 0 {
		for _, c := range columns {
			if !validIdent(c) {
				return nil, fmt.Errorf("invalid column name: %s", c)
			}
		}
		cols = strings.Join(columns, ", ")
		prefixed := make([]string, len(columns))
		for i, c := range columns {
			prefixed[i] = "t." + c
		}
		tcols = strings.Join(prefixed, ", ")
	}

	pb := s.Dialect.NewParamBuilder()
	base, err := Clause(pb, baseWhere, args...)
	if err != nil {
		return nil, err
	}

	sqlStr := fmt.Sprintf(
		"WITH RECURSIVE %s AS (SELECT %s FROM %s WHERE %s UNION ALL SELECT %s FROM %s t JOIN %s ON %s) SELECT * FROM %s ORDER BY id",
		TreeAlias, cols, table, base, tcols, table, TreeAlias, recurWhere, TreeAlias)
	return s.Query(ctx, q, sqlStr, pb.Params()...)
}
