package model

import (
	"context"
	"fmt"

	"github.com/leontalbot/caribou/internal/store"
)

// From projects a raw row through the model's fields: each field slug's
// value is replaced by that field's read projection. Relation fields expand
// only where opts.Include names them.
func (e *Engine) From(ctx context.Context, m *Model, row Content, opts Opts) (Content, error) {
	return e.fromIn(ctx, e.store.DB, m, row, opts)
}

// Render is From with display-flavored values: timestamps become strings and
// relation fields recurse through Render.
func (e *Engine) Render(ctx context.Context, m *Model, row Content, opts Opts) (Content, error) {
	return e.renderIn(ctx, e.store.DB, m, row, opts)
}

func (e *Engine) fromIn(ctx context.Context, q store.Querier, m *Model, row Content, opts Opts) (Content, error) {
	out := copyContent(row)
	for _, f := range m.FieldsInOrder() {
		v, err := f.FieldFrom(ctx, e, q, row, opts)
		if err != nil {
			return nil, fmt.Errorf("from %s.%s: %w", m.Slug, f.Row().Slug, err)
		}
		out[f.Row().Slug] = v
	}
	return out, nil
}

func (e *Engine) renderIn(ctx context.Context, q store.Querier, m *Model, row Content, opts Opts) (Content, error) {
	out := copyContent(row)
	for _, f := range m.FieldsInOrder() {
		v, err := f.Render(ctx, e, q, row, opts)
		if err != nil {
			return nil, fmt.Errorf("render %s.%s: %w", m.Slug, f.Row().Slug, err)
		}
		out[f.Row().Slug] = v
	}
	return out, nil
}

// Choose reads one row by id and projects it. A missing row is an error.
func (e *Engine) Choose(ctx context.Context, slug string, id int64, opts Opts) (Content, error) {
	m, err := e.Model(slug)
	if err != nil {
		return nil, err
	}
	row, err := e.store.Choose(ctx, e.store.DB, m.Slug, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s %d", ErrRowMissing, m.Slug, id)
	}
	return e.fromIn(ctx, e.store.DB, m, row, opts)
}

// Rally lists a model's rows, ordered and paged by opts, each projected
// through From. Defaults: order by position ascending, thirty rows, no
// offset.
func (e *Engine) Rally(ctx context.Context, slug string, opts Opts) ([]Content, error) {
	m, err := e.Model(slug)
	if err != nil {
		return nil, err
	}

	orderBy := opts.OrderBy
	if orderBy == "" {
		orderBy = "position"
	}
	if _, ok := m.Fields[orderBy]; !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrFieldMissing, m.Slug, orderBy)
	}
	order := "ASC"
	if opts.Order == "desc" || opts.Order == "DESC" {
		order = "DESC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 30
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	sqlStr := fmt.Sprintf("SELECT * FROM %s ORDER BY %s %s LIMIT %d OFFSET %d",
		m.Slug, orderBy, order, limit, offset)
	rows, err := e.store.Query(ctx, e.store.DB, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("rally %s: %w", m.Slug, err)
	}
	return e.projectAll(ctx, m, rows, opts)
}

// Progenitors walks a nested model's parent chain from the given row to the
// root, ordered root first. On a model that is not nested it degrades to the
// row itself.
func (e *Engine) Progenitors(ctx context.Context, slug string, id int64, opts Opts) ([]Content, error) {
	return e.traverse(ctx, slug, id, opts, "t.id = "+store.TreeAlias+".parent_id")
}

// Descendents walks a nested model's child tree below the given row, ordered
// by id. On a model that is not nested it degrades to the row itself.
func (e *Engine) Descendents(ctx context.Context, slug string, id int64, opts Opts) ([]Content, error) {
	return e.traverse(ctx, slug, id, opts, "t.parent_id = "+store.TreeAlias+".id")
}

func (e *Engine) traverse(ctx context.Context, slug string, id int64, opts Opts, recurWhere string) ([]Content, error) {
	m, err := e.Model(slug)
	if err != nil {
		return nil, err
	}

	if !m.Nested {
		row, err := e.store.Choose(ctx, e.store.DB, m.Slug, id)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, fmt.Errorf("%w: %s %d", ErrRowMissing, m.Slug, id)
		}
		return e.projectAll(ctx, m, []Content{row}, opts)
	}

	rows, err := e.store.RecursiveQuery(ctx, e.store.DB, m.Slug, nil, "id = %1", recurWhere, id)
	if err != nil {
		return nil, fmt.Errorf("traverse %s %d: %w", m.Slug, id, err)
	}
	return e.projectAll(ctx, m, rows, opts)
}

func (e *Engine) projectAll(ctx context.Context, m *Model, rows []Content, opts Opts) ([]Content, error) {
	out := make([]Content, 0, len(rows))
	for _, row := range rows {
		projected, err := e.fromIn(ctx, e.store.DB, m, row, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, projected)
	}
	return out, nil
}
