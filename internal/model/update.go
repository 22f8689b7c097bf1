package model

import (
	"context"
	"fmt"
	"time"

	"github.com/leontalbot/caribou/internal/store"
)

// Update writes spec onto an existing row and returns the row as persisted.
// Only the fields the spec mentions change, plus updated_at, which is
// stamped on every write.
func (e *Engine) Update(ctx context.Context, slug string, id int64, spec Content) (Content, error) {
	lock := e.lockFor(slug)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	content, err := e.transact(ctx, func(tx store.Querier) (Content, error) {
		return e.updateIn(ctx, tx, slug, id, spec)
	})
	e.record("update", slug, id, spec, start, err)
	return content, err
}

func (e *Engine) updateIn(ctx context.Context, tx store.Querier, slug string, id int64, spec Content) (Content, error) {
	m, err := e.Model(slug)
	if err != nil {
		return nil, err
	}

	original, err := e.store.Choose(ctx, tx, m.Slug, id)
	if err != nil {
		return nil, fmt.Errorf("update %s %d: %w", m.Slug, id, err)
	}
	if original == nil {
		return nil, fmt.Errorf("%w: %s %d", ErrRowMissing, m.Slug, id)
	}

	values := Content{}
	for _, f := range m.FieldsInOrder() {
		values = f.UpdateValues(spec, values)
	}

	env := &Env{Model: m, Spec: spec, Values: values, Original: original, Tx: tx}
	if env, err = e.hooks.run(ctx, m.Slug, BeforeSave, env); err != nil {
		return nil, err
	}
	if env, err = e.hooks.run(ctx, m.Slug, BeforeUpdate, env); err != nil {
		return nil, err
	}

	if _, err := e.store.Update(ctx, tx, m.Slug, env.Values, "id = %1", id); err != nil {
		return nil, fmt.Errorf("update %s %d: %w", m.Slug, id, err)
	}

	written, err := e.store.Choose(ctx, tx, m.Slug, id)
	if err != nil {
		return nil, fmt.Errorf("update %s %d: reread: %w", m.Slug, id, err)
	}

	env.Content = mergeContent(env.Spec, written)
	if env, err = e.hooks.run(ctx, m.Slug, AfterUpdate, env); err != nil {
		return nil, err
	}

	content := env.Content
	for _, f := range m.FieldsInOrder() {
		if content, err = f.PostUpdate(ctx, e, tx, content); err != nil {
			return nil, err
		}
	}

	env.Content = content
	if env, err = e.hooks.run(ctx, m.Slug, AfterSave, env); err != nil {
		return nil, err
	}
	return env.Content, nil
}
