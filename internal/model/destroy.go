package model

import (
	"context"
	"fmt"
	"time"

	"github.com/leontalbot/caribou/internal/store"
)

// Destroy deletes a row and returns it as it stood before deletion. Relation
// fields get their chance to cascade before the delete; after_destroy hooks
// observe the already-deleted state.
func (e *Engine) Destroy(ctx context.Context, slug string, id int64) (Content, error) {
	lock := e.lockFor(slug)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	content, err := e.transact(ctx, func(tx store.Querier) (Content, error) {
		return e.destroyIn(ctx, tx, slug, id)
	})
	e.record("destroy", slug, id, nil, start, err)
	return content, err
}

func (e *Engine) destroyIn(ctx context.Context, tx store.Querier, slug string, id int64) (Content, error) {
	m, err := e.Model(slug)
	if err != nil {
		return nil, err
	}

	original, err := e.store.Choose(ctx, tx, m.Slug, id)
	if err != nil {
		return nil, fmt.Errorf("destroy %s %d: %w", m.Slug, id, err)
	}
	if original == nil {
		return nil, fmt.Errorf("%w: %s %d", ErrRowMissing, m.Slug, id)
	}

	env := &Env{Model: m, Content: original, Tx: tx}
	if env, err = e.hooks.run(ctx, m.Slug, BeforeDestroy, env); err != nil {
		return nil, err
	}

	content := env.Content
	for _, f := range m.FieldsInOrder() {
		if content, err = f.PreDestroy(ctx, e, tx, content); err != nil {
			return nil, err
		}
	}

	if _, err := e.store.Delete(ctx, tx, m.Slug, "id = %1", id); err != nil {
		return nil, fmt.Errorf("destroy %s %d: %w", m.Slug, id, err)
	}

	env.Content = content
	if env, err = e.hooks.run(ctx, m.Slug, AfterDestroy, env); err != nil {
		return nil, err
	}
	return env.Content, nil
}
