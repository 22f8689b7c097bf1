package model

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/leontalbot/caribou/internal/store"
)

// Create writes one new row of the model named by slug and returns it as
// persisted, enriched by whatever the after hooks and relation fields added.
// A spec carrying an id is an upsert and defers to Update. The whole
// pipeline runs under the slug's write lock inside one transaction.
func (e *Engine) Create(ctx context.Context, slug string, spec Content) (Content, error) {
	if id, ok := asInt64(spec["id"]); ok && id != 0 {
		return e.Update(ctx, slug, id, spec)
	}

	lock := e.lockFor(slug)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	content, err := e.transact(ctx, func(tx store.Querier) (Content, error) {
		return e.createIn(ctx, tx, slug, spec)
	})
	var id int64
	if content != nil {
		id, _ = asInt64(content["id"])
	}
	e.record("create", slug, id, spec, start, err)
	return content, err
}

// createIn is the re-entrant create pipeline: resolve the model, fold the
// write values, run before hooks, insert, run after hooks around the
// relation side-writes.
func (e *Engine) createIn(ctx context.Context, tx store.Querier, slug string, spec Content) (Content, error) {
	if id, ok := asInt64(spec["id"]); ok && id != 0 {
		return e.updateIn(ctx, tx, slug, id, spec)
	}

	m, err := e.Model(slug)
	if err != nil {
		return nil, err
	}

	values := Content{}
	for _, f := range m.FieldsInOrder() {
		if f.Row().Slug == "updated_at" {
			continue
		}
		values = f.UpdateValues(spec, values)
	}

	env := &Env{Model: m, Spec: spec, Values: values, Tx: tx}
	if env, err = e.hooks.run(ctx, m.Slug, BeforeSave, env); err != nil {
		return nil, err
	}
	if env, err = e.hooks.run(ctx, m.Slug, BeforeCreate, env); err != nil {
		return nil, err
	}

	delete(env.Values, "updated_at")
	inserted, err := e.store.Insert(ctx, tx, m.Slug, env.Values)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", m.Slug, err)
	}

	env.Content = mergeContent(env.Spec, inserted)
	if env, err = e.hooks.run(ctx, m.Slug, AfterCreate, env); err != nil {
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

// transact runs fn inside one transaction, committing on success and rolling
// back on any error. DDL issued by hooks participates; both supported
// databases run schema changes transactionally.
func (e *Engine) transact(ctx context.Context, fn func(tx store.Querier) (Content, error)) (Content, error) {
	tx, err := e.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	content, err := fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			e.log.Warn("rollback failed", zap.Error(rbErr))
		}
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return content, nil
}
