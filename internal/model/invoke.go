package model

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/leontalbot/caribou/internal/store"
)

// InvokeModels rebuilds the registry from the model and field tables. Every
// loaded slug gets its hook chains provisioned and the meta hooks are
// (re)installed, so the call is safe to repeat at any point.
func (e *Engine) InvokeModels(ctx context.Context) error {
	lock := e.lockFor("model")
	lock.Lock()
	defer lock.Unlock()
	return e.invokeModelsIn(ctx, e.store.DB)
}

// invokeModelsIn is InvokeModels inside an already-held lock and an optional
// transaction. The registry swap happens only after every descriptor is
// fully built, so readers never observe a partial one.
func (e *Engine) invokeModelsIn(ctx context.Context, q store.Querier) error {
	rows, err := e.store.Query(ctx, q, "SELECT * FROM model ORDER BY id")
	if err != nil {
		return fmt.Errorf("invoke models: %w", err)
	}

	models := make([]*Model, 0, len(rows))
	for _, row := range rows {
		m, err := e.invokeModelIn(ctx, q, row)
		if err != nil {
			return err
		}
		models = append(models, m)
	}

	e.installMetaHooks()
	for _, m := range models {
		e.hooks.provision(m.Slug)
	}
	e.registry.Swap(models)
	e.log.Debug("models invoked", zap.Int("count", len(models)))
	return nil
}

// invokeModelIn builds one model descriptor from its row without touching
// the registry. Field rows load in id order; link peers resolve against the
// model's own fields first and fall back to the field table, since a
// reciprocal peer usually lives on another model.
func (e *Engine) invokeModelIn(ctx context.Context, q store.Querier, row Content) (*Model, error) {
	m := modelFrom(row)
	if m.Slug == "" {
		return nil, fmt.Errorf("invoke model %d: empty slug", m.ID)
	}

	cond, args, err := e.store.Clause("model_id = %1", m.ID)
	if err != nil {
		return nil, err
	}
	fieldRows, err := e.store.Query(ctx, q, "SELECT * FROM field WHERE "+cond+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("invoke model %s: %w", m.Slug, err)
	}

	local := make(map[int64]FieldRow, len(fieldRows))
	parsed := make([]FieldRow, 0, len(fieldRows))
	for _, fr := range fieldRows {
		r := FieldRowFrom(fr)
		local[r.ID] = r
		parsed = append(parsed, r)
	}

	for _, r := range parsed {
		var link *FieldRow
		if r.LinkID != 0 {
			if sibling, ok := local[r.LinkID]; ok {
				link = &sibling
			} else {
				peerRow, err := e.store.Choose(ctx, q, "field", r.LinkID)
				if err != nil {
					return nil, fmt.Errorf("invoke model %s: link %d: %w", m.Slug, r.LinkID, err)
				}
				if peerRow != nil {
					peer := FieldRowFrom(peerRow)
					link = &peer
				}
			}
		}
		f, err := NewField(r, link)
		if err != nil {
			return nil, fmt.Errorf("invoke model %s: %w", m.Slug, err)
		}
		m.addField(f)
	}
	return m, nil
}

// alterModelsIn re-invokes one model from the database and merges the fresh
// descriptor into the registry.
func (e *Engine) alterModelsIn(ctx context.Context, q store.Querier, modelID int64) (*Model, error) {
	row, err := e.store.Choose(ctx, q, "model", modelID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: id %d", ErrModelMissing, modelID)
	}
	m, err := e.invokeModelIn(ctx, q, row)
	if err != nil {
		return nil, err
	}
	e.hooks.provision(m.Slug)
	e.registry.Merge(m)
	return m, nil
}
