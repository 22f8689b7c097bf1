package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/leontalbot/caribou/internal/instrument"
	"github.com/leontalbot/caribou/internal/store"
)

// Engine drives every schema and content operation against one database. It
// owns the registry of live model descriptors, the hook table, and the
// per-slug write locks. Public write calls take the slug's lock and one
// transaction for their whole pipeline; the unexported *In variants are the
// re-entrant forms the engine calls back into itself with (reciprocal field
// synthesis, nested child writes, meta hooks), running inside the caller's
// lock and transaction.
type Engine struct {
	store    *store.Store
	registry *Registry
	hooks    *hookTable
	log      *zap.Logger
	rec      *instrument.Recorder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Options tunes an Engine. The zero value is valid: no-op logging, no
// operation recording.
type Options struct {
	Logger   *zap.Logger
	Recorder *instrument.Recorder
}

// New builds an Engine over an open store. Call Init before using it.
func New(st *store.Store, opts Options) (*Engine, error) {
	if st == nil {
		return nil, errors.New("model: nil store")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:    st,
		registry: NewRegistry(),
		hooks:    newHookTable(),
		log:      log,
		rec:      opts.Recorder,
		locks:    map[string]*sync.Mutex{},
	}, nil
}

// Model resolves a loaded model by slug, numeric id, or decimal id string.
func (e *Engine) Model(key any) (*Model, error) {
	m, ok := e.registry.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrModelMissing, key)
	}
	return m, nil
}

// Models returns every loaded model, ordered by id.
func (e *Engine) Models() []*Model {
	return e.registry.All()
}

func (e *Engine) modelByID(id int64) (*Model, error) {
	m, ok := e.registry.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrModelMissing, id)
	}
	return m, nil
}

// AddHook registers fn at the given timing for a model slug. Re-registering
// an id replaces the function but keeps its position in the chain.
func (e *Engine) AddHook(slug string, timing Timing, id string, fn HookFunc) {
	e.hooks.add(slug, timing, id, fn)
}

// RunHook folds env through the hooks registered for (slug, timing) in
// insertion order. Unknown pairs are a no-op.
func (e *Engine) RunHook(ctx context.Context, slug string, timing Timing, env *Env) (*Env, error) {
	return e.hooks.run(ctx, slug, timing, env)
}

// lockFor returns the write lock guarding a slug. The two schema slugs share
// one lock so that no two schema mutations interleave, whichever meta table
// they enter through.
func (e *Engine) lockFor(slug string) *sync.Mutex {
	if slug == "field" {
		slug = "model"
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[slug]
	if !ok {
		l = &sync.Mutex{}
		e.locks[slug] = l
	}
	return l
}

func (e *Engine) record(action, slug string, id int64, spec Content, start time.Time, err error) {
	if e.rec == nil {
		return
	}
	op := instrument.Op{
		Model:    slug,
		Action:   action,
		RecordID: id,
		Took:     time.Since(start),
		At:       start,
	}
	if spec != nil {
		op.Changed = changedKeys(spec)
	}
	if err != nil {
		op.Err = err.Error()
	}
	e.rec.Record(op)
}

// Ops returns the most recent recorded operations, newest first.
func (e *Engine) Ops(n int) []instrument.Op {
	return e.rec.Recent(n)
}

// changedKeys lists the field slugs a spec touches, dropping transient
// markers.
func changedKeys(spec Content) []string {
	trimmed := make(Content, len(spec))
	for k, v := range spec {
		if k == ParentKey {
			continue
		}
		trimmed[k] = v
	}
	return sortedContentKeys(trimmed)
}
