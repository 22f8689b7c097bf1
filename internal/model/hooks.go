package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/leontalbot/caribou/internal/store"
)

// Timing names a point in a write pipeline where hooks run.
type Timing string

const (
	BeforeCreate  Timing = "before_create"
	AfterCreate   Timing = "after_create"
	BeforeUpdate  Timing = "before_update"
	AfterUpdate   Timing = "after_update"
	BeforeSave    Timing = "before_save"
	AfterSave     Timing = "after_save"
	BeforeDestroy Timing = "before_destroy"
	AfterDestroy  Timing = "after_destroy"
)

var timings = []Timing{
	BeforeCreate, AfterCreate,
	BeforeUpdate, AfterUpdate,
	BeforeSave, AfterSave,
	BeforeDestroy, AfterDestroy,
}

// Env is the state a write pipeline threads through its hooks. Hooks may
// replace any part of it; whatever they return is what the pipeline keeps
// working with.
type Env struct {
	// Model is the descriptor the operation runs against.
	Model *Model
	// Spec is the caller's payload, untouched.
	Spec Content
	// Values is the folded DML value map, present during before hooks.
	Values Content
	// Content is the written row merged over the spec, present during
	// after hooks (and from the start on destroy).
	Content Content
	// Original is the pre-write row on update and nothing otherwise.
	Original Content
	// Tx is the transaction the operation runs inside. Hooks that touch
	// the database must go through it.
	Tx store.Querier
}

// HookFunc transforms the pipeline environment at one timing.
type HookFunc func(ctx context.Context, env *Env) (*Env, error)

type hookEntry struct {
	id string
	fn HookFunc
}

// hookTable holds ordered hook chains per (model slug, timing). Re-adding an
// id replaces the function but keeps its place in the chain.
type hookTable struct {
	mu     sync.RWMutex
	chains map[string]map[Timing][]hookEntry
}

func newHookTable() *hookTable {
	return &hookTable{chains: map[string]map[Timing][]hookEntry{}}
}

// provision makes sure every timing has a chain for the slug. Idempotent;
// existing chains are left alone.
func (t *hookTable) provision(slug string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byTiming, ok := t.chains[slug]
	if !ok {
		byTiming = map[Timing][]hookEntry{}
		t.chains[slug] = byTiming
	}
	for _, timing := range timings {
		if _, ok := byTiming[timing]; !ok {
			byTiming[timing] = []hookEntry{}
		}
	}
}

func (t *hookTable) add(slug string, timing Timing, id string, fn HookFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byTiming, ok := t.chains[slug]
	if !ok {
		byTiming = map[Timing][]hookEntry{}
		t.chains[slug] = byTiming
	}
	chain := byTiming[timing]
	for i := range chain {
		if chain[i].id == id {
			chain[i].fn = fn
			return
		}
	}
	byTiming[timing] = append(chain, hookEntry{id: id, fn: fn})
}

// run folds env through the chain registered for (slug, timing). An unknown
// slug or timing is a no-op. A hook error aborts the fold.
func (t *hookTable) run(ctx context.Context, slug string, timing Timing, env *Env) (*Env, error) {
	t.mu.RLock()
	var chain []hookEntry
	if byTiming, ok := t.chains[slug]; ok {
		chain = append(chain, byTiming[timing]...)
	}
	t.mu.RUnlock()

	for _, entry := range chain {
		next, err := entry.fn(ctx, env)
		if err != nil {
			return env, fmt.Errorf("hook %s %s/%s: %w", slug, timing, entry.id, err)
		}
		if next != nil {
			env = next
		}
	}
	return env, nil
}
