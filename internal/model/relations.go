package model

import (
	"context"
	"fmt"

	"github.com/leontalbot/caribou/internal/store"
)

// resolveLink materializes the reciprocal peer's row on demand. Instances
// built before their peer existed heal themselves here.
func (b *base) resolveLink(ctx context.Context, e *Engine, q store.Querier) (*FieldRow, error) {
	if b.link != nil {
		return b.link, nil
	}
	if b.row.LinkID == 0 {
		return nil, nil
	}
	row, err := e.store.Choose(ctx, q, "field", b.row.LinkID)
	if err != nil || row == nil {
		return nil, err
	}
	fr := FieldRowFrom(row)
	b.link = &fr
	return b.link, nil
}

// ensureSubfields creates the synthesized companion fields for a relation,
// skipping any that already exist so setup can run repeatedly.
func ensureSubfields(ctx context.Context, e *Engine, tx store.Querier, row *FieldRow, names []string) error {
	for _, name := range names {
		existing, err := e.store.Fetch(ctx, tx, "field", "model_id = %1 AND slug = %2", row.ModelID, name)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			continue
		}
		_, err = e.createIn(ctx, tx, "field", Content{
			"name":     name,
			"type":     "integer",
			"model_id": row.ModelID,
			"locked":   true,
			"editable": false,
		})
		if err != nil {
			return fmt.Errorf("subfield %s: %w", name, err)
		}
	}
	return nil
}

// destroySubfields removes the synthesized companions, tolerating ones
// already gone.
func destroySubfields(ctx context.Context, e *Engine, tx store.Querier, row *FieldRow, names []string) error {
	for _, name := range names {
		existing, err := e.store.Fetch(ctx, tx, "field", "model_id = %1 AND slug = %2", row.ModelID, name)
		if err != nil {
			return err
		}
		for _, sub := range existing {
			id, _ := asInt64(sub["id"])
			if _, err := e.destroyIn(ctx, tx, "field", id); err != nil {
				return fmt.Errorf("subfield %s: %w", name, err)
			}
		}
	}
	return nil
}

// collectionField holds many child rows of a target model. The reciprocal
// part on the target carries the actual foreign key; the collection is the
// one-side view of it.
type collectionField struct{ base }

func (f *collectionField) TargetFor(e *Engine) (*Model, error) {
	return e.modelByID(f.row.TargetID)
}

// Setup provisions the reciprocal part on the target model, named after the
// owning model, and cross-links the two rows. A collection whose link
// already resolves is left alone.
func (f *collectionField) Setup(ctx context.Context, e *Engine, tx store.Querier) error {
	link, err := f.resolveLink(ctx, e, tx)
	if err != nil {
		return fmt.Errorf("%w: collection %q: %w", ErrReciprocalSetup, f.row.Slug, err)
	}
	if link != nil {
		return nil
	}
	target, err := f.TargetFor(e)
	if err != nil {
		return fmt.Errorf("%w: collection %q: %w", ErrReciprocalSetup, f.row.Slug, err)
	}
	owner, err := e.modelByID(f.row.ModelID)
	if err != nil {
		return fmt.Errorf("%w: collection %q: %w", ErrReciprocalSetup, f.row.Slug, err)
	}
	part, err := e.createIn(ctx, tx, "field", Content{
		"name":      owner.Name,
		"type":      "part",
		"model_id":  target.ID,
		"target_id": owner.ID,
		"link_id":   f.row.ID,
		"locked":    true,
		"editable":  false,
		"dependent": f.row.Dependent,
	})
	if err != nil {
		return fmt.Errorf("%w: collection %q: %w", ErrReciprocalSetup, f.row.Slug, err)
	}
	partID, _ := asInt64(part["id"])
	if _, err := e.updateIn(ctx, tx, "field", f.row.ID, Content{"link_id": partID}); err != nil {
		return fmt.Errorf("%w: collection %q: %w", ErrReciprocalSetup, f.row.Slug, err)
	}
	f.row.LinkID = partID
	fr := FieldRowFrom(part)
	f.link = &fr
	return nil
}

// Cleanup removes the reciprocal part if it still exists. When the part is
// the side being destroyed its row is already gone by the time this runs,
// which is what stops the two teardowns from chasing each other.
func (f *collectionField) Cleanup(ctx context.Context, e *Engine, tx store.Querier) error {
	link, err := f.resolveLink(ctx, e, tx)
	if err != nil || link == nil {
		return err
	}
	row, err := e.store.Choose(ctx, tx, "field", link.ID)
	if err != nil || row == nil {
		return err
	}
	_, err = e.destroyIn(ctx, tx, "field", link.ID)
	return err
}

// PostUpdate persists nested child maps carried under the collection's slug.
// Each child is stamped with the foreign key to the parent and written
// through the full create pipeline, so child hooks and upserts apply.
func (f *collectionField) PostUpdate(ctx context.Context, e *Engine, tx store.Querier, content Content) (Content, error) {
	children, ok := asContentSlice(content[f.row.Slug])
	if !ok {
		return content, nil
	}
	link, err := f.resolveLink(ctx, e, tx)
	if err != nil {
		return content, err
	}
	if link == nil {
		return content, fmt.Errorf("%w: collection %q has no reciprocal", ErrReciprocalSetup, f.row.Slug)
	}
	target, err := f.TargetFor(e)
	if err != nil {
		return content, err
	}
	out := make([]Content, 0, len(children))
	for _, child := range children {
		spec := copyContent(child)
		spec[link.Slug+"_id"] = content["id"]
		spec[ParentKey] = content
		persisted, err := e.createIn(ctx, tx, target.Slug, spec)
		if err != nil {
			return content, err
		}
		persisted = copyContent(persisted)
		delete(persisted, ParentKey)
		out = append(out, persisted)
	}
	content[f.row.Slug] = out
	return content, nil
}

// PreDestroy cascades into the children when either side of the pair is
// marked dependent.
func (f *collectionField) PreDestroy(ctx context.Context, e *Engine, tx store.Querier, content Content) (Content, error) {
	link, err := f.resolveLink(ctx, e, tx)
	if err != nil {
		return content, err
	}
	dependent := f.row.Dependent
	if !dependent && link != nil {
		dependent = link.Dependent
	}
	if !dependent || link == nil {
		return content, nil
	}
	target, err := f.TargetFor(e)
	if err != nil {
		return content, err
	}
	rows, err := e.store.Fetch(ctx, tx, target.Slug, link.Slug+"_id = %1", content["id"])
	if err != nil {
		return content, err
	}
	for _, row := range rows {
		id, _ := asInt64(row["id"])
		if _, err := e.destroyIn(ctx, tx, target.Slug, id); err != nil {
			return content, err
		}
	}
	return content, nil
}

func (f *collectionField) FieldFrom(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error) {
	return f.expand(ctx, e, q, content, opts, e.fromIn)
}

func (f *collectionField) Render(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error) {
	return f.expand(ctx, e, q, content, opts, e.renderIn)
}

func (f *collectionField) expand(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts, project projectFunc) (any, error) {
	sub, ok := opts.Include[f.row.Slug]
	if !ok {
		return []Content{}, nil
	}
	link, err := f.resolveLink(ctx, e, q)
	if err != nil {
		return nil, err
	}
	if link == nil {
		return []Content{}, nil
	}
	target, err := f.TargetFor(e)
	if err != nil {
		return nil, err
	}
	rows, err := e.store.Fetch(ctx, q, target.Slug, link.Slug+"_id = %1", content["id"])
	if err != nil {
		return nil, err
	}
	out := make([]Content, 0, len(rows))
	for _, row := range rows {
		expanded, err := project(ctx, q, target, row, Opts{Include: sub})
		if err != nil {
			return nil, err
		}
		out = append(out, expanded)
	}
	return out, nil
}

// partField is the many-side of a collection pair. It contributes no column
// of its own; the synthesized <slug>_id and <slug>_position integer fields
// carry the storage.
type partField struct{ base }

func (f *partField) TargetFor(e *Engine) (*Model, error) {
	return e.modelByID(f.row.TargetID)
}

func (f *partField) SubfieldNames(slug string) []string {
	return []string{slug + "_id", slug + "_position"}
}

// Setup synthesizes the subfields and, for a part created on its own,
// provisions the reciprocal collection on the target.
func (f *partField) Setup(ctx context.Context, e *Engine, tx store.Querier) error {
	if err := ensureSubfields(ctx, e, tx, &f.row, f.SubfieldNames(f.row.Slug)); err != nil {
		return fmt.Errorf("%w: part %q: %w", ErrReciprocalSetup, f.row.Slug, err)
	}
	link, err := f.resolveLink(ctx, e, tx)
	if err != nil {
		return fmt.Errorf("%w: part %q: %w", ErrReciprocalSetup, f.row.Slug, err)
	}
	if link != nil {
		return nil
	}
	target, err := f.TargetFor(e)
	if err != nil {
		return fmt.Errorf("%w: part %q: %w", ErrReciprocalSetup, f.row.Slug, err)
	}
	owner, err := e.modelByID(f.row.ModelID)
	if err != nil {
		return fmt.Errorf("%w: part %q: %w", ErrReciprocalSetup, f.row.Slug, err)
	}
	collection, err := e.createIn(ctx, tx, "field", Content{
		"name":      owner.Name + "s",
		"type":      "collection",
		"model_id":  target.ID,
		"target_id": owner.ID,
		"link_id":   f.row.ID,
	})
	if err != nil {
		return fmt.Errorf("%w: part %q: %w", ErrReciprocalSetup, f.row.Slug, err)
	}
	collectionID, _ := asInt64(collection["id"])
	if _, err := e.updateIn(ctx, tx, "field", f.row.ID, Content{"link_id": collectionID}); err != nil {
		return fmt.Errorf("%w: part %q: %w", ErrReciprocalSetup, f.row.Slug, err)
	}
	f.row.LinkID = collectionID
	fr := FieldRowFrom(collection)
	f.link = &fr
	return nil
}

// Cleanup tears down the subfields and the reciprocal collection if it still
// exists.
func (f *partField) Cleanup(ctx context.Context, e *Engine, tx store.Querier) error {
	if err := destroySubfields(ctx, e, tx, &f.row, f.SubfieldNames(f.row.Slug)); err != nil {
		return err
	}
	link, err := f.resolveLink(ctx, e, tx)
	if err != nil || link == nil {
		return err
	}
	row, err := e.store.Choose(ctx, tx, "field", link.ID)
	if err != nil || row == nil {
		return err
	}
	_, err = e.destroyIn(ctx, tx, "field", link.ID)
	return err
}

func (f *partField) FieldFrom(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error) {
	return f.expand(ctx, e, q, content, opts, e.fromIn)
}

func (f *partField) Render(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error) {
	return f.expand(ctx, e, q, content, opts, e.renderIn)
}

func (f *partField) expand(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts, project projectFunc) (any, error) {
	sub, ok := opts.Include[f.row.Slug]
	if !ok {
		return nil, nil
	}
	id, ok := asInt64(content[f.row.Slug+"_id"])
	if !ok || id == 0 {
		return nil, nil
	}
	target, err := f.TargetFor(e)
	if err != nil {
		return nil, err
	}
	row, err := e.store.Choose(ctx, q, target.Slug, id)
	if err != nil || row == nil {
		return nil, err
	}
	return project(ctx, q, target, row, Opts{Include: sub})
}

// projectFunc abstracts over the two read projections so relation expansion
// is written once.
type projectFunc func(ctx context.Context, q store.Querier, m *Model, row Content, opts Opts) (Content, error)
