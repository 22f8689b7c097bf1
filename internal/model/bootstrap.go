package model

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/leontalbot/caribou/internal/store"
)

// Init makes the engine usable: if the meta tables are absent it installs
// them and seeds the two meta models, then loads the registry. Safe to call
// on an already-initialized database.
func (e *Engine) Init(ctx context.Context) error {
	lock := e.lockFor("model")
	lock.Lock()
	defer lock.Unlock()

	exists, err := e.store.TableExists(ctx, e.store.DB, "model")
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	if !exists {
		if _, err := e.transact(ctx, func(tx store.Querier) (Content, error) {
			return nil, e.installSchema(ctx, tx)
		}); err != nil {
			return fmt.Errorf("init: %w", err)
		}
		e.log.Info("meta schema installed")
	}
	return e.invokeModelsIn(ctx, e.store.DB)
}

// baseFieldSpecs lists the fields every engine-created model carries, in the
// shape create(:model) accepts for spec.fields.
func baseFieldSpecs() []Content {
	return []Content{
		{"name": "id", "type": "id", "locked": true, "immutable": true, "editable": false},
		{"name": "position", "type": "integer", "locked": true, "editable": false},
		{"name": "status", "type": "integer", "locked": true, "editable": false},
		{"name": "locale_id", "type": "integer", "locked": true, "editable": false},
		{"name": "env_id", "type": "integer", "locked": true, "editable": false},
		{"name": "locked", "type": "boolean", "locked": true, "editable": false},
		{"name": "created_at", "type": "timestamp", "locked": true, "immutable": true, "editable": false},
		{"name": "updated_at", "type": "timestamp", "locked": true, "editable": false},
	}
}

// metaModelRows seeds the model table with the two models the engine is made
// of.
func metaModelRows() []Content {
	return []Content{
		{"name": "model", "slug": "model", "description": "the model of models", "locked": true, "nested": false},
		{"name": "field", "slug": "field", "description": "the model of fields", "locked": true, "nested": false},
	}
}

// metaFields lists the seeded field rows for one meta model, in creation
// order. Reciprocal link ids are wired afterwards because the pair is a
// cycle.
func metaFields(owner string) []Content {
	switch owner {
	case "model":
		return append(baseFieldSpecs(),
			Content{"name": "name", "type": "string", "editable": true},
			Content{"name": "slug", "type": "slug", "editable": true},
			Content{"name": "description", "type": "text", "editable": true},
			Content{"name": "nested", "type": "boolean", "editable": true},
			Content{"name": "fields", "type": "collection", "target": "field", "dependent": true, "locked": true},
		)
	case "field":
		return append(baseFieldSpecs(),
			Content{"name": "name", "type": "string", "editable": true},
			Content{"name": "slug", "type": "slug", "editable": true},
			Content{"name": "type", "type": "string", "immutable": true, "editable": true},
			Content{"name": "description", "type": "text", "editable": true},
			Content{"name": "target_id", "type": "integer", "editable": true},
			Content{"name": "link_id", "type": "integer", "locked": true, "editable": false},
			Content{"name": "dependent", "type": "boolean", "editable": true},
			Content{"name": "editable", "type": "boolean", "editable": true},
			Content{"name": "immutable", "type": "boolean", "editable": true},
			Content{"name": "default_value", "type": "string", "editable": true},
			Content{"name": "model", "type": "part", "target": "model", "locked": true, "editable": false},
			Content{"name": "model_id", "type": "integer", "locked": true, "editable": false},
			Content{"name": "model_position", "type": "integer", "locked": true, "editable": false},
		)
	}
	return nil
}

// metaLinks wires the slug fields to the names they shadow and the
// fields↔model reciprocal pair to each other, keyed "owner.slug".
func metaLinks() [][2]string {
	return [][2]string{
		{"model.slug", "model.name"},
		{"model.fields", "field.model"},
		{"field.slug", "field.name"},
		{"field.model", "model.fields"},
	}
}

// columnsForSpecs folds the field-kind protocol over field specs to obtain
// the physical columns a table needs for them.
func columnsForSpecs(specs []Content) ([]store.ColumnSpec, error) {
	var cols []store.ColumnSpec
	for _, spec := range specs {
		name := asString(spec["name"])
		slug := Slugify(name)
		row := FieldRow{
			Name:         name,
			Slug:         slug,
			Type:         asString(spec["type"]),
			DefaultValue: asString(spec["default_value"]),
		}
		f, err := NewField(row, nil)
		if err != nil {
			return nil, err
		}
		cols = append(cols, f.TableAdditions(slug)...)
	}
	return cols, nil
}

func baseColumns() ([]store.ColumnSpec, error) {
	return columnsForSpecs(baseFieldSpecs())
}

// installSchema creates the model and field tables and seeds the meta rows
// describing them, all through the raw store: the hooks that normally react
// to schema writes do not exist until these rows do.
func (e *Engine) installSchema(ctx context.Context, tx store.Querier) error {
	for _, slug := range []string{"model", "field"} {
		cols, err := columnsForSpecs(metaFields(slug))
		if err != nil {
			return fmt.Errorf("meta columns for %s: %w", slug, err)
		}
		if err := e.store.CreateTable(ctx, tx, slug, cols...); err != nil {
			return fmt.Errorf("create meta table %s: %w", slug, err)
		}
	}

	modelIDs := make(map[string]int64, 2)
	for i, row := range metaModelRows() {
		row["position"] = int64(i + 1)
		inserted, err := e.store.Insert(ctx, tx, "model", row)
		if err != nil {
			return fmt.Errorf("seed model row: %w", err)
		}
		id, _ := asInt64(inserted["id"])
		modelIDs[asString(row["slug"])] = id
	}

	fieldIDs := make(map[string]int64)
	for _, owner := range []string{"model", "field"} {
		for i, spec := range metaFields(owner) {
			slug := Slugify(asString(spec["name"]))
			values := Content{
				"name":     spec["name"],
				"slug":     slug,
				"type":     spec["type"],
				"model_id": modelIDs[owner],
				"position": int64(i + 1),
			}
			for _, k := range []string{"locked", "editable", "immutable", "dependent", "default_value", "description"} {
				if v, ok := spec[k]; ok {
					values[k] = v
				}
			}
			if target := asString(spec["target"]); target != "" {
				values["target_id"] = modelIDs[target]
			}
			inserted, err := e.store.Insert(ctx, tx, "field", values)
			if err != nil {
				return fmt.Errorf("seed field %s.%s: %w", owner, slug, err)
			}
			id, _ := asInt64(inserted["id"])
			fieldIDs[owner+"."+slug] = id
		}
	}

	for _, pair := range metaLinks() {
		from, to := fieldIDs[pair[0]], fieldIDs[pair[1]]
		if from == 0 || to == 0 {
			return fmt.Errorf("meta link %s -> %s unresolved", pair[0], pair[1])
		}
		if _, err := e.store.Update(ctx, tx, "field", Content{"link_id": to}, "id = %1", from); err != nil {
			return fmt.Errorf("wire meta link %s: %w", pair[0], err)
		}
	}
	return nil
}

// installMetaHooks registers the lifecycle hooks that give writes against
// the two meta models their schema side effects. Idempotent: re-adding an
// id replaces in place.
func (e *Engine) installMetaHooks() {
	e.hooks.provision("model")
	e.hooks.provision("field")

	e.hooks.add("model", BeforeCreate, "build_table", e.modelBuildTable)
	e.hooks.add("model", BeforeCreate, "add_base_fields", e.modelAddBaseFields)
	e.hooks.add("model", AfterCreate, "invoke", e.modelInvoke)
	e.hooks.add("model", AfterUpdate, "rename", e.modelRename)
	e.hooks.add("model", AfterSave, "invoke_all", e.modelInvokeAll)
	e.hooks.add("model", AfterDestroy, "cleanup", e.modelCleanup)

	e.hooks.add("field", BeforeSave, "check_link_slug", e.fieldCheckLinkSlug)
	e.hooks.add("field", AfterCreate, "add_columns", e.fieldAddColumns)
	e.hooks.add("field", AfterUpdate, "reify_field", e.fieldReify)
	e.hooks.add("field", AfterSave, "invoke_owner", e.fieldInvokeOwner)
	e.hooks.add("field", AfterDestroy, "drop_columns", e.fieldDropColumns)
	e.hooks.add("field", AfterDestroy, "invoke_owner", e.fieldInvokeOwner)
}

// modelBuildTable creates the physical table for a nascent model, carrying
// the base columns. The declared fields add theirs once their rows exist.
func (e *Engine) modelBuildTable(ctx context.Context, env *Env) (*Env, error) {
	slug := asString(env.Values["slug"])
	if slug == "" {
		return nil, fmt.Errorf("create model: no slug derived, name or slug required")
	}
	cols, err := baseColumns()
	if err != nil {
		return nil, err
	}
	if err := e.store.CreateTable(ctx, env.Tx, slug, cols...); err != nil {
		return nil, err
	}
	e.log.Info("table created", zap.String("table", slug))
	return env, nil
}

// modelAddBaseFields appends the base field specs to the nascent model's
// declared fields so the collection write persists their rows.
func (e *Engine) modelAddBaseFields(ctx context.Context, env *Env) (*Env, error) {
	declared, _ := asContentSlice(env.Spec["fields"])
	env.Spec["fields"] = append(declared, baseFieldSpecs()...)
	return env, nil
}

// modelInvoke registers the freshly inserted model. A nested model also gets
// its parent_id field here, before the declared fields are written.
func (e *Engine) modelInvoke(ctx context.Context, env *Env) (*Env, error) {
	id, _ := asInt64(env.Content["id"])
	if nested, _ := asBool(env.Content["nested"]); nested {
		_, err := e.createIn(ctx, env.Tx, "field", Content{
			"name":     "parent_id",
			"type":     "integer",
			"model_id": id,
			"locked":   true,
			"editable": false,
		})
		if err != nil {
			return nil, fmt.Errorf("nested model %d: %w", id, err)
		}
	}
	if _, err := e.alterModelsIn(ctx, env.Tx, id); err != nil {
		return nil, err
	}
	e.log.Info("model created",
		zap.Int64("id", id), zap.String("slug", asString(env.Content["slug"])))
	return env, nil
}

// modelRename follows a slug change with the physical table rename, then
// refreshes the descriptor under both old and new slug.
func (e *Engine) modelRename(ctx context.Context, env *Env) (*Env, error) {
	oldSlug := asString(env.Original["slug"])
	newSlug := asString(env.Content["slug"])
	id, _ := asInt64(env.Content["id"])

	if oldSlug != "" && newSlug != "" && oldSlug != newSlug {
		if err := e.store.RenameTable(ctx, env.Tx, oldSlug, newSlug); err != nil {
			return nil, err
		}
		e.log.Info("table renamed", zap.String("from", oldSlug), zap.String("to", newSlug))
	}

	row, err := e.store.Choose(ctx, env.Tx, "model", id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return env, nil
	}
	m, err := e.invokeModelIn(ctx, env.Tx, row)
	if err != nil {
		return nil, err
	}
	e.hooks.provision(m.Slug)
	e.registry.Rename(oldSlug, m)
	return env, nil
}

// modelInvokeAll reloads the whole registry after any model save.
func (e *Engine) modelInvokeAll(ctx context.Context, env *Env) (*Env, error) {
	if err := e.invokeModelsIn(ctx, env.Tx); err != nil {
		return nil, err
	}
	return env, nil
}

// modelCleanup drops a destroyed model's table and reloads, which also
// evicts the model from the registry.
func (e *Engine) modelCleanup(ctx context.Context, env *Env) (*Env, error) {
	slug := asString(env.Content["slug"])
	if slug != "" {
		if err := e.store.DropTable(ctx, env.Tx, slug); err != nil {
			return nil, err
		}
		e.log.Info("table dropped", zap.String("table", slug))
	}
	if err := e.invokeModelsIn(ctx, env.Tx); err != nil {
		return nil, err
	}
	return env, nil
}

// fieldCheckLinkSlug resolves a transient link_slug in the spec to the id of
// the sibling field it names, carried in values.link_id. An unresolvable
// link_slug is dropped with a warning; link derivation is a convenience, not
// a constraint.
func (e *Engine) fieldCheckLinkSlug(ctx context.Context, env *Env) (*Env, error) {
	linkSlug := asString(env.Spec["link_slug"])
	if linkSlug == "" {
		return env, nil
	}
	modelID, ok := asInt64(env.Values["model_id"])
	if !ok || modelID == 0 {
		modelID, _ = asInt64(env.Spec["model_id"])
	}
	if modelID == 0 {
		return env, nil
	}
	siblings, err := e.store.Fetch(ctx, env.Tx, "field", "model_id = %1 AND slug = %2", modelID, linkSlug)
	if err != nil {
		return nil, err
	}
	if len(siblings) == 0 {
		e.log.Warn("link_slug does not resolve",
			zap.String("link_slug", linkSlug), zap.Int64("model_id", modelID))
		return env, nil
	}
	linkID, _ := asInt64(siblings[0]["id"])
	env.Values["link_id"] = linkID
	return env, nil
}

// fieldAddColumns gives a freshly inserted field its physical presence:
// the columns it contributes to the owning table, then whatever reciprocal
// structure its kind sets up. Columns already present are left alone so the
// hook tolerates pre-built tables.
func (e *Engine) fieldAddColumns(ctx context.Context, env *Env) (*Env, error) {
	fr := FieldRowFrom(env.Content)
	link, err := e.linkRowIn(ctx, env.Tx, fr.LinkID)
	if err != nil {
		return nil, err
	}
	f, err := NewField(fr, link)
	if err != nil {
		return nil, fmt.Errorf("create field %s: %w", fr.Slug, err)
	}
	owner, err := e.modelByIDIn(ctx, env.Tx, fr.ModelID)
	if err != nil {
		return nil, fmt.Errorf("create field %s: %w", fr.Slug, err)
	}

	for _, col := range f.TableAdditions(fr.Slug) {
		has, err := e.store.HasColumn(ctx, env.Tx, owner.Slug, col.Name)
		if err != nil {
			return nil, err
		}
		if has {
			continue
		}
		if err := e.store.AddColumn(ctx, env.Tx, owner.Slug, col); err != nil {
			return nil, err
		}
	}

	if err := f.Setup(ctx, e, env.Tx); err != nil {
		return nil, err
	}
	return env, nil
}

// fieldReify follows a field rename: its own columns move with it and any
// synthesized subfields are renamed through the engine, which in turn moves
// their columns.
func (e *Engine) fieldReify(ctx context.Context, env *Env) (*Env, error) {
	old := FieldRowFrom(env.Original)
	neu := FieldRowFrom(env.Content)
	if old.Slug == "" || neu.Slug == "" || old.Slug == neu.Slug {
		return env, nil
	}

	link, err := e.linkRowIn(ctx, env.Tx, neu.LinkID)
	if err != nil {
		return nil, err
	}
	f, err := NewField(neu, link)
	if err != nil {
		return nil, err
	}
	owner, err := e.modelByIDIn(ctx, env.Tx, neu.ModelID)
	if err != nil {
		return nil, err
	}

	oldCols := f.TableAdditions(old.Slug)
	newCols := f.TableAdditions(neu.Slug)
	for i := range oldCols {
		if i >= len(newCols) || oldCols[i].Name == newCols[i].Name {
			continue
		}
		if err := e.store.RenameColumn(ctx, env.Tx, owner.Slug, oldCols[i].Name, newCols[i].Name); err != nil {
			return nil, err
		}
	}

	oldSubs := f.SubfieldNames(old.Slug)
	newSubs := f.SubfieldNames(neu.Slug)
	for i := range oldSubs {
		if i >= len(newSubs) || oldSubs[i] == newSubs[i] {
			continue
		}
		rows, err := e.store.Fetch(ctx, env.Tx, "field", "model_id = %1 AND slug = %2", neu.ModelID, oldSubs[i])
		if err != nil {
			return nil, err
		}
		for _, sub := range rows {
			subID, _ := asInt64(sub["id"])
			if _, err := e.updateIn(ctx, env.Tx, "field", subID, Content{"name": newSubs[i]}); err != nil {
				return nil, err
			}
		}
	}
	return env, nil
}

// fieldDropColumns tears down a destroyed field's reciprocal structure and
// columns. Teardown is best-effort: cleanup failures are logged and the
// remaining steps still run. The primary key column is never dropped on its
// own; it goes down with the table.
func (e *Engine) fieldDropColumns(ctx context.Context, env *Env) (*Env, error) {
	fr := FieldRowFrom(env.Content)
	link, err := e.linkRowIn(ctx, env.Tx, fr.LinkID)
	if err != nil {
		return nil, err
	}
	f, err := NewField(fr, link)
	if err != nil {
		e.log.Warn("destroyed field has unknown kind, columns kept",
			zap.String("slug", fr.Slug), zap.Error(err))
		return env, nil
	}

	if err := f.Cleanup(ctx, e, env.Tx); err != nil {
		e.log.Warn("field cleanup failed",
			zap.String("slug", fr.Slug), zap.Error(err))
	}

	if fr.Type == "id" {
		return env, nil
	}
	owner, err := e.modelByIDIn(ctx, env.Tx, fr.ModelID)
	if err != nil {
		return env, nil
	}
	for _, col := range f.TableAdditions(fr.Slug) {
		has, err := e.store.HasColumn(ctx, env.Tx, owner.Slug, col.Name)
		if err != nil {
			return nil, err
		}
		if !has {
			continue
		}
		if err := e.store.DropColumn(ctx, env.Tx, owner.Slug, col.Name); err != nil {
			return nil, err
		}
	}
	return env, nil
}

// fieldInvokeOwner refreshes the owning model's descriptor after any field
// write or destruction, so standalone field mutations are visible without a
// model save.
func (e *Engine) fieldInvokeOwner(ctx context.Context, env *Env) (*Env, error) {
	fr := FieldRowFrom(env.Content)
	if fr.ModelID == 0 {
		return env, nil
	}
	row, err := e.store.Choose(ctx, env.Tx, "model", fr.ModelID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return env, nil
	}
	m, err := e.invokeModelIn(ctx, env.Tx, row)
	if err != nil {
		return nil, err
	}
	e.hooks.provision(m.Slug)
	e.registry.Merge(m)
	return env, nil
}

// modelByIDIn resolves a model by id through the registry, falling back to a
// direct read for models inserted earlier in the same transaction.
func (e *Engine) modelByIDIn(ctx context.Context, q store.Querier, id int64) (*Model, error) {
	if m, ok := e.registry.Lookup(id); ok {
		return m, nil
	}
	row, err := e.store.Choose(ctx, q, "model", id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("%w: id %d", ErrModelMissing, id)
	}
	return e.invokeModelIn(ctx, q, row)
}

// linkRowIn fetches a field's reciprocal peer row, tolerating its absence.
func (e *Engine) linkRowIn(ctx context.Context, q store.Querier, linkID int64) (*FieldRow, error) {
	if linkID == 0 {
		return nil, nil
	}
	row, err := e.store.Choose(ctx, q, "field", linkID)
	if err != nil || row == nil {
		return nil, err
	}
	fr := FieldRowFrom(row)
	return &fr, nil
}
