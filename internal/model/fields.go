package model

import (
	"context"
	"fmt"
	"time"

	"github.com/leontalbot/caribou/internal/store"
)

// Field is the behavior of one field kind bound to one field row. Every
// write, read, schema and teardown path a field can participate in goes
// through this contract; the engine never switches on field types itself.
type Field interface {
	// Row is the persisted descriptor this instance was built from.
	Row() *FieldRow
	// Link is the reciprocal peer's descriptor, when one is configured.
	Link() *FieldRow

	// TableAdditions lists the columns this field contributes to its
	// model's table, in abstract column types the dialect maps to DDL.
	TableAdditions(slug string) []store.ColumnSpec
	// SubfieldNames lists companion fields this field synthesizes on its
	// own model, derived from the given slug.
	SubfieldNames(slug string) []string

	// Setup provisions whatever the field needs beyond its own row:
	// subfield rows, reciprocal peers. It must be idempotent.
	Setup(ctx context.Context, e *Engine, tx store.Querier) error
	// Cleanup tears down what Setup provisioned. Also idempotent.
	Cleanup(ctx context.Context, e *Engine, tx store.Querier) error

	// TargetFor resolves the model this field points at, for relation
	// kinds. Scalar kinds return nil.
	TargetFor(e *Engine) (*Model, error)

	// UpdateValues folds this field's contribution to a DML value map.
	// It always returns the accumulator, updated or not.
	UpdateValues(content, values Content) Content

	// PostUpdate runs after the owning row is written, for side writes
	// such as persisting nested children. It returns the content map,
	// possibly enriched.
	PostUpdate(ctx context.Context, e *Engine, tx store.Querier, content Content) (Content, error)

	// PreDestroy runs before the owning row is deleted, for cascades.
	PreDestroy(ctx context.Context, e *Engine, tx store.Querier, content Content) (Content, error)

	// FieldFrom produces this field's read value for the given row.
	// Relation kinds consult opts.Include to decide whether to expand.
	FieldFrom(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error)

	// Render produces the display value, a presentation-flavored FieldFrom.
	Render(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error)
}

// NewField builds the kind instance for a field row. The kind set is closed:
// an unknown type is an error, not a fallback.
func NewField(row FieldRow, link *FieldRow) (Field, error) {
	b := base{row: row, link: link}
	switch row.Type {
	case "id":
		return &idField{b}, nil
	case "integer":
		return &integerField{b}, nil
	case "string":
		return &stringField{b}, nil
	case "slug":
		return &slugField{b}, nil
	case "text":
		return &textField{b}, nil
	case "boolean":
		return &booleanField{b}, nil
	case "timestamp":
		return &timestampField{b}, nil
	case "image":
		return &imageField{b}, nil
	case "collection":
		return &collectionField{b}, nil
	case "part":
		return &partField{b}, nil
	case "link":
		return &linkField{b}, nil
	default:
		return nil, fmt.Errorf("unknown field type %q for field %q", row.Type, row.Slug)
	}
}

// base carries the row and supplies the do-nothing defaults most kinds keep.
type base struct {
	row  FieldRow
	link *FieldRow
}

func (b *base) Row() *FieldRow  { return &b.row }
func (b *base) Link() *FieldRow { return b.link }

func (b *base) TableAdditions(string) []store.ColumnSpec { return nil }
func (b *base) SubfieldNames(string) []string            { return nil }

func (b *base) Setup(context.Context, *Engine, store.Querier) error   { return nil }
func (b *base) Cleanup(context.Context, *Engine, store.Querier) error { return nil }

func (b *base) TargetFor(*Engine) (*Model, error) { return nil, nil }

func (b *base) UpdateValues(content, values Content) Content { return values }

func (b *base) PostUpdate(ctx context.Context, e *Engine, tx store.Querier, content Content) (Content, error) {
	return content, nil
}

func (b *base) PreDestroy(ctx context.Context, e *Engine, tx store.Querier, content Content) (Content, error) {
	return content, nil
}

func (b *base) FieldFrom(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error) {
	return content[b.row.Slug], nil
}

func (b *base) Render(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error) {
	return content[b.row.Slug], nil
}

// idField is the primary key column.
type idField struct{ base }

func (f *idField) TableAdditions(slug string) []store.ColumnSpec {
	return []store.ColumnSpec{{Name: slug, Type: "id"}}
}

func (f *idField) UpdateValues(content, values Content) Content {
	if v, ok := content[f.row.Slug]; ok {
		if n, ok := asInt64(v); ok {
			values[f.row.Slug] = n
		}
	}
	return values
}

// integerField coerces incoming values and silently drops what will not
// parse, so one bad value never poisons the rest of a write.
type integerField struct{ base }

func (f *integerField) TableAdditions(slug string) []store.ColumnSpec {
	return []store.ColumnSpec{{Name: slug, Type: "integer", Default: f.row.DefaultValue}}
}

func (f *integerField) UpdateValues(content, values Content) Content {
	if v, ok := content[f.row.Slug]; ok {
		if n, ok := asInt64(v); ok {
			values[f.row.Slug] = n
		}
	}
	return values
}

type stringField struct{ base }

func (f *stringField) TableAdditions(slug string) []store.ColumnSpec {
	return []store.ColumnSpec{{Name: slug, Type: "string", Default: f.row.DefaultValue}}
}

func (f *stringField) UpdateValues(content, values Content) Content {
	if v, ok := content[f.row.Slug]; ok {
		values[f.row.Slug] = v
	}
	return values
}

type textField struct{ base }

func (f *textField) TableAdditions(slug string) []store.ColumnSpec {
	return []store.ColumnSpec{{Name: slug, Type: "text", Default: f.row.DefaultValue}}
}

func (f *textField) UpdateValues(content, values Content) Content {
	if v, ok := content[f.row.Slug]; ok {
		values[f.row.Slug] = v
	}
	return values
}

type booleanField struct{ base }

func (f *booleanField) TableAdditions(slug string) []store.ColumnSpec {
	return []store.ColumnSpec{{Name: slug, Type: "boolean", Default: f.row.DefaultValue}}
}

func (f *booleanField) UpdateValues(content, values Content) Content {
	if v, ok := content[f.row.Slug]; ok {
		if b, ok := asBool(v); ok {
			values[f.row.Slug] = b
		}
	}
	return values
}

// FieldFrom coerces driver representations (sqlite hands back 0/1 integers)
// into real booleans.
func (f *booleanField) FieldFrom(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error) {
	v, ok := content[f.row.Slug]
	if !ok || v == nil {
		return nil, nil
	}
	if b, ok := asBool(v); ok {
		return b, nil
	}
	return v, nil
}

func (f *booleanField) Render(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error) {
	return f.FieldFrom(ctx, e, q, content, opts)
}

type timestampField struct{ base }

func (f *timestampField) TableAdditions(slug string) []store.ColumnSpec {
	return []store.ColumnSpec{{Name: slug, Type: "timestamp"}}
}

// UpdateValues stamps updated_at on every write through the store's now
// sentinel, rendered as the database's own clock at DML time. Other
// timestamp fields pass explicit values through.
func (f *timestampField) UpdateValues(content, values Content) Content {
	if f.row.Slug == "updated_at" {
		values[f.row.Slug] = store.Now
		return values
	}
	if v, ok := content[f.row.Slug]; ok {
		if t, ok := asTime(v); ok {
			values[f.row.Slug] = t
		} else {
			values[f.row.Slug] = v
		}
	}
	return values
}

func (f *timestampField) FieldFrom(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error) {
	v, ok := content[f.row.Slug]
	if !ok || v == nil {
		return nil, nil
	}
	if t, ok := asTime(v); ok {
		return t, nil
	}
	return v, nil
}

func (f *timestampField) Render(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error) {
	v, err := f.FieldFrom(ctx, e, q, content, opts)
	if err != nil || v == nil {
		return nil, err
	}
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339), nil
	}
	return v, nil
}

// imageField is a reserved kind: it claims an id subfield for the eventual
// asset reference but stores nothing itself yet.
type imageField struct{ base }

func (f *imageField) SubfieldNames(slug string) []string {
	return []string{slug + "_id"}
}

func (f *imageField) Setup(ctx context.Context, e *Engine, tx store.Querier) error {
	return ensureSubfields(ctx, e, tx, &f.row, f.SubfieldNames(f.row.Slug))
}

func (f *imageField) Cleanup(ctx context.Context, e *Engine, tx store.Querier) error {
	return destroySubfields(ctx, e, tx, &f.row, f.SubfieldNames(f.row.Slug))
}

func (f *imageField) FieldFrom(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error) {
	return nil, nil
}

func (f *imageField) Render(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error) {
	return nil, nil
}

// linkField is reserved for many-to-many joins. It contributes nothing to
// reads or writes yet; the type exists so rows carrying it still load.
type linkField struct{ base }

func (f *linkField) FieldFrom(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error) {
	return nil, nil
}

func (f *linkField) Render(ctx context.Context, e *Engine, q store.Querier, content Content, opts Opts) (any, error) {
	return nil, nil
}
