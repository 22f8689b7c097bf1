package model

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Content is a single row (or row-to-be) of a model, keyed by field slug.
// It is an alias, not a named type, so the maps coming out of the store flow
// through the engine without conversion.
type Content = map[string]any

// ParentKey carries the in-flight parent row on a child spec during nested
// writes. It never reaches the database: write paths only pick field slugs.
const ParentKey = "_parent"

// Include selects which relation fields to expand on read, keyed by field
// slug. A nested Include expands relations on the fetched children in turn.
type Include map[string]Include

// ParseInclude turns a comma list of dotted paths ("yellows,owner.tags")
// into an Include tree.
func ParseInclude(s string) Include {
	inc := Include{}
	for _, path := range strings.Split(s, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		node := inc
		for _, part := range strings.Split(path, ".") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			child, ok := node[part]
			if !ok || child == nil {
				child = Include{}
				node[part] = child
			}
			node = child
		}
	}
	return inc
}

// Opts tunes read operations. The zero value means: no includes, order by
// position ascending, first page of thirty rows.
type Opts struct {
	Include Include
	OrderBy string
	Order   string
	Limit   int
	Offset  int
}

// FieldRow is the persisted description of one field, as read from the
// field table.
type FieldRow struct {
	ID           int64
	Name         string
	Slug         string
	Type         string
	ModelID      int64
	TargetID     int64
	LinkID       int64
	Dependent    bool
	Editable     bool
	Immutable    bool
	Locked       bool
	DefaultValue string
	Position     int64
}

// FieldRowFrom builds a FieldRow out of a raw field-table row, coercing the
// loosely typed values the drivers hand back.
func FieldRowFrom(row Content) FieldRow {
	fr := FieldRow{
		Name:         asString(row["name"]),
		Slug:         asString(row["slug"]),
		Type:         asString(row["type"]),
		DefaultValue: asString(row["default_value"]),
	}
	fr.ID, _ = asInt64(row["id"])
	fr.ModelID, _ = asInt64(row["model_id"])
	fr.TargetID, _ = asInt64(row["target_id"])
	fr.LinkID, _ = asInt64(row["link_id"])
	fr.Position, _ = asInt64(row["position"])
	fr.Dependent, _ = asBool(row["dependent"])
	fr.Editable, _ = asBool(row["editable"])
	fr.Immutable, _ = asBool(row["immutable"])
	fr.Locked, _ = asBool(row["locked"])
	return fr
}

// Model is the in-memory descriptor of one runtime model. Fields map field
// slugs to their kind instances; order tracks field row ids so folds are
// deterministic.
type Model struct {
	ID          int64
	Name        string
	Slug        string
	Description string
	Position    int64
	Nested      bool
	Locked      bool
	Fields      map[string]Field

	order []string
}

func modelFrom(row Content) *Model {
	m := &Model{
		Name:        asString(row["name"]),
		Slug:        asString(row["slug"]),
		Description: asString(row["description"]),
		Fields:      map[string]Field{},
	}
	m.ID, _ = asInt64(row["id"])
	m.Position, _ = asInt64(row["position"])
	m.Nested, _ = asBool(row["nested"])
	m.Locked, _ = asBool(row["locked"])
	return m
}

func (m *Model) addField(f Field) {
	slug := f.Row().Slug
	if _, ok := m.Fields[slug]; !ok {
		m.order = append(m.order, slug)
	}
	m.Fields[slug] = f
}

// FieldsInOrder returns the model's fields in field-row id order, the order
// every pipeline fold uses.
func (m *Model) FieldsInOrder() []Field {
	out := make([]Field, 0, len(m.order))
	for _, slug := range m.order {
		out = append(out, m.Fields[slug])
	}
	return out
}

// FieldBySlug resolves one field by slug.
func (m *Model) FieldBySlug(slug string) (Field, error) {
	f, ok := m.Fields[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrFieldMissing, m.Slug, slug)
	}
	return f, nil
}

func copyContent(c Content) Content {
	out := make(Content, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// mergeContent lays content over spec: shared keys take the content value,
// spec-only keys (relation payloads, transient markers) survive.
func mergeContent(spec, content Content) Content {
	out := make(Content, len(spec)+len(content))
	for k, v := range spec {
		out[k] = v
	}
	for k, v := range content {
		out[k] = v
	}
	return out
}

func sortedContentKeys(c Content) []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int64:
		return b != 0, true
	case int:
		return b != 0, true
	case float64:
		return b != 0, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, false
		}
		return parsed, true
	default:
		return false, false
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", s)
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}

// asContentSlice normalizes the child payload of a relation field. JSON
// bodies arrive as []any, Go callers pass []map[string]any.
func asContentSlice(v any) ([]Content, bool) {
	switch list := v.(type) {
	case []Content:
		return list, true
	case []any:
		out := make([]Content, 0, len(list))
		for _, item := range list {
			child, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, child)
		}
		return out, true
	default:
		return nil, false
	}
}
