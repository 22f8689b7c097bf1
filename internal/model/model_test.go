package model

import (
	"errors"
	"testing"
)

func TestParseInclude(t *testing.T) {
	inc := ParseInclude("yellows, owner.tags,owner.avatar ,, .")
	if len(inc) != 2 {
		t.Fatalf("expected 2 top-level entries, got %v", inc)
	}
	if _, ok := inc["yellows"]; !ok {
		t.Fatal("missing yellows")
	}
	owner, ok := inc["owner"]
	if !ok {
		t.Fatal("missing owner")
	}
	if len(owner) != 2 {
		t.Fatalf("expected tags and avatar under owner, got %v", owner)
	}
	if len(inc["yellows"]) != 0 {
		t.Fatalf("expected leaf entry to be empty, got %v", inc["yellows"])
	}

	if got := ParseInclude(""); len(got) != 0 {
		t.Fatalf("expected empty include, got %v", got)
	}
}

func TestFieldRowFrom(t *testing.T) {
	fr := FieldRowFrom(Content{
		"id":        int64(7),
		"name":      "Gogon",
		"slug":      "gogon",
		"type":      "string",
		"model_id":  "3",
		"target_id": float64(9),
		"dependent": int64(1),
		"editable":  true,
		"locked":    "false",
		"position":  2,
	})
	if fr.ID != 7 || fr.Slug != "gogon" || fr.Type != "string" {
		t.Fatalf("basic fields wrong: %+v", fr)
	}
	if fr.ModelID != 3 {
		t.Fatalf("expected model_id coerced from string, got %d", fr.ModelID)
	}
	if fr.TargetID != 9 {
		t.Fatalf("expected target_id coerced from float, got %d", fr.TargetID)
	}
	if !fr.Dependent || !fr.Editable || fr.Locked {
		t.Fatalf("boolean coercion wrong: %+v", fr)
	}
	if fr.LinkID != 0 {
		t.Fatalf("expected zero link_id when absent, got %d", fr.LinkID)
	}
}

func TestModelFieldOrder(t *testing.T) {
	m := modelFrom(Content{"id": int64(1), "name": "Thing", "slug": "thing"})
	for _, spec := range []FieldRow{
		{ID: 1, Slug: "id", Type: "id"},
		{ID: 2, Slug: "gogon", Type: "string"},
		{ID: 3, Slug: "wibib", Type: "boolean"},
	} {
		f, err := NewField(spec, nil)
		if err != nil {
			t.Fatalf("new field %s: %v", spec.Slug, err)
		}
		m.addField(f)
	}

	got := m.FieldsInOrder()
	if len(got) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(got))
	}
	for i, want := range []string{"id", "gogon", "wibib"} {
		if got[i].Row().Slug != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, got[i].Row().Slug)
		}
	}

	// re-adding a slug replaces without duplicating
	f, _ := NewField(FieldRow{ID: 9, Slug: "gogon", Type: "text"}, nil)
	m.addField(f)
	if len(m.FieldsInOrder()) != 3 {
		t.Fatalf("expected stable length after replace, got %d", len(m.FieldsInOrder()))
	}

	if _, err := m.FieldBySlug("absent"); !errors.Is(err, ErrFieldMissing) {
		t.Fatalf("expected ErrFieldMissing, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	a := &Model{ID: 1, Slug: "alpha"}
	b := &Model{ID: 2, Slug: "beta"}
	r.Swap([]*Model{b, a})

	if m, ok := r.Lookup("alpha"); !ok || m != a {
		t.Fatal("lookup by slug failed")
	}
	if m, ok := r.Lookup(int64(2)); !ok || m != b {
		t.Fatal("lookup by id failed")
	}
	if m, ok := r.Lookup("2"); !ok || m != b {
		t.Fatal("lookup by decimal string failed")
	}
	if _, ok := r.Lookup("gone"); ok {
		t.Fatal("expected miss for unknown slug")
	}
	if _, ok := r.Lookup(3.5); ok {
		t.Fatal("expected miss for unsupported key type")
	}

	all := r.All()
	if len(all) != 2 || all[0] != a || all[1] != b {
		t.Fatalf("expected id-ordered models, got %v", all)
	}

	// a rename evicts the old slug immediately
	renamed := &Model{ID: 1, Slug: "omega"}
	r.Rename("alpha", renamed)
	if _, ok := r.Lookup("alpha"); ok {
		t.Fatal("expected alpha evicted")
	}
	if m, ok := r.Lookup("omega"); !ok || m != renamed {
		t.Fatal("expected omega registered")
	}
	if m, ok := r.Lookup(int64(1)); !ok || m != renamed {
		t.Fatal("expected id index updated")
	}

	c := &Model{ID: 3, Slug: "gamma"}
	r.Merge(c)
	if len(r.All()) != 3 {
		t.Fatalf("expected 3 after merge, got %d", len(r.All()))
	}
}
