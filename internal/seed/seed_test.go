package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/leontalbot/caribou/internal/config"
	"github.com/leontalbot/caribou/internal/model"
	"github.com/leontalbot/caribou/internal/store"
)

func testEngine(t *testing.T) *model.Engine {
	t.Helper()
	ctx := context.Background()
	st, err := store.New(ctx, config.DatabaseConfig{
		Driver: "sqlite",
		Name:   ":memory:",
	}, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(st.Close)

	eng, err := model.New(st, model.Options{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	return eng
}

const seedDoc = `
models:
  - name: Author
    description: people who write
    fields:
      - name: Name
        type: string
      - name: Articles
        type: collection
        target: Article
        dependent: true
  - name: Article
    fields:
      - name: Title
        type: string
      - name: Headline
        type: slug
        link_slug: title
`

func TestParseValidation(t *testing.T) {
	f, err := Parse([]byte(seedDoc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(f.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(f.Models))
	}
	if len(f.Models[0].Fields) != 2 {
		t.Fatalf("expected 2 author fields, got %d", len(f.Models[0].Fields))
	}

	cases := []struct {
		doc  string
		want string
	}{
		{"models:\n  - fields: []\n", "no name"},
		{"models:\n  - name: Thing\n    fields:\n      - name: OnlyName\n", "name and type"},
		{"models:\n  - name: Thing\n    fields:\n      - name: Kids\n        type: collection\n", "needs a target"},
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c.doc)); err == nil || !strings.Contains(err.Error(), c.want) {
			t.Errorf("expected %q error, got %v", c.want, err)
		}
	}

	if _, err := Parse([]byte("models: [")); err == nil {
		t.Error("expected yaml error")
	}
}

func TestApplyBuildsModelsAndRelations(t *testing.T) {
	ctx := context.Background()
	eng := testEngine(t)

	f, err := Parse([]byte(seedDoc))
	if err != nil {
		t.Fatal(err)
	}
	if err := Apply(ctx, eng, f); err != nil {
		t.Fatalf("apply: %v", err)
	}

	authorM, err := eng.Model("author")
	if err != nil {
		t.Fatalf("author model: %v", err)
	}
	articleM, err := eng.Model("article")
	if err != nil {
		t.Fatalf("article model: %v", err)
	}

	// the collection declared before its target still resolved
	if _, err := authorM.FieldBySlug("articles"); err != nil {
		t.Fatalf("expected articles collection: %v", err)
	}
	// and its reciprocal part landed on the target
	for _, slug := range []string{"author", "author_id", "author_position"} {
		if _, err := articleM.FieldBySlug(slug); err != nil {
			t.Fatalf("expected %s on article: %v", slug, err)
		}
	}

	author, err := eng.Create(ctx, "author", model.Content{"name": "bob"})
	if err != nil {
		t.Fatalf("create author: %v", err)
	}
	authorID, _ := author["id"].(int64)

	article, err := eng.Create(ctx, "article", model.Content{
		"title":     "Hello World",
		"author_id": authorID,
	})
	if err != nil {
		t.Fatalf("create article: %v", err)
	}
	if article["headline"] != "hello_world" {
		t.Fatalf("expected derived headline, got %v", article["headline"])
	}

	full, err := eng.Choose(ctx, "author", authorID, model.Opts{Include: model.ParseInclude("articles")})
	if err != nil {
		t.Fatal(err)
	}
	if kids, ok := full["articles"].([]model.Content); !ok || len(kids) != 1 {
		t.Fatalf("expected 1 included article, got %v", full["articles"])
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng := testEngine(t)

	f, err := Parse([]byte(seedDoc))
	if err != nil {
		t.Fatal(err)
	}
	if err := Apply(ctx, eng, f); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	authorM, _ := eng.Model("author")
	articleM, _ := eng.Model("article")
	authorFields := len(authorM.Fields)
	articleFields := len(articleM.Fields)

	if err := Apply(ctx, eng, f); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	authorM, _ = eng.Model("author")
	articleM, _ = eng.Model("article")
	if len(authorM.Fields) != authorFields || len(articleM.Fields) != articleFields {
		t.Fatalf("field counts changed on re-apply: author %d->%d article %d->%d",
			authorFields, len(authorM.Fields), articleFields, len(articleM.Fields))
	}
}

func TestApplyTopsUpMissingFields(t *testing.T) {
	ctx := context.Background()
	eng := testEngine(t)

	f, _ := Parse([]byte(seedDoc))
	if err := Apply(ctx, eng, f); err != nil {
		t.Fatal(err)
	}

	extra, err := Parse([]byte(`
models:
  - name: Article
    fields:
      - name: Subtitle
        type: string
`))
	if err != nil {
		t.Fatal(err)
	}
	if err := Apply(ctx, eng, extra); err != nil {
		t.Fatalf("top-up apply: %v", err)
	}

	articleM, _ := eng.Model("article")
	if _, err := articleM.FieldBySlug("subtitle"); err != nil {
		t.Fatalf("expected subtitle added: %v", err)
	}
	if _, err := articleM.FieldBySlug("title"); err != nil {
		t.Fatalf("expected title kept: %v", err)
	}
}

func TestApplyUnknownTargetFails(t *testing.T) {
	ctx := context.Background()
	eng := testEngine(t)

	f, err := Parse([]byte(`
models:
  - name: Gallery
    fields:
      - name: Photos
        type: collection
        target: Nonexistent
`))
	if err != nil {
		t.Fatal(err)
	}
	if err := Apply(ctx, eng, f); err == nil {
		t.Fatal("expected unknown target error")
	}
}
