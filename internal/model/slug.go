package model

import (
	"strings"

	"github.com/leontalbot/caribou/internal/store"
)

// Slugify lowercases s and reduces every run of non-alphanumerics to a
// single underscore, with no leading or trailing underscore left behind.
// Applying it twice changes nothing.
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pending := false
	for _, r := range strings.ToLower(s) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte('_')
			pending = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// slugField stores a URL-safe identifier. When a link peer is configured it
// shadows that field: whenever the peer changes, the slug is re-derived from
// it. Direct writes to the slug itself are slugified too.
type slugField struct{ base }

func (f *slugField) TableAdditions(slug string) []store.ColumnSpec {
	return []store.ColumnSpec{{Name: slug, Type: "slug", Default: f.row.DefaultValue}}
}

func (f *slugField) UpdateValues(content, values Content) Content {
	if f.link != nil {
		if v, ok := content[f.link.Slug]; ok {
			values[f.row.Slug] = Slugify(asString(v))
			return values
		}
	}
	if v, ok := content[f.row.Slug]; ok {
		values[f.row.Slug] = Slugify(asString(v))
	}
	return values
}
