package model

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello_world"},
		{"The Big Lebowski", "the_big_lebowski"},
		{"  padded  ", "padded"},
		{"a--b__c", "a_b_c"},
		{"Mixed CASE 123", "mixed_case_123"},
		{"trailing!!!", "trailing"},
		{"!!!leading", "leading"},
		{"already_slugged", "already_slugged"},
		{"", ""},
		{"!!!", ""},
	}
	for _, c := range cases {
		if got := Slugify(c.in); got != c.want {
			t.Errorf("Slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSlugifyIdempotent(t *testing.T) {
	for _, in := range []string{"Hello World", "a--b", "x!y?z", "plain"} {
		once := Slugify(in)
		if twice := Slugify(once); twice != once {
			t.Errorf("Slugify(%q) unstable: %q then %q", in, once, twice)
		}
	}
}
