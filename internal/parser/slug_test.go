package parser

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"API Design", "api-design"},
		{"  Spaces  Around  ", "spaces-around"},
		{"C++ & Go!", "c-go"},
		{"already-a-slug", "already-a-slug"},
		{"Ünïcode Títle", "n-code-t-tle"},
		{"123 Numbers", "123-numbers"},
		{"!!!", ""},
	}
	for _, c := range cases {
		if got := Slugify(c.in); got != c.want {
			t.Errorf("Slugify(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestUniqueSlug(t *testing.T) {
	used := map[string]bool{}
	if got := UniqueSlug("Notes", used); got != "notes" {
		t.Fatalf("first = %q", got)
	}
	if got := UniqueSlug("Notes", used); got != "notes-1" {
		t.Fatalf("second = %q", got)
	}
	if got := UniqueSlug("Notes", used); got != "notes-2" {
		t.Fatalf("third = %q", got)
	}
}

func TestUniqueSlug_EmptyTitle(t *testing.T) {
	used := map[string]bool{}
	if got := UniqueSlug("???", used); got != "section" {
		t.Fatalf("got %q", got)
	}
	if got := UniqueSlug("", used); got != "section-1" {
		t.Fatalf("got %q", got)
	}
}
