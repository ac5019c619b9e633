package parser

import (
	"fmt"
	"regexp"
	"strings"
)

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a heading title into its URL-safe identifier: lowercase,
// runs of non-alphanumerics collapsed to single dashes, edges trimmed.
func Slugify(title string) string {
	slug := slugRe.ReplaceAllString(strings.ToLower(title), "-")
	return strings.Trim(slug, "-")
}

// UniqueSlug slugifies title and disambiguates against used, which it
// updates. The first occurrence keeps the bare slug; later collisions get
// an incrementing numeric suffix ("-1", "-2", ...).
func UniqueSlug(title string, used map[string]bool) string {
	base := Slugify(title)
	if base == "" {
		base = "section"
	}
	if !used[base] {
		used[base] = true
		return base
	}
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}
