// Package models defines the domain types for Ansuz.
package models

import (
	"strings"
	"time"
)

// Heading is a single ATX heading discovered in a document.
//
// Start is the byte offset of the heading line within the document content.
// End is the byte offset where the heading's range ends: the start of the
// next heading at the same or a higher level, or end of file. Children
// (deeper headings before that boundary) fall inside the parent's range.
type Heading struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Depth int    `json:"depth"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Metadata carries the identifying fields of a parsed document.
type Metadata struct {
	Path      string    `json:"path"`
	Title     string    `json:"title,omitempty"`
	Namespace string    `json:"namespace"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is a fully parsed markdown file. Instances are owned by the
// document cache and treated as immutable: an edit produces a freshly
// parsed replacement, never a patch of the cached value.
type Document struct {
	Meta     Metadata
	Headings []Heading
	Content  string

	slugIndex map[string]int
}

// NewDocument builds a Document and its slug lookup index. Headings must
// already carry document-unique slugs in document order.
func NewDocument(meta Metadata, headings []Heading, content string) *Document {
	idx := make(map[string]int, len(headings))
	for i, h := range headings {
		idx[h.Slug] = i
	}
	return &Document{Meta: meta, Headings: headings, Content: content, slugIndex: idx}
}

// Section returns the heading with the given flat slug.
func (d *Document) Section(slug string) (Heading, bool) {
	i, ok := d.slugIndex[slug]
	if !ok {
		return Heading{}, false
	}
	return d.Headings[i], true
}

// ResolveSection resolves a flat or hierarchical slug path ("a/b/c") to a
// heading. Each path segment after the first must fall inside the range of
// the previous segment's heading.
func (d *Document) ResolveSection(fullPath string) (Heading, bool) {
	segs := strings.Split(fullPath, "/")
	h, ok := d.Section(segs[0])
	if !ok {
		return Heading{}, false
	}
	for _, seg := range segs[1:] {
		child, found := d.Section(seg)
		if !found || child.Start <= h.Start || child.Start >= h.End {
			return Heading{}, false
		}
		h = child
	}
	return h, true
}

// SectionBody returns the trimmed content of a heading's range, excluding
// the heading line itself.
func (d *Document) SectionBody(h Heading) string {
	start := h.Start
	if nl := strings.IndexByte(d.Content[start:h.End], '\n'); nl >= 0 {
		start += nl + 1
	} else {
		start = h.End
	}
	return strings.TrimSpace(d.Content[start:h.End])
}

// SectionText returns the raw text of a heading's full range, including the
// heading line and all nested subsections.
func (d *Document) SectionText(h Heading) string {
	return d.Content[h.Start:h.End]
}

// Ancestors returns the chain of enclosing headings for the given slug,
// outermost first. The heading itself is not included.
func (d *Document) Ancestors(slug string) []Heading {
	target, ok := d.slugIndex[slug]
	if !ok {
		return nil
	}
	var stack []Heading
	for i := 0; i <= target; i++ {
		h := d.Headings[i]
		for len(stack) > 0 && stack[len(stack)-1].Depth >= h.Depth {
			stack = stack[:len(stack)-1]
		}
		if i == target {
			break
		}
		stack = append(stack, h)
	}
	return stack
}

// Slugs returns every section slug in document order.
func (d *Document) Slugs() []string {
	out := make([]string, len(d.Headings))
	for i, h := range d.Headings {
		out[i] = h.Slug
	}
	return out
}

// Fingerprint is a lightweight document summary used for cheap existence
// and change checks without a full parse.
type Fingerprint struct {
	Path      string    `json:"path"`
	Title     string    `json:"title,omitempty"`
	Namespace string    `json:"namespace"`
	Keywords  []string  `json:"keywords"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocInfo is the lightweight per-file record returned by storage listings.
type DocInfo struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Link is a directed reference edge between two documents.
type Link struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Section string `json:"section,omitempty"`
}
