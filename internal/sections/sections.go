// Package sections edits markdown documents one heading range at a time.
//
// Every mutation re-reads the document, recomputes the outline, splices
// the new text and commits with an optimistic-concurrency check, so a
// concurrent external write surfaces as a conflict instead of a silent
// overwrite. Offsets from cached copies are never trusted.
package sections

import (
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// Op is a section mutation kind.
type Op string

const (
	OpReplace      Op = "replace"
	OpAppend       Op = "append"
	OpPrepend      Op = "prepend"
	OpInsertBefore Op = "insert_before"
	OpInsertAfter  Op = "insert_after"
	OpAppendChild  Op = "append_child"
	OpRemove       Op = "remove"
)

// ParseOp validates a wire-level operation name.
func ParseOp(s string) (Op, error) {
	op := Op(s)
	switch op {
	case OpReplace, OpAppend, OpPrepend, OpInsertBefore, OpInsertAfter, OpAppendChild, OpRemove:
		return op, nil
	}
	return "", fmt.Errorf("sections: unknown operation %q: %w", s, apperr.ErrInvalidArgument)
}

// creates reports whether the operation inserts a new heading.
func (o Op) creates() bool {
	return o == OpInsertBefore || o == OpInsertAfter || o == OpAppendChild
}

// Request describes a single mutation. Title is required for operations
// that create a heading and ignored otherwise. Content is the markdown
// body; remove ignores it.
type Request struct {
	Op      Op
	Title   string
	Content string
}

func (r Request) validate() error {
	if _, err := ParseOp(string(r.Op)); err != nil {
		return err
	}
	if r.Op.creates() && strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("sections: operation %q requires a title: %w", r.Op, apperr.ErrInvalidArgument)
	}
	return nil
}

// Result reports what a mutation did. Exactly one of Updated, Created
// or Removed is set.
type Result struct {
	Path        string `json:"path"`
	Slug        string `json:"slug"`
	Updated     bool   `json:"updated,omitempty"`
	Created     bool   `json:"created,omitempty"`
	Removed     bool   `json:"removed,omitempty"`
	RemovedText string `json:"removed_text,omitempty"`
	Checksum    string `json:"checksum"`
}

// bodyStart returns the offset just past the heading line of h.
func bodyStart(content string, h models.Heading) int {
	if nl := strings.IndexByte(content[h.Start:h.End], '\n'); nl >= 0 {
		return h.Start + nl + 1
	}
	return h.End
}

// setBody rewrites the body of h, keeping the heading line and padding
// the block with single blank lines. An empty body collapses the
// section to its bare heading.
func setBody(content string, h models.Heading, body string) string {
	prefix := content[:bodyStart(content, h)]
	suffix := content[h.End:]
	var b strings.Builder
	b.Grow(len(prefix) + len(body) + len(suffix) + 4)
	b.WriteString(prefix)
	if !strings.HasSuffix(prefix, "\n") {
		b.WriteByte('\n')
	}
	if body != "" {
		b.WriteByte('\n')
		b.WriteString(body)
		b.WriteByte('\n')
	}
	if suffix != "" {
		b.WriteByte('\n')
	}
	b.WriteString(suffix)
	return b.String()
}

// sectionBlock renders a new heading and optional body.
func sectionBlock(depth int, title, body string) string {
	var b strings.Builder
	b.WriteString(strings.Repeat("#", depth))
	b.WriteByte(' ')
	b.WriteString(title)
	b.WriteByte('\n')
	if body != "" {
		b.WriteByte('\n')
		b.WriteString(body)
		b.WriteByte('\n')
	}
	return b.String()
}

// insertBlock splices a rendered section block at pos, a boundary
// between heading ranges, separating it from its neighbours with blank
// lines.
func insertBlock(content string, pos int, block string) string {
	prefix := content[:pos]
	suffix := content[pos:]
	var b strings.Builder
	b.Grow(len(content) + len(block) + 4)
	b.WriteString(prefix)
	switch {
	case prefix == "" || strings.HasSuffix(prefix, "\n\n"):
	case strings.HasSuffix(prefix, "\n"):
		b.WriteByte('\n')
	default:
		b.WriteString("\n\n")
	}
	b.WriteString(block)
	if suffix != "" {
		b.WriteByte('\n')
	}
	b.WriteString(suffix)
	return b.String()
}

// normalizeTail collapses the trailing newline run to exactly one.
func normalizeTail(content string) string {
	return strings.TrimRight(content, "\n") + "\n"
}
