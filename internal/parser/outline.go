package parser

import (
	"strings"

	"github.com/starford/ansuz/internal/models"
)

// MaxHeadingDepth is the deepest ATX heading level markdown allows.
const MaxHeadingDepth = 6

// Outline scans content in a single pass and returns every ATX heading with
// an assigned document-unique slug and its byte range. Headings inside
// fenced code blocks and inside a leading frontmatter block are ignored.
// Offsets are absolute within content.
func Outline(content string) []models.Heading {
	_, bodyOffset := Frontmatter(content)

	var headings []models.Heading
	used := make(map[string]bool)

	inFence := false
	var fenceMarker string

	pos := 0
	for pos < len(content) {
		lineEnd := strings.IndexByte(content[pos:], '\n')
		var line string
		var next int
		if lineEnd < 0 {
			line = content[pos:]
			next = len(content)
		} else {
			line = content[pos : pos+lineEnd]
			next = pos + lineEnd + 1
		}

		if pos < bodyOffset {
			pos = next
			continue
		}

		if marker := fenceStart(line); marker != "" {
			if !inFence {
				inFence = true
				fenceMarker = marker
			} else if marker == fenceMarker {
				inFence = false
			}
			pos = next
			continue
		}

		if !inFence {
			if depth, title, ok := headingLine(line); ok {
				headings = append(headings, models.Heading{
					Slug:  UniqueSlug(title, used),
					Title: title,
					Depth: depth,
					Start: pos,
				})
			}
		}
		pos = next
	}

	// Close each heading's range at the next heading of equal or higher
	// level, or end of file.
	for i := range headings {
		headings[i].End = len(content)
		for j := i + 1; j < len(headings); j++ {
			if headings[j].Depth <= headings[i].Depth {
				headings[i].End = headings[j].Start
				break
			}
		}
	}

	return headings
}

// fenceStart returns the fence marker ("```" or "~~~") when line opens or
// closes a fenced code block, or "" otherwise.
func fenceStart(line string) string {
	if strings.HasPrefix(line, "```") {
		return "```"
	}
	if strings.HasPrefix(line, "~~~") {
		return "~~~"
	}
	return ""
}

// headingLine parses a column-0 ATX heading: one to six '#' characters
// followed by a space and a non-empty title. An optional closing '#' run is
// stripped. Returns ok=false for anything else.
func headingLine(line string) (depth int, title string, ok bool) {
	for depth < len(line) && line[depth] == '#' {
		depth++
	}
	if depth < 1 || depth > MaxHeadingDepth {
		return 0, "", false
	}
	if depth >= len(line) || (line[depth] != ' ' && line[depth] != '\t') {
		return 0, "", false
	}

	title = strings.TrimSpace(line[depth:])
	// Closing sequence: "## Title ##" keeps "Title"; "C#" is untouched
	// because the run must be preceded by a space.
	if i := strings.LastIndex(title, " "); i >= 0 && strings.Trim(title[i+1:], "#") == "" {
		title = strings.TrimSpace(title[:i])
	}
	if title == "" {
		return 0, "", false
	}
	return depth, title, true
}
