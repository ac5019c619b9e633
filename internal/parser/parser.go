// Package parser turns raw Markdown into the heading outline and metadata
// that the document cache and fingerprint index are built from.
package parser

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/models"
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Headings    []models.Heading
	Title       string
	Frontmatter map[string]any
	BodyOffset  int
}

// Parse scans raw Markdown bytes into a heading outline plus derived
// metadata. Frontmatter is split off and returned as-is; it is never
// required and invalid YAML degrades to "no frontmatter".
func Parse(data []byte) *Result {
	content := string(data)
	fm, bodyOffset := Frontmatter(content)
	headings := Outline(content)

	return &Result{
		Headings:    headings,
		Title:       deriveTitle(fm, headings),
		Frontmatter: fm,
		BodyOffset:  bodyOffset,
	}
}

// Frontmatter splits an optional leading YAML frontmatter block from
// content. It returns the parsed map (nil when absent or invalid) and the
// byte offset where the body starts (0 when there is no frontmatter).
func Frontmatter(content string) (map[string]any, int) {
	if !strings.HasPrefix(content, "---\n") && !strings.HasPrefix(content, "---\r\n") {
		return nil, 0
	}

	pos := strings.IndexByte(content, '\n') + 1
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
		if strings.TrimRight(line, "\r") == "---" {
			yamlBlock := content[strings.IndexByte(content, '\n')+1 : pos]
			var fm map[string]any
			if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
				// Invalid YAML: treat the whole file as body.
				return nil, 0
			}
			return fm, next
		}
		pos = next
	}

	// No closing delimiter: everything is body.
	return nil, 0
}

// deriveTitle returns the frontmatter "title" if present, otherwise the
// first level-1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, headings []models.Heading) string {
	if fm != nil {
		if t, ok := fm["title"]; ok {
			if s, ok := t.(string); ok && s != "" {
				return s
			}
		}
	}
	for _, h := range headings {
		if h.Depth == 1 {
			return h.Title
		}
	}
	return ""
}
