// Package refs extracts @reference tokens from markdown and resolves them
// into bounded context trees. Reference loading is advisory: anything that
// cannot be resolved is dropped with a log line, never surfaced as an
// error.
package refs

import (
	"regexp"
	"strings"

	"github.com/starford/ansuz/internal/addr"
)

// refRe matches the reference forms "@/path", "@/path.md#section" and the
// same-document "@#section". Bare "@" occurrences (mail addresses,
// mentions) leave both groups empty and are skipped.
var refRe = regexp.MustCompile(`@(/[A-Za-z0-9._/-]+)?(#[A-Za-z0-9_/-]+)?`)

// Token is one raw @reference occurrence found in content. Path is empty
// for same-document section references.
type Token struct {
	Raw     string `json:"raw"`
	Path    string `json:"path,omitempty"`
	Section string `json:"section,omitempty"`
}

// Reference is a token normalized against its origin document: the target
// document address plus an optional validated section slug path.
type Reference struct {
	Doc     addr.DocumentAddress `json:"doc"`
	Section string               `json:"section,omitempty"`
}

// Node is one resolved reference in a context tree. Content is the target
// section's body, or the whole raw document when no section was addressed.
type Node struct {
	Path     string  `json:"path"`
	Section  string  `json:"section,omitempty"`
	Depth    int     `json:"depth"`
	Content  string  `json:"content"`
	Children []*Node `json:"children,omitempty"`
}

// Extract scans content for reference tokens in a single regex pass.
// Trailing sentence punctuation is stripped from paths and duplicates are
// collapsed, keeping first-occurrence order.
func Extract(content string) []Token {
	matches := refRe.FindAllStringSubmatch(content, -1)
	seen := make(map[string]bool)
	var out []Token
	for _, m := range matches {
		path := strings.TrimRight(m[1], ".")
		section := strings.TrimPrefix(m[2], "#")
		if path == "" && section == "" {
			continue
		}
		key := path + "#" + section
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Token{Raw: m[0], Path: path, Section: section})
	}
	return out
}

// Normalize resolves tokens against the document they were found in:
// same-document sections bind to from, paths gain their leading slash and
// ".md" extension, section slugs are validated. Tokens that do not survive
// address validation are dropped, and duplicates that only differ in raw
// spelling collapse to one reference.
func Normalize(tokens []Token, from addr.DocumentAddress) []Reference {
	seen := make(map[string]bool)
	var out []Reference
	for _, tok := range tokens {
		doc := from
		if tok.Path != "" {
			parsed, err := addr.ParseDocument(tok.Path)
			if err != nil {
				continue
			}
			doc = parsed
		}
		if doc.IsZero() {
			continue
		}
		section := ""
		if tok.Section != "" {
			sec, err := addr.ParseSection(tok.Section, doc)
			if err != nil {
				continue
			}
			section = sec.FullPath
		}
		key := doc.Path + "#" + section
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Reference{Doc: doc, Section: section})
	}
	return out
}
