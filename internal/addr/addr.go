// Package addr parses loosely formatted document, section, and task
// identifiers into validated address values. All other packages accept
// addresses, never raw strings.
package addr

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

const (
	maxInputLen   = 1000
	maxSegmentLen = 200
	maxDepth      = 20
)

// segmentRe matches one flat slug component: lowercase alphanumerics
// separated by single dashes, as produced by the heading slugifier.
var segmentRe = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// DocumentAddress identifies one markdown file under the workspace root.
// Path is workspace-absolute with forward slashes and a ".md" suffix.
type DocumentAddress struct {
	Path      string `json:"path"`
	Slug      string `json:"slug"`
	Namespace string `json:"namespace"`
}

// Key returns the stable cache key for this document.
func (a DocumentAddress) Key() string { return a.Path }

// IsZero reports whether the address is the zero value.
func (a DocumentAddress) IsZero() bool { return a.Path == "" }

// SectionAddress identifies a heading inside a document. FullPath is the
// hierarchical slug path ("overview" or "api/endpoints/list"); Slug is its
// last segment.
type SectionAddress struct {
	Document DocumentAddress `json:"document"`
	Slug     string          `json:"slug"`
	FullPath string          `json:"fullPath"`
}

// Key returns the stable cache key for this section.
func (a SectionAddress) Key() string { return a.Document.Path + "#" + a.FullPath }

// Segments returns the slug path split into its components.
func (a SectionAddress) Segments() []string { return strings.Split(a.FullPath, "/") }

// Depth returns the number of segments in the slug path.
func (a SectionAddress) Depth() int { return strings.Count(a.FullPath, "/") + 1 }

// TaskAddress is a SectionAddress whose target sits under a heading titled
// "Tasks". The relationship is verified against the document's heading tree,
// not inferred from the slug.
type TaskAddress struct {
	SectionAddress
}

// ParseDocument normalizes input into a DocumentAddress. A missing leading
// slash and a missing ".md" extension are supplied; anything unsafe or
// ambiguous fails with InvalidAddress.
func ParseDocument(input string) (DocumentAddress, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return DocumentAddress{}, &apperr.InvalidAddressError{Input: input, Reason: "empty address"}
	}
	if len(raw) > maxInputLen {
		return DocumentAddress{}, &apperr.InvalidAddressError{Input: truncate(raw), Reason: "address too long"}
	}
	if reason, ok := unsafeInput(raw); !ok {
		return DocumentAddress{}, &apperr.InvalidAddressError{Input: raw, Reason: reason}
	}
	if strings.Contains(raw, "#") {
		return DocumentAddress{}, &apperr.InvalidAddressError{Input: raw, Reason: "document address must not contain a section marker"}
	}
	for _, seg := range strings.Split(raw, "/") {
		if seg == ".." {
			return DocumentAddress{}, &apperr.InvalidAddressError{Input: raw, Reason: "parent traversal not allowed"}
		}
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	p := path.Clean(raw)
	if p == "/" || p == "." {
		return DocumentAddress{}, &apperr.InvalidAddressError{Input: input, Reason: "address names no document"}
	}
	base := path.Base(p)
	switch {
	case strings.HasSuffix(base, ".md"):
		if base == ".md" {
			return DocumentAddress{}, &apperr.InvalidAddressError{Input: input, Reason: "address names no document"}
		}
	case strings.Contains(base, "."):
		return DocumentAddress{}, &apperr.InvalidAddressError{Input: input, Reason: "not a markdown document"}
	default:
		p += ".md"
	}
	return DocumentAddress{
		Path:      p,
		Slug:      strings.TrimSuffix(path.Base(p), ".md"),
		Namespace: namespaceOf(p),
	}, nil
}

// ParseSection parses a section reference relative to doc. Accepted forms:
// "overview", "#overview", "a/b/c", and the combined "path.md#a/b" which
// overrides doc with its own document part. Slug input is lowercased before
// validation.
func ParseSection(input string, doc DocumentAddress) (SectionAddress, error) {
	raw := strings.TrimSpace(input)
	if raw == "" {
		return SectionAddress{}, &apperr.InvalidAddressError{Input: input, Reason: "empty address"}
	}
	if len(raw) > maxInputLen {
		return SectionAddress{}, &apperr.InvalidAddressError{Input: truncate(raw), Reason: "address too long"}
	}
	if reason, ok := unsafeInput(raw); !ok {
		return SectionAddress{}, &apperr.InvalidAddressError{Input: raw, Reason: reason}
	}

	slugPart := raw
	if i := strings.Index(raw, "#"); i >= 0 {
		if strings.Contains(raw[i+1:], "#") {
			return SectionAddress{}, &apperr.InvalidAddressError{Input: raw, Reason: "multiple section markers"}
		}
		if i > 0 {
			parsed, err := ParseDocument(raw[:i])
			if err != nil {
				return SectionAddress{}, err
			}
			doc = parsed
		}
		slugPart = raw[i+1:]
	}
	if doc.IsZero() {
		return SectionAddress{}, &apperr.InvalidAddressError{Input: raw, Reason: "section reference without a document"}
	}

	slugPart = strings.ToLower(strings.Trim(slugPart, "/"))
	if slugPart == "" {
		return SectionAddress{}, &apperr.InvalidAddressError{Input: raw, Reason: "empty section slug"}
	}
	segs := strings.Split(slugPart, "/")
	if len(segs) > maxDepth {
		return SectionAddress{}, &apperr.InvalidAddressError{Input: raw, Reason: fmt.Sprintf("slug path deeper than %d segments", maxDepth)}
	}
	for _, seg := range segs {
		if seg == "" {
			return SectionAddress{}, &apperr.InvalidAddressError{Input: raw, Reason: "empty slug segment"}
		}
		if len(seg) > maxSegmentLen {
			return SectionAddress{}, &apperr.InvalidAddressError{Input: truncate(raw), Reason: fmt.Sprintf("slug segment longer than %d characters", maxSegmentLen)}
		}
		if !segmentRe.MatchString(seg) {
			return SectionAddress{}, &apperr.InvalidAddressError{Input: raw, Reason: fmt.Sprintf("invalid slug segment %q", seg)}
		}
	}
	return SectionAddress{
		Document: doc,
		Slug:     segs[len(segs)-1],
		FullPath: strings.Join(segs, "/"),
	}, nil
}

// ParseTask parses input as a section reference and verifies, against the
// parsed document, that the target sits under an enclosing heading titled
// "Tasks" (case-insensitive). A structurally valid section outside a Tasks
// subtree fails with NotATask.
func ParseTask(input string, doc DocumentAddress, parsed *models.Document) (TaskAddress, error) {
	sec, err := ParseSection(input, doc)
	if err != nil {
		return TaskAddress{}, err
	}
	h, ok := parsed.ResolveSection(sec.FullPath)
	if !ok {
		return TaskAddress{}, &apperr.SectionNotFoundError{
			Document:  sec.Document.Path,
			Slug:      sec.FullPath,
			Available: parsed.Slugs(),
		}
	}
	underTasks := false
	for _, anc := range parsed.Ancestors(h.Slug) {
		if strings.EqualFold(anc.Title, "Tasks") {
			underTasks = true
			break
		}
	}
	if !underTasks {
		return TaskAddress{}, fmt.Errorf("addr: section %q is not under a Tasks heading: %w", sec.FullPath, apperr.ErrNotATask)
	}
	return TaskAddress{SectionAddress: sec}, nil
}

// unsafeInput rejects characters that would let an address smuggle bytes
// past later path handling.
func unsafeInput(s string) (string, bool) {
	for _, r := range s {
		switch {
		case r < 0x20 || r == 0x7f:
			return "control character in address", false
		case r == '%':
			return "percent-encoding not allowed", false
		case r == '\\':
			return "backslash in address", false
		}
	}
	return "", true
}

// namespaceOf derives the namespace from a normalized document path.
// Top-level documents live in the "root" namespace.
func namespaceOf(p string) string {
	dir := path.Dir(p)
	if dir == "/" || dir == "." {
		return "root"
	}
	return strings.TrimPrefix(dir, "/")
}

func truncate(s string) string {
	if len(s) <= 64 {
		return s
	}
	return s[:64] + "..."
}
