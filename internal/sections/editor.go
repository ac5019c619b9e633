package sections

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/starford/ansuz/internal/addr"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/cache"
	"github.com/starford/ansuz/internal/fingerprint"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
)

// Editor applies section mutations against a storage provider and keeps
// the document cache coherent afterwards.
type Editor struct {
	store storage.Provider
	cache *cache.Cache
}

func NewEditor(store storage.Provider, c *cache.Cache) *Editor {
	return &Editor{store: store, cache: c}
}

// Apply runs one mutation against the section identified by sec. The
// document is snapshotted, the outline recomputed from that snapshot,
// the edit spliced in and the result committed only if the file has not
// changed since the snapshot; otherwise a Conflict is returned and
// nothing is written.
func (e *Editor) Apply(sec addr.SectionAddress, req Request) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	snap, err := e.store.Snapshot(sec.Document.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("sections: %s: %w", sec.Document.Path, apperr.ErrNotFound)
		}
		return nil, err
	}

	content := string(snap.Content)
	headings := parser.Outline(content)
	doc := models.NewDocument(models.Metadata{Path: sec.Document.Path}, headings, content)

	target, ok := doc.ResolveSection(sec.FullPath)
	if !ok {
		return nil, &apperr.SectionNotFoundError{
			Document:  sec.Document.Path,
			Slug:      sec.FullPath,
			Available: doc.Slugs(),
		}
	}

	body := strings.TrimSpace(req.Content)
	res := &Result{Path: sec.Document.Path}
	var out string

	switch req.Op {
	case OpReplace:
		out = setBody(content, target, body)
		res.Slug, res.Updated = target.Slug, true
	case OpAppend:
		out = setBody(content, target, joinBlocks(doc.SectionBody(target), body))
		res.Slug, res.Updated = target.Slug, true
	case OpPrepend:
		out = setBody(content, target, joinBlocks(body, doc.SectionBody(target)))
		res.Slug, res.Updated = target.Slug, true
	case OpInsertBefore, OpInsertAfter, OpAppendChild:
		depth := target.Depth
		pos := target.Start
		switch req.Op {
		case OpInsertAfter:
			pos = target.End
		case OpAppendChild:
			depth++
			pos = target.End
		}
		if depth > parser.MaxHeadingDepth {
			return nil, fmt.Errorf("sections: child of %q would be level %d: %w", sec.FullPath, depth, apperr.ErrMaxDepth)
		}
		title := strings.TrimSpace(req.Title)
		out = insertBlock(content, pos, sectionBlock(depth, title, body))
		res.Slug, res.Created = slugAt(headings, pos, title), true
	case OpRemove:
		res.RemovedText = doc.SectionText(target)
		out = content[:target.Start] + content[target.End:]
		res.Slug, res.Removed = target.Slug, true
	}

	out = normalizeTail(out)
	if err := e.store.CommitIfUnchanged(snap, []byte(out)); err != nil {
		return nil, err
	}
	e.cache.Invalidate(sec.Document.Path)

	res.Checksum = fingerprint.Hash([]byte(out))
	return res, nil
}

// slugAt predicts the slug the outline will assign to a heading titled
// title inserted at byte offset pos. Slug disambiguation is positional,
// so only headings before the insertion point constrain it.
func slugAt(headings []models.Heading, pos int, title string) string {
	used := make(map[string]bool, len(headings))
	for _, h := range headings {
		if h.Start >= pos {
			break
		}
		used[h.Slug] = true
	}
	return parser.UniqueSlug(title, used)
}

// joinBlocks concatenates two trimmed markdown blocks with a blank line
// between them, tolerating either side being empty.
func joinBlocks(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}
