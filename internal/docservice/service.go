// Package docservice coordinates storage, cache, index, and the section
// editor behind a single API shared by the HTTP and MCP surfaces. All
// methods accept raw address strings and parse them through a memoizing
// batch, so multi-step tool calls validate each address once.
package docservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/addr"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/cache"
	"github.com/starford/ansuz/internal/fingerprint"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/refs"
	"github.com/starford/ansuz/internal/sections"
	"github.com/starford/ansuz/internal/storage"
)

// DocumentDetail is the full representation of a document.
type DocumentDetail struct {
	Path        string           `json:"path"`
	Title       string           `json:"title"`
	Namespace   string           `json:"namespace"`
	Content     string           `json:"content"`
	Checksum    string           `json:"checksum"`
	Headings    []models.Heading `json:"headings"`
	Frontmatter map[string]any   `json:"frontmatter,omitempty"`
	Backlinks   []models.Link    `json:"backlinks"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// SectionDetail is one heading range of a document. Checksum is the
// containing document's checksum, usable as If-Match for a later edit.
type SectionDetail struct {
	Document string `json:"document"`
	Slug     string `json:"slug"`
	FullPath string `json:"full_path"`
	Title    string `json:"title"`
	Depth    int    `json:"depth"`
	Body     string `json:"body"`
	Checksum string `json:"checksum"`
}

// DocumentListItem is a lightweight item in a list response.
type DocumentListItem struct {
	Path      string    `json:"path"`
	Title     string    `json:"title"`
	Namespace string    `json:"namespace"`
	Checksum  string    `json:"checksum"`
	Keywords  []string  `json:"keywords"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ArchiveResult reports where a document was archived to.
type ArchiveResult struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	AuditID    string    `json:"audit_id"`
	ArchivedAt time.Time `json:"archived_at"`
}

// archivePrefix is the workspace directory archived documents move into.
const archivePrefix = "/archived/"

// Service coordinates storage, cache, index, editor and resolver operations.
type Service struct {
	store    storage.Provider
	db       index.DocumentIndex
	cache    *cache.Cache
	editor   *sections.Editor
	resolver *refs.Resolver
	batch    *addr.Batch
	logger   *slog.Logger
}

// NewService creates a new document service.
func NewService(store storage.Provider, db index.DocumentIndex, c *cache.Cache, editor *sections.Editor, resolver *refs.Resolver, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		db:       db,
		cache:    c,
		editor:   editor,
		resolver: resolver,
		batch:    addr.NewBatch(0),
		logger:   logger,
	}
}

// GetDocument reads a document through the cache and enriches it with
// backlinks from the index.
func (s *Service) GetDocument(_ context.Context, rawPath string) (*DocumentDetail, error) {
	da, err := s.batch.ParseDocument(rawPath)
	if err != nil {
		return nil, err
	}
	doc, err := s.cache.Get(da.Path, cache.Direct)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(doc)
}

// GetSection resolves a section reference and returns its body. rawDoc may
// be empty when rawSection carries its own document part ("path.md#slug").
func (s *Service) GetSection(_ context.Context, rawDoc, rawSection string) (*SectionDetail, error) {
	sec, err := s.parseSection(rawDoc, rawSection)
	if err != nil {
		return nil, err
	}
	doc, err := s.cache.Get(sec.Document.Path, cache.Direct)
	if err != nil {
		return nil, err
	}
	h, ok := doc.ResolveSection(sec.FullPath)
	if !ok {
		return nil, &apperr.SectionNotFoundError{
			Document:  sec.Document.Path,
			Slug:      sec.FullPath,
			Available: doc.Slugs(),
		}
	}
	return sectionDetail(doc, sec.FullPath, h), nil
}

// GetTask resolves a task reference: a section that must sit under a
// heading titled "Tasks" in the document's current heading tree.
func (s *Service) GetTask(_ context.Context, rawDoc, rawTask string) (*SectionDetail, error) {
	sec, err := s.parseSection(rawDoc, rawTask)
	if err != nil {
		return nil, err
	}
	doc, err := s.cache.Get(sec.Document.Path, cache.Direct)
	if err != nil {
		return nil, err
	}
	ta, err := addr.ParseTask(rawTask, sec.Document, doc)
	if err != nil {
		return nil, err
	}
	h, ok := doc.ResolveSection(ta.FullPath)
	if !ok {
		return nil, &apperr.SectionNotFoundError{
			Document:  ta.Document.Path,
			Slug:      ta.FullPath,
			Available: doc.Slugs(),
		}
	}
	return sectionDetail(doc, ta.FullPath, h), nil
}

// CreateDocument writes a new document and indexes it.
func (s *Service) CreateDocument(_ context.Context, rawPath string, content []byte) (*DocumentDetail, error) {
	da, err := s.batch.ParseDocument(rawPath)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("docservice: %s: content is not valid UTF-8: %w", da.Path, apperr.ErrInvalidArgument)
	}
	if _, err := s.store.Read(da.Path); err == nil {
		return nil, fmt.Errorf("docservice: %s: %w", da.Path, apperr.ErrAlreadyExists)
	}
	if err := s.store.Write(da.Path, content); err != nil {
		return nil, err
	}
	if err := index.IndexDocument(s.db, da.Path, content, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.detailFor(da.Path)
}

// UpdateDocument replaces a document's content with optimistic concurrency:
// a non-empty ifMatch must equal the current content checksum, and the
// commit itself fails if the file changed after the snapshot was taken.
func (s *Service) UpdateDocument(_ context.Context, rawPath string, content []byte, ifMatch string) (*DocumentDetail, error) {
	da, err := s.batch.ParseDocument(rawPath)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("docservice: %s: content is not valid UTF-8: %w", da.Path, apperr.ErrInvalidArgument)
	}
	snap, err := s.store.Snapshot(da.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("docservice: %s: %w", da.Path, apperr.ErrNotFound)
		}
		return nil, err
	}
	if ifMatch != "" && ifMatch != fingerprint.Hash(snap.Content) {
		return nil, fmt.Errorf("docservice: %s: checksum mismatch: %w", da.Path, apperr.ErrConflict)
	}
	if err := s.store.CommitIfUnchanged(snap, content); err != nil {
		return nil, err
	}
	s.cache.Invalidate(da.Path)
	if err := index.IndexDocument(s.db, da.Path, content, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.detailFor(da.Path)
}

// EditSection applies one section mutation and re-indexes the document.
func (s *Service) EditSection(_ context.Context, rawDoc, rawSection string, req sections.Request) (*sections.Result, error) {
	sec, err := s.parseSection(rawDoc, rawSection)
	if err != nil {
		return nil, err
	}
	res, err := s.editor.Apply(sec, req)
	if err != nil {
		return nil, err
	}
	// The edit is committed; a failed re-index degrades search until the
	// next sync instead of failing the call.
	if err := s.reindex(sec.Document.Path); err != nil {
		s.logger.Warn("reindex after edit failed",
			slog.String("path", sec.Document.Path),
			slog.String("error", err.Error()))
	}
	return res, nil
}

// DeleteDocument removes a document from storage, cache, and index.
func (s *Service) DeleteDocument(_ context.Context, rawPath string) error {
	da, err := s.batch.ParseDocument(rawPath)
	if err != nil {
		return err
	}
	if err := s.store.Delete(da.Path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("docservice: %s: %w", da.Path, apperr.ErrNotFound)
		}
		return err
	}
	s.cache.Invalidate(da.Path)
	return s.db.DeleteDocument(da.Path)
}

// MoveDocument renames a document within the workspace and reconciles
// cache and index. Inbound references keep pointing at the old path until
// their documents are edited; the index reflects content, not intent.
func (s *Service) MoveDocument(_ context.Context, rawFrom, rawTo string) (*DocumentDetail, error) {
	from, err := s.batch.ParseDocument(rawFrom)
	if err != nil {
		return nil, err
	}
	to, err := s.batch.ParseDocument(rawTo)
	if err != nil {
		return nil, err
	}
	if from.Path == to.Path {
		return nil, fmt.Errorf("docservice: move target equals source: %w", apperr.ErrInvalidArgument)
	}
	data, err := s.store.Read(from.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("docservice: %s: %w", from.Path, apperr.ErrNotFound)
		}
		return nil, err
	}
	if _, err := s.store.Read(to.Path); err == nil {
		return nil, fmt.Errorf("docservice: %s: %w", to.Path, apperr.ErrAlreadyExists)
	}
	if err := s.store.Move(from.Path, to.Path); err != nil {
		return nil, err
	}
	s.cache.Invalidate(from.Path)
	s.cache.Invalidate(to.Path)
	if err := s.db.DeleteDocument(from.Path); err != nil {
		return nil, err
	}
	if err := index.IndexDocument(s.db, to.Path, data, time.Now().UTC()); err != nil {
		return nil, err
	}
	return s.detailFor(to.Path)
}

// ArchiveDocument moves a document under /archived/ with a timestamped
// name and writes an audit sidecar next to it. The archived copy stays
// indexed and searchable under the archived namespace.
func (s *Service) ArchiveDocument(_ context.Context, rawPath string) (*ArchiveResult, error) {
	da, err := s.batch.ParseDocument(rawPath)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(da.Path, archivePrefix) {
		return nil, fmt.Errorf("docservice: %s is already archived: %w", da.Path, apperr.ErrInvalidArgument)
	}
	data, err := s.store.Read(da.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("docservice: %s: %w", da.Path, apperr.ErrNotFound)
		}
		return nil, err
	}

	now := time.Now().UTC()
	auditID := uuid.NewString()
	dest := fmt.Sprintf("%s%s-%s.md", archivePrefix, now.Format("20060102-150405"), da.Slug)
	if _, err := s.store.Read(dest); err == nil {
		// Same document slug archived twice within a second.
		dest = fmt.Sprintf("%s%s-%s-%s.md", archivePrefix, now.Format("20060102-150405"), da.Slug, auditID[:8])
	}

	if err := s.store.Move(da.Path, dest); err != nil {
		return nil, err
	}

	audit, _ := json.Marshal(map[string]any{
		"id":          auditID,
		"from":        da.Path,
		"to":          dest,
		"archived_at": now.Format(time.RFC3339),
	})
	if err := s.store.Write(dest+".audit", audit); err != nil {
		s.logger.Warn("archive audit write failed",
			slog.String("path", dest),
			slog.String("error", err.Error()))
	}

	s.cache.Invalidate(da.Path)
	if err := s.db.DeleteDocument(da.Path); err != nil {
		return nil, err
	}
	if err := index.IndexDocument(s.db, dest, data, now); err != nil {
		s.logger.Warn("archive reindex failed",
			slog.String("path", dest),
			slog.String("error", err.Error()))
	}

	return &ArchiveResult{From: da.Path, To: dest, AuditID: auditID, ArchivedAt: now}, nil
}

// ListDocuments returns one page of indexed documents.
func (s *Service) ListDocuments(_ context.Context, namespace string, limit, offset int) ([]DocumentListItem, int, error) {
	rows, total, err := s.db.ListDocuments(namespace, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items := make([]DocumentListItem, len(rows))
	for i, r := range rows {
		items[i] = DocumentListItem{
			Path:      r.Path,
			Title:     r.Title,
			Namespace: r.Namespace,
			Checksum:  r.Checksum,
			Keywords:  nonNilSlice(r.Keywords),
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index, then warms the cache
// with the hits: a search is usually followed by reads of its results.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("docservice: empty search query: %w", apperr.ErrInvalidArgument)
	}
	results, err := s.db.Search(query, limit)
	if err != nil {
		return nil, err
	}
	for _, r := range results {
		if _, err := s.cache.Get(r.Path, cache.Search); err != nil {
			s.logger.Debug("search warm skipped",
				slog.String("path", r.Path),
				slog.String("error", err.Error()))
		}
	}
	return results, nil
}

// Backlinks returns every reference link pointing at the given document.
func (s *Service) Backlinks(_ context.Context, rawPath string) ([]models.Link, error) {
	da, err := s.batch.ParseDocument(rawPath)
	if err != nil {
		return nil, err
	}
	bl, err := s.db.Backlinks(da.Path)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(bl), nil
}

// Graph returns all nodes and links of the reference graph.
func (s *Service) Graph(_ context.Context) ([]index.GraphNode, []models.Link, error) {
	nodes, links, err := s.db.Graph()
	if err != nil {
		return nil, nil, err
	}
	return nonNilSlice(nodes), nonNilSlice(links), nil
}

// Fingerprints returns a lightweight summary of every indexed document.
func (s *Service) Fingerprints(_ context.Context) ([]models.Fingerprint, error) {
	fps, err := s.db.Fingerprints()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(fps), nil
}

// ResolveReferences extracts the references of a document (or one of its
// sections) and loads the referenced content transitively, depth-bounded.
func (s *Service) ResolveReferences(ctx context.Context, rawPath, rawSection string, maxDepth int) ([]*refs.Node, error) {
	da, err := s.batch.ParseDocument(rawPath)
	if err != nil {
		return nil, err
	}
	doc, err := s.cache.Get(da.Path, cache.Direct)
	if err != nil {
		return nil, err
	}

	text := doc.Content
	if strings.TrimSpace(rawSection) != "" {
		sec, err := s.batch.ParseSection(rawSection, da)
		if err != nil {
			return nil, err
		}
		h, ok := doc.ResolveSection(sec.FullPath)
		if !ok {
			return nil, &apperr.SectionNotFoundError{
				Document:  sec.Document.Path,
				Slug:      sec.FullPath,
				Available: doc.Slugs(),
			}
		}
		text = doc.SectionText(h)
	}

	rs := refs.Normalize(refs.Extract(text), da)
	return nonNilSlice(s.resolver.Load(ctx, rs, refs.ClampDepth(maxDepth))), nil
}

// ClearAddressBatch drops all memoized address parses, ending the current
// batch.
func (s *Service) ClearAddressBatch() {
	s.batch.Clear()
}

// parseSection parses a section reference, using rawDoc as the containing
// document when given. rawSection may override it with a combined
// "path.md#slug" form.
func (s *Service) parseSection(rawDoc, rawSection string) (addr.SectionAddress, error) {
	var da addr.DocumentAddress
	if strings.TrimSpace(rawDoc) != "" {
		parsed, err := s.batch.ParseDocument(rawDoc)
		if err != nil {
			return addr.SectionAddress{}, err
		}
		da = parsed
	}
	return s.batch.ParseSection(rawSection, da)
}

// reindex re-reads a document from storage and upserts it into the index.
func (s *Service) reindex(path string) error {
	data, err := s.store.Read(path)
	if err != nil {
		return err
	}
	return index.IndexDocument(s.db, path, data, time.Now().UTC())
}

// detailFor loads a document through the cache and builds its detail view.
func (s *Service) detailFor(path string) (*DocumentDetail, error) {
	doc, err := s.cache.Get(path, cache.Direct)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(doc)
}

// buildDetail constructs a DocumentDetail from a cached document.
func (s *Service) buildDetail(doc *models.Document) (*DocumentDetail, error) {
	bl, err := s.db.Backlinks(doc.Meta.Path)
	if err != nil {
		return nil, err
	}
	fm, _ := parser.Frontmatter(doc.Content)
	return &DocumentDetail{
		Path:        doc.Meta.Path,
		Title:       doc.Meta.Title,
		Namespace:   doc.Meta.Namespace,
		Content:     doc.Content,
		Checksum:    doc.Meta.Checksum,
		Headings:    doc.Headings,
		Frontmatter: fm,
		Backlinks:   nonNilSlice(bl),
		UpdatedAt:   doc.Meta.UpdatedAt,
	}, nil
}

// sectionDetail builds the section view for a resolved heading.
func sectionDetail(doc *models.Document, fullPath string, h models.Heading) *SectionDetail {
	return &SectionDetail{
		Document: doc.Meta.Path,
		Slug:     h.Slug,
		FullPath: fullPath,
		Title:    h.Title,
		Depth:    h.Depth,
		Body:     doc.SectionBody(h),
		Checksum: doc.Meta.Checksum,
	}
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
