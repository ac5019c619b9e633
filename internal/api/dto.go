package api

import (
	"github.com/starford/ansuz/internal/docservice"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/refs"
	"github.com/starford/ansuz/internal/sections"
)

// CreateDocumentRequest is the request body for creating a document.
type CreateDocumentRequest struct {
	Path    string `json:"path" example:"notes/api.md" validate:"required"`
	Content string `json:"content" example:"# API\nBody" validate:"required"`
}

// UpdateDocumentRequest is the request body for replacing a document.
type UpdateDocumentRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// EditSectionRequest is the request body for a section mutation. Section is
// a section reference within the addressed document ("#slug", "#a/b" or
// "other.md#slug"); Title is required by the operations that create a new
// heading.
type EditSectionRequest struct {
	Section string `json:"section" example:"#endpoints/list" validate:"required"`
	Op      string `json:"op" example:"replace" validate:"required" enums:"replace,append,prepend,insert_before,insert_after,append_child,remove"`
	Title   string `json:"title,omitempty" example:"New Section"`
	Content string `json:"content,omitempty" example:"Body text"`
}

// MoveDocumentRequest is the request body for renaming a document.
type MoveDocumentRequest struct {
	From string `json:"from" example:"drafts/plan.md" validate:"required"`
	To   string `json:"to" example:"notes/plan.md" validate:"required"`
}

// ArchiveDocumentRequest is the request body for archiving a document.
type ArchiveDocumentRequest struct {
	Path string `json:"path" example:"notes/old-plan.md" validate:"required"`
}

// DocumentDetail is the full document response type (aliased from the domain layer).
type DocumentDetail = docservice.DocumentDetail

// SectionDetail is the section response type (aliased from the domain layer).
type SectionDetail = docservice.SectionDetail

// DocumentListItem is a lightweight item in a list response (aliased from the domain layer).
type DocumentListItem = docservice.DocumentListItem

// ArchiveResult reports where a document was archived to (aliased from the domain layer).
type ArchiveResult = docservice.ArchiveResult

// EditResult reports the outcome of a section mutation (aliased from the domain layer).
type EditResult = sections.Result

// DocumentListResponse wraps paginated document listings.
type DocumentListResponse struct {
	Documents []DocumentListItem `json:"documents" validate:"required"`
	Total     int                `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// ContextResponse wraps a resolved reference tree.
type ContextResponse struct {
	References []*refs.Node `json:"references" validate:"required"`
}

// BacklinksResponse wraps the inbound links of a document.
type BacklinksResponse struct {
	Backlinks []models.Link `json:"backlinks" validate:"required"`
}

// GraphResponse wraps the reference graph.
type GraphResponse struct {
	Nodes []index.GraphNode `json:"nodes" validate:"required"`
	Links []models.Link     `json:"links" validate:"required"`
}

// FingerprintsResponse wraps the workspace fingerprint listing.
type FingerprintsResponse struct {
	Fingerprints []models.Fingerprint `json:"fingerprints" validate:"required"`
}
