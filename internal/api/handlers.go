package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/ansuz/internal/docservice"
	"github.com/starford/ansuz/internal/sections"
)

// maxBodyBytes bounds document payloads accepted over HTTP.
const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *docservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *docservice.Service) *Handler {
	return &Handler{svc: svc}
}

// docPath extracts the document path from the URL (everything after the
// wildcard prefix). Supports encoded slashes from OpenAPI clients
// (e.g. notes%2Fapi.md).
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// respondError writes a taxonomy error as a structured payload. Errors
// outside the taxonomy are logged and masked as internal.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeJSON(w, status, errResponse{Error: "internal error", Code: "internal"})
		return
	}
	writeJSON(w, status, errorFor(err))
}

// ListDocuments handles GET /api/documents.
//
//	@Summary		List documents with optional pagination and namespace filter
//	@Tags			documents
//	@Produce		json
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			namespace	query		string	false	"Filter by namespace"
//	@Success		200			{object}	DocumentListResponse
//	@Security		BearerAuth
//	@Router			/documents [get]
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListDocuments(r.Context(), q.Get("namespace"), limit, offset)
	if err != nil {
		h.respondError(w, r, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: items, Total: total})
}

// GetDocument handles GET /api/documents/*.
//
// With a section or task query parameter the response narrows to the
// addressed heading range instead of the whole document.
//
//	@Summary		Get a document, or one of its sections or tasks
//	@Tags			documents
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Param			section	query		string	false	"Section reference, e.g. #endpoints/list"
//	@Param			task	query		string	false	"Task reference under a Tasks heading"
//	@Success		200		{object}	DocumentDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [get]
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	q := r.URL.Query()
	if ref := q.Get("section"); ref != "" {
		sec, err := h.svc.GetSection(r.Context(), path, ref)
		if err != nil {
			h.respondError(w, r, "get section", err)
			return
		}
		writeJSON(w, http.StatusOK, sec)
		return
	}
	if ref := q.Get("task"); ref != "" {
		task, err := h.svc.GetTask(r.Context(), path, ref)
		if err != nil {
			h.respondError(w, r, "get task", err)
			return
		}
		writeJSON(w, http.StatusOK, task)
		return
	}

	doc, err := h.svc.GetDocument(r.Context(), path)
	if err != nil {
		h.respondError(w, r, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// CreateDocument handles POST /api/documents.
//
//	@Summary		Create a new document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateDocumentRequest	true	"Document to create"
//	@Success		201		{object}	DocumentDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents [post]
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	doc, err := h.svc.CreateDocument(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		h.respondError(w, r, "create document", err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// UpdateDocument handles PUT /api/documents/*.
//
//	@Summary		Replace a document with optimistic concurrency
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string					true	"Document path"
//	@Param			If-Match	header	string					false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	UpdateDocumentRequest	true	"Replacement content"
//	@Success		200			{object}	DocumentDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [put]
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	doc, err := h.svc.UpdateDocument(r.Context(), path, []byte(req.Content), ifMatch)
	if err != nil {
		h.respondError(w, r, "update document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// EditSection handles PATCH /api/documents/*.
//
//	@Summary		Apply one section mutation to a document
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Document path"
//	@Param			body	body		EditSectionRequest	true	"Mutation to apply"
//	@Success		200		{object}	EditResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [patch]
func (h *Handler) EditSection(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req EditSectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Section == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("section is required"))
		return
	}
	op, err := sections.ParseOp(req.Op)
	if err != nil {
		h.respondError(w, r, "edit section", err)
		return
	}

	res, err := h.svc.EditSection(r.Context(), path, req.Section, sections.Request{
		Op:      op,
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		h.respondError(w, r, "edit section", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DeleteDocument handles DELETE /api/documents/*.
//
//	@Summary		Delete a document
//	@Tags			documents
//	@Param			path	path	string	true	"Document path"
//	@Success		204		"Document deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/documents/{path} [delete]
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteDocument(r.Context(), path); err != nil {
		h.respondError(w, r, "delete document", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across documents
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		h.respondError(w, r, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Context handles GET /api/context.
//
//	@Summary		Resolve the reference tree of a document or section
//	@Tags			context
//	@Produce		json
//	@Param			path	query		string	true	"Origin document path"
//	@Param			section	query		string	false	"Limit extraction to one section"
//	@Param			depth	query		int		false	"Traversal depth 1-5 (default 3)"
//	@Success		200		{object}	ContextResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/context [get]
func (h *Handler) Context(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'path' is required"))
		return
	}
	depth, _ := strconv.Atoi(q.Get("depth"))

	nodes, err := h.svc.ResolveReferences(r.Context(), path, q.Get("section"), depth)
	if err != nil {
		h.respondError(w, r, "resolve context", err)
		return
	}
	writeJSON(w, http.StatusOK, ContextResponse{References: nodes})
}

// Backlinks handles GET /api/backlinks/*.
//
//	@Summary		List documents referencing the given document
//	@Tags			backlinks
//	@Produce		json
//	@Param			path	path		string	true	"Target document path"
//	@Success		200		{object}	BacklinksResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backlinks/{path} [get]
func (h *Handler) Backlinks(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	links, err := h.svc.Backlinks(r.Context(), path)
	if err != nil {
		h.respondError(w, r, "backlinks", err)
		return
	}
	writeJSON(w, http.StatusOK, BacklinksResponse{Backlinks: links})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the document reference graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.svc.Graph(r.Context())
	if err != nil {
		h.respondError(w, r, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nodes, Links: links})
}

// Fingerprints handles GET /api/fingerprints.
//
//	@Summary		List lightweight fingerprints of every indexed document
//	@Tags			fingerprints
//	@Produce		json
//	@Success		200	{object}	FingerprintsResponse
//	@Security		BearerAuth
//	@Router			/fingerprints [get]
func (h *Handler) Fingerprints(w http.ResponseWriter, r *http.Request) {
	fps, err := h.svc.Fingerprints(r.Context())
	if err != nil {
		h.respondError(w, r, "fingerprints", err)
		return
	}
	writeJSON(w, http.StatusOK, FingerprintsResponse{Fingerprints: fps})
}

// Move handles POST /api/move.
//
//	@Summary		Rename a document within the workspace
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		MoveDocumentRequest	true	"Source and target paths"
//	@Success		200		{object}	DocumentDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/move [post]
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req MoveDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return
	}
	doc, err := h.svc.MoveDocument(r.Context(), req.From, req.To)
	if err != nil {
		h.respondError(w, r, "move document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Archive handles POST /api/archive.
//
//	@Summary		Archive a document under /archived with an audit record
//	@Tags			documents
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ArchiveDocumentRequest	true	"Document to archive"
//	@Success		200		{object}	ArchiveResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/archive [post]
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ArchiveDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	res, err := h.svc.ArchiveDocument(r.Context(), req.Path)
	if err != nil {
		h.respondError(w, r, "archive document", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
