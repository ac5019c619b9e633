package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/ansuz/internal/docservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *docservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Documents CRUD plus section edits.
	r.Get("/documents", h.ListDocuments)
	r.Post("/documents", h.CreateDocument)
	r.Get("/documents/*", h.GetDocument)
	r.Put("/documents/*", h.UpdateDocument)
	r.Patch("/documents/*", h.EditSection)
	r.Delete("/documents/*", h.DeleteDocument)

	// Workspace-level operations.
	r.Post("/move", h.Move)
	r.Post("/archive", h.Archive)

	// Search, context, and graph views.
	r.Get("/search", h.Search)
	r.Get("/context", h.Context)
	r.Get("/backlinks/*", h.Backlinks)
	r.Get("/graph", h.Graph)
	r.Get("/fingerprints", h.Fingerprints)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
