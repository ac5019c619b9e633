// Package mcpserver exposes the document substrate as MCP (Model Context
// Protocol) tools over stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/docservice"
	"github.com/starford/ansuz/internal/refs"
	"github.com/starford/ansuz/internal/sections"
)

// Server wraps the MCP server with Ansuz document tools.
type Server struct {
	mcp *server.MCPServer
	svc *docservice.Service
}

// New creates an MCP server with all document tools registered.
func New(svc *docservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read a markdown document: content, title, heading outline and backlinks. "+
			"The returned checksum is the token for optimistic-concurrency on later writes."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path (e.g. guides/api.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("read_section",
		mcp.WithDescription("Read a single section of a document by slug. Hierarchical slugs "+
			"(parent/child) disambiguate repeated headings. When the section is missing the error "+
			"lists the slugs that do exist."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path")),
		mcp.WithString("section", mcp.Required(), mcp.Description("Section slug, with or without leading # (e.g. endpoints/list)")),
		mcp.WithBoolean("task", mcp.Description("Require the section to sit under a Tasks heading")),
	), s.readSection)

	s.mcp.AddTool(mcp.NewTool("edit_section",
		mcp.WithDescription("Edit one section of a document. Operations: replace, append, prepend "+
			"rewrite or extend the section body; insert_before, insert_after, append_child create a "+
			"new heading (title required); remove deletes the section and its subtree. "+
			"Documents MUST follow the canonical format; read the ansuz://document-format resource first."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path")),
		mcp.WithString("section", mcp.Required(), mcp.Description("Target section slug")),
		mcp.WithString("op", mcp.Required(), mcp.Description("One of: replace, append, prepend, insert_before, insert_after, append_child, remove")),
		mcp.WithString("title", mcp.Description("Heading title for operations that create a section")),
		mcp.WithString("content", mcp.Description("Markdown body text (ignored by remove)")),
	), s.editSection)

	s.mcp.AddTool(mcp.NewTool("create_document",
		mcp.WithDescription("Create a new markdown document. Content MUST follow the canonical "+
			"document format (ATX headings, optional YAML frontmatter with title, @references for "+
			"cross-links). Read the ansuz://document-format resource first."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path for the new document (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content following the document format")),
	), s.createDocument)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List documents with title, namespace, keywords and checksum."),
		mcp.WithString("namespace", mcp.Description("Optional namespace filter (top-level directory; 'root' for the workspace root)")),
		mcp.WithNumber("limit", mcp.Description("Maximum entries to return (default 100)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search across document titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results to return (default 20)")),
	), s.searchDocuments)

	s.mcp.AddTool(mcp.NewTool("build_context",
		mcp.WithDescription("Resolve the @references reachable from a document (or one section of it) "+
			"into a nested context tree. Cycles are truncated and unresolvable references are dropped, "+
			"so the result may be partial but the call never fails on graph shape."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document to start from")),
		mcp.WithString("section", mcp.Description("Optional section slug to scope reference extraction")),
		mcp.WithNumber("depth", mcp.Description("Traversal depth 1-5 (default 3)")),
	), s.buildContext)

	s.mcp.AddTool(mcp.NewTool("get_backlinks",
		mcp.WithDescription("Find all documents whose @references point at the given document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document to find backlinks for")),
	), s.getBacklinks)

	s.mcp.AddTool(mcp.NewTool("move_document",
		mcp.WithDescription("Move a document to a new path. The search index and reference graph follow."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Current document path")),
		mcp.WithString("to", mcp.Required(), mcp.Description("New document path")),
	), s.moveDocument)

	s.mcp.AddTool(mcp.NewTool("archive_document",
		mcp.WithDescription("Move a document into the archived/ namespace under a timestamped name "+
			"and record an audit entry. Archived documents stay readable and searchable."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document to archive")),
	), s.archiveDocument)

	// Resource: document format contract.
	s.mcp.AddResource(
		mcp.NewResource("ansuz://document-format", "Document Format Contract",
			mcp.WithResourceDescription("Canonical markdown document format that all documents must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDocumentFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// jsonResult marshals v indented for the tool caller.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// intArg extracts an integer argument, returning defaultVal if the key is
// missing or not a number (JSON numbers arrive as float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.GetDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(doc)
}

func (s *Server) readSection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	section, err := req.RequireString("section")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var sec *docservice.SectionDetail
	if boolArg(req, "task", false) {
		sec, err = s.svc.GetTask(ctx, path, section)
	} else {
		sec, err = s.svc.GetSection(ctx, path, section)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(sec)
}

func (s *Server) editSection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	section, err := req.RequireString("section")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opName, err := req.RequireString("op")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	op, err := sections.ParseOp(opName)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.svc.EditSection(ctx, path, section, sections.Request{
		Op:      op,
		Title:   req.GetString("title", ""),
		Content: req.GetString("content", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) createDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.CreateDocument(ctx, path, []byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(doc)
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	namespace := req.GetString("namespace", "")
	limit := intArg(req, "limit", 100)

	docs, total, err := s.svc.ListDocuments(ctx, namespace, limit, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"documents": docs, "total": total})
}

func (s *Server) searchDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, intArg(req, "limit", 20))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) buildContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	nodes, err := s.svc.ResolveReferences(ctx, path, req.GetString("section", ""), intArg(req, "depth", refs.DefaultMaxDepth))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(nodes)
}

func (s *Server) getBacklinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.Backlinks(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText("no backlinks found"), nil
	}
	return jsonResult(links)
}

func (s *Server) moveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.MoveDocument(ctx, from, to)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved to %s (checksum %s)", doc.Path, doc.Checksum)), nil
}

func (s *Server) archiveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.ArchiveDocument(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) readDocumentFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "ansuz://document-format",
			MIMEType: "text/markdown",
			Text:     DocumentFormatContract,
		},
	}, nil
}
