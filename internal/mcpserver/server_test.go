package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/cache"
	"github.com/starford/ansuz/internal/docservice"
	"github.com/starford/ansuz/internal/index"
	"github.com/starford/ansuz/internal/refs"
	"github.com/starford/ansuz/internal/sections"
	"github.com/starford/ansuz/internal/storage"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	dbFile, err := os.CreateTemp("", "ansuz-mcp-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := cache.New(store, 0, 0, 0)
	svc := docservice.NewService(store, db, c, sections.NewEditor(store, c), refs.NewResolver(c, logger), logger)
	return New(svc)
}

// callTool dispatches to the handler methods directly; mcp-go has no
// in-process call helper.
func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "read_document":
		result, err = srv.readDocument(ctx, req)
	case "read_section":
		result, err = srv.readSection(ctx, req)
	case "edit_section":
		result, err = srv.editSection(ctx, req)
	case "create_document":
		result, err = srv.createDocument(ctx, req)
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	case "search_documents":
		result, err = srv.searchDocuments(ctx, req)
	case "build_context":
		result, err = srv.buildContext(ctx, req)
	case "get_backlinks":
		result, err = srv.getBacklinks(ctx, req)
	case "move_document":
		result, err = srv.moveDocument(ctx, req)
	case "archive_document":
		result, err = srv.archiveDocument(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

const guideDoc = `# Guide

Start with @/other.md for background.

## Usage

Run the thing.

## Tasks

### Ship it

Soon.
`

func TestCreateAndReadDocument(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "create_document", map[string]any{
		"path":    "guide.md",
		"content": guideDoc,
	})
	if r.IsError {
		t.Fatalf("create failed: %s", resultText(r))
	}
	var created docservice.DocumentDetail
	if err := json.Unmarshal([]byte(resultText(r)), &created); err != nil {
		t.Fatalf("create result not JSON: %v", err)
	}
	if created.Path != "/guide.md" || created.Title != "Guide" {
		t.Errorf("created = %+v", created)
	}

	r = callTool(t, srv, "read_document", map[string]any{"path": "guide.md"})
	var doc docservice.DocumentDetail
	_ = json.Unmarshal([]byte(resultText(r)), &doc)
	if doc.Checksum != created.Checksum {
		t.Error("read returned different checksum than create")
	}
	if len(doc.Headings) != 4 {
		t.Errorf("headings = %d, want 4", len(doc.Headings))
	}
}

func TestReadDocumentMissing(t *testing.T) {
	srv := testServer(t)

	r := callTool(t, srv, "read_document", map[string]any{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing document")
	}
}

func TestReadSection(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_document", map[string]any{"path": "guide.md", "content": guideDoc})

	r := callTool(t, srv, "read_section", map[string]any{"path": "guide.md", "section": "usage"})
	if r.IsError {
		t.Fatalf("read_section failed: %s", resultText(r))
	}
	var sec docservice.SectionDetail
	_ = json.Unmarshal([]byte(resultText(r)), &sec)
	if sec.Slug != "usage" || sec.Body != "Run the thing." {
		t.Errorf("section = %+v", sec)
	}
}

func TestReadSectionMissingListsAvailable(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_document", map[string]any{"path": "guide.md", "content": guideDoc})

	r := callTool(t, srv, "read_section", map[string]any{"path": "guide.md", "section": "nope"})
	if !r.IsError {
		t.Fatal("expected error for missing section")
	}
	if !strings.Contains(resultText(r), "usage") {
		t.Errorf("error should list available sections, got %q", resultText(r))
	}
}

func TestReadSectionAsTask(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_document", map[string]any{"path": "guide.md", "content": guideDoc})

	r := callTool(t, srv, "read_section", map[string]any{
		"path": "guide.md", "section": "ship-it", "task": true,
	})
	if r.IsError {
		t.Fatalf("task read failed: %s", resultText(r))
	}
	var sec docservice.SectionDetail
	_ = json.Unmarshal([]byte(resultText(r)), &sec)
	if sec.Title != "Ship it" {
		t.Errorf("task = %+v", sec)
	}

	r = callTool(t, srv, "read_section", map[string]any{
		"path": "guide.md", "section": "usage", "task": true,
	})
	if !r.IsError {
		t.Error("usage is not under Tasks, task read should fail")
	}
}

func TestEditSection(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_document", map[string]any{"path": "guide.md", "content": guideDoc})

	r := callTool(t, srv, "edit_section", map[string]any{
		"path":    "guide.md",
		"section": "usage",
		"op":      "replace",
		"content": "Run it twice.",
	})
	if r.IsError {
		t.Fatalf("edit failed: %s", resultText(r))
	}
	var res sections.Result
	_ = json.Unmarshal([]byte(resultText(r)), &res)
	if !res.Updated || res.Slug != "usage" {
		t.Errorf("result = %+v", res)
	}

	r = callTool(t, srv, "read_section", map[string]any{"path": "guide.md", "section": "usage"})
	var sec docservice.SectionDetail
	_ = json.Unmarshal([]byte(resultText(r)), &sec)
	if sec.Body != "Run it twice." {
		t.Errorf("body after edit = %q", sec.Body)
	}
}

func TestEditSectionBadOp(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_document", map[string]any{"path": "guide.md", "content": guideDoc})

	r := callTool(t, srv, "edit_section", map[string]any{
		"path": "guide.md", "section": "usage", "op": "explode",
	})
	if !r.IsError {
		t.Error("expected error for unknown op")
	}
}

func TestCreateDocumentDuplicate(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_document", map[string]any{"path": "dup.md", "content": "# Dup\n"})

	r := callTool(t, srv, "create_document", map[string]any{"path": "dup.md", "content": "# Dup\n"})
	if !r.IsError {
		t.Error("expected error for duplicate create")
	}
}

func TestListDocuments(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_document", map[string]any{"path": "a.md", "content": "# A\n"})
	callTool(t, srv, "create_document", map[string]any{"path": "notes/b.md", "content": "# B\n"})

	r := callTool(t, srv, "list_documents", map[string]any{})
	if r.IsError {
		t.Fatalf("list failed: %s", resultText(r))
	}
	var resp struct {
		Documents []docservice.DocumentListItem `json:"documents"`
		Total     int                           `json:"total"`
	}
	_ = json.Unmarshal([]byte(resultText(r)), &resp)
	if resp.Total != 2 {
		t.Errorf("total = %d, want 2", resp.Total)
	}

	r = callTool(t, srv, "list_documents", map[string]any{"namespace": "notes"})
	_ = json.Unmarshal([]byte(resultText(r)), &resp)
	if resp.Total != 1 || resp.Documents[0].Path != "/notes/b.md" {
		t.Errorf("namespace list = %+v", resp)
	}
}

func TestSearchDocuments(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_document", map[string]any{
		"path": "find.md", "content": "# Find\n\nxylophone maintenance\n",
	})

	r := callTool(t, srv, "search_documents", map[string]any{"query": "xylophone"})
	if r.IsError {
		t.Fatalf("search failed: %s", resultText(r))
	}
	var results []index.SearchResult
	_ = json.Unmarshal([]byte(resultText(r)), &results)
	if len(results) != 1 || results[0].Path != "/find.md" {
		t.Errorf("results = %+v", results)
	}
}

func TestBuildContext(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_document", map[string]any{"path": "guide.md", "content": guideDoc})
	callTool(t, srv, "create_document", map[string]any{
		"path": "other.md", "content": "# Other\n\nBackground reading.\n",
	})

	r := callTool(t, srv, "build_context", map[string]any{"path": "guide.md", "depth": float64(2)})
	if r.IsError {
		t.Fatalf("build_context failed: %s", resultText(r))
	}
	var nodes []*refs.Node
	_ = json.Unmarshal([]byte(resultText(r)), &nodes)
	if len(nodes) != 1 || nodes[0].Path != "/other.md" {
		t.Errorf("nodes = %+v", nodes)
	}
}

func TestGetBacklinks(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_document", map[string]any{"path": "guide.md", "content": guideDoc})
	callTool(t, srv, "create_document", map[string]any{
		"path": "other.md", "content": "# Other\n\nBackground reading.\n",
	})

	r := callTool(t, srv, "get_backlinks", map[string]any{"path": "other.md"})
	if r.IsError {
		t.Fatalf("backlinks failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "/guide.md") {
		t.Errorf("backlinks = %q", resultText(r))
	}

	r = callTool(t, srv, "get_backlinks", map[string]any{"path": "guide.md"})
	if resultText(r) != "no backlinks found" {
		t.Errorf("empty backlinks = %q", resultText(r))
	}
}

func TestMoveDocument(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_document", map[string]any{"path": "drafts/plan.md", "content": "# Plan\n"})

	r := callTool(t, srv, "move_document", map[string]any{"from": "drafts/plan.md", "to": "notes/plan.md"})
	if r.IsError {
		t.Fatalf("move failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "/notes/plan.md") {
		t.Errorf("move result = %q", resultText(r))
	}

	r = callTool(t, srv, "read_document", map[string]any{"path": "drafts/plan.md"})
	if !r.IsError {
		t.Error("source should be gone after move")
	}
}

func TestArchiveDocument(t *testing.T) {
	srv := testServer(t)
	callTool(t, srv, "create_document", map[string]any{"path": "old.md", "content": "# Old\n"})

	r := callTool(t, srv, "archive_document", map[string]any{"path": "old.md"})
	if r.IsError {
		t.Fatalf("archive failed: %s", resultText(r))
	}
	var res docservice.ArchiveResult
	_ = json.Unmarshal([]byte(resultText(r)), &res)
	if !strings.HasPrefix(res.To, "/archived/") || res.AuditID == "" {
		t.Errorf("archive result = %+v", res)
	}
}

func TestDocumentFormatResource(t *testing.T) {
	srv := testServer(t)

	contents, err := srv.readDocumentFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("contents[0] is %T", contents[0])
	}
	if !strings.Contains(tc.Text, "@/") || !strings.Contains(tc.Text, "Tasks") {
		t.Error("contract should document references and tasks")
	}
}
