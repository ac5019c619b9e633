package index

import (
	"os"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/fingerprint"
	"github.com/starford/ansuz/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "ansuz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&count); err != nil {
		t.Fatalf("documents table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM links`).Scan(&count); err != nil {
		t.Fatalf("links table missing: %v", err)
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := DocRow{
		Path:      "/hello.md",
		Title:     "Hello World",
		Namespace: "root",
		Checksum:  "abc123",
		Keywords:  []string{"hello", "world"},
		UpdatedAt: time.Now(),
	}
	links := []models.Link{{Source: "/hello.md", Target: "/other.md"}}
	if err := db.UpsertDocument(row, "This is a hello world document.", links); err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}
	cs, err := db.GetChecksum("/hello.md")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}
}

func TestBacklinks(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocRow{Path: "/a.md", Checksum: "1", UpdatedAt: time.Now()}, "body",
		[]models.Link{{Source: "/a.md", Target: "/b.md", Section: "overview"}})
	_ = db.UpsertDocument(DocRow{Path: "/c.md", Checksum: "2", UpdatedAt: time.Now()}, "body",
		[]models.Link{{Source: "/c.md", Target: "/b.md"}})

	bl, err := db.Backlinks("/b.md")
	if err != nil {
		t.Fatalf("Backlinks: %v", err)
	}
	if len(bl) != 2 {
		t.Fatalf("expected 2 backlinks, got %d", len(bl))
	}
	if bl[0].Source != "/a.md" || bl[0].Section != "overview" {
		t.Errorf("first backlink = %+v", bl[0])
	}
}

func TestDeleteDocument(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocRow{Path: "/del.md", Checksum: "x", UpdatedAt: time.Now()}, "body",
		[]models.Link{{Source: "/del.md", Target: "/target.md"}})

	if err := db.DeleteDocument("/del.md"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	cs, _ := db.GetChecksum("/del.md")
	if cs != "" {
		t.Errorf("deleted document still has checksum %q", cs)
	}
	bl, _ := db.Backlinks("/target.md")
	if len(bl) != 0 {
		t.Errorf("expected 0 backlinks after delete, got %d", len(bl))
	}
}

func TestUpsertUpdatesExisting(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertDocument(DocRow{Path: "/up.md", Title: "Old", Checksum: "1", UpdatedAt: now}, "old body",
		[]models.Link{{Source: "/up.md", Target: "/x.md"}})
	_ = db.UpsertDocument(DocRow{Path: "/up.md", Title: "New", Checksum: "2", Keywords: []string{"new"}, UpdatedAt: now}, "new body",
		[]models.Link{{Source: "/up.md", Target: "/y.md"}})

	cs, _ := db.GetChecksum("/up.md")
	if cs != "2" {
		t.Errorf("checksum = %q, want %q", cs, "2")
	}
	bl, _ := db.Backlinks("/x.md")
	if len(bl) != 0 {
		t.Error("old link should be removed on upsert")
	}
	bl, _ = db.Backlinks("/y.md")
	if len(bl) != 1 {
		t.Error("new link should exist")
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("/nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestGetDocument(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocRow{
		Path: "/g.md", Title: "G", Namespace: "root", Checksum: "1",
		Keywords: []string{"alpha", "beta"}, UpdatedAt: time.Now(),
	}, "body", nil)

	row, err := db.GetDocument("/g.md")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if row == nil || row.Title != "G" || len(row.Keywords) != 2 {
		t.Errorf("row = %+v", row)
	}

	row, err = db.GetDocument("/missing.md")
	if err != nil {
		t.Fatalf("GetDocument missing: %v", err)
	}
	if row != nil {
		t.Errorf("expected nil row for missing path, got %+v", row)
	}
}

func TestListDocuments(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertDocument(DocRow{Path: "/a.md", Namespace: "root", Checksum: "1", UpdatedAt: now}, "", nil)
	_ = db.UpsertDocument(DocRow{Path: "/notes/b.md", Namespace: "notes", Checksum: "2", UpdatedAt: now}, "", nil)
	_ = db.UpsertDocument(DocRow{Path: "/notes/c.md", Namespace: "notes", Checksum: "3", UpdatedAt: now}, "", nil)

	rows, total, err := db.ListDocuments("", 2, 0)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if total != 3 || len(rows) != 2 {
		t.Fatalf("page = %d rows, total %d", len(rows), total)
	}
	if rows[0].Path != "/a.md" || rows[1].Path != "/notes/b.md" {
		t.Errorf("order = %q, %q", rows[0].Path, rows[1].Path)
	}

	rows, total, err = db.ListDocuments("", 2, 2)
	if err != nil {
		t.Fatalf("ListDocuments offset: %v", err)
	}
	if total != 3 || len(rows) != 1 || rows[0].Path != "/notes/c.md" {
		t.Errorf("offset page = %+v, total %d", rows, total)
	}

	rows, total, err = db.ListDocuments("notes", 10, 0)
	if err != nil {
		t.Fatalf("ListDocuments namespace: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Errorf("namespace filter = %d rows, total %d", len(rows), total)
	}
}

func TestGraph(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertDocument(DocRow{Path: "/a.md", Title: "A", Namespace: "root", Checksum: "1", UpdatedAt: now}, "",
		[]models.Link{{Source: "/a.md", Target: "/b.md", Section: "intro"}})
	_ = db.UpsertDocument(DocRow{Path: "/b.md", Title: "B", Namespace: "root", Checksum: "2", UpdatedAt: now}, "", nil)

	nodes, links, err := db.Graph()
	if err != nil {
		t.Fatalf("Graph: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(nodes))
	}
	if len(links) != 1 || links[0].Target != "/b.md" || links[0].Section != "intro" {
		t.Errorf("links = %+v", links)
	}
}

func TestFingerprintRows(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocRow{
		Path: "/fp.md", Title: "FP", Namespace: "root", Checksum: "c1",
		Keywords: []string{"one", "two"}, UpdatedAt: time.Now(),
	}, "body", nil)

	fps, err := db.Fingerprints()
	if err != nil {
		t.Fatalf("Fingerprints: %v", err)
	}
	if len(fps) != 1 {
		t.Fatalf("fingerprints = %d, want 1", len(fps))
	}
	if fps[0].Checksum != "c1" || len(fps[0].Keywords) != 2 {
		t.Errorf("fingerprint = %+v", fps[0])
	}
}

func TestSearch_Basic(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertDocument(DocRow{Path: "/s.md", Title: "Search Me", Checksum: "1", UpdatedAt: time.Now()}, "uniqueword appears here", nil)

	results, err := db.Search("uniqueword", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].Path != "/s.md" {
		t.Errorf("search results = %+v, want 1 hit for /s.md", results)
	}
}

func TestIndexDocumentPipeline(t *testing.T) {
	db := testDB(t)
	content := "---\ntitle: API Guide\n---\n\n# API Guide\n\nSee @/notes/todo.md#next-steps and @/research/papers.md.\n"

	if err := IndexDocument(db, "/guides/api.md", []byte(content), time.Now()); err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}

	row, err := db.GetDocument("/guides/api.md")
	if err != nil || row == nil {
		t.Fatalf("GetDocument: %v, %+v", err, row)
	}
	if row.Title != "API Guide" {
		t.Errorf("title = %q", row.Title)
	}
	if row.Namespace != "guides" {
		t.Errorf("namespace = %q", row.Namespace)
	}
	if row.Checksum != fingerprint.Hash([]byte(content)) {
		t.Error("checksum mismatch")
	}

	bl, _ := db.Backlinks("/notes/todo.md")
	if len(bl) != 1 || bl[0].Source != "/guides/api.md" || bl[0].Section != "next-steps" {
		t.Errorf("backlinks for todo = %+v", bl)
	}
	bl, _ = db.Backlinks("/research/papers.md")
	if len(bl) != 1 || bl[0].Section != "" {
		t.Errorf("backlinks for papers = %+v", bl)
	}
}
