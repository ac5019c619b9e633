package sections

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/addr"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/cache"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/parser"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/testutil"
)

func newTestEditor(t *testing.T) (*Editor, *storage.FS, *cache.Cache) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	c := cache.New(fs, 0, 0, 0)
	return NewEditor(fs, c), fs, c
}

func seed(t *testing.T, fs *storage.FS, path, content string) {
	t.Helper()
	if err := fs.Write(path, []byte(content)); err != nil {
		t.Fatalf("seed %s: %v", path, err)
	}
}

func readFile(t *testing.T, fs *storage.FS, path string) string {
	t.Helper()
	data, err := fs.Read(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func mustSection(t *testing.T, docPath, ref string) addr.SectionAddress {
	t.Helper()
	da, err := addr.ParseDocument(docPath)
	if err != nil {
		t.Fatalf("ParseDocument(%q): %v", docPath, err)
	}
	sec, err := addr.ParseSection(ref, da)
	if err != nil {
		t.Fatalf("ParseSection(%q): %v", ref, err)
	}
	return sec
}

func parseDoc(content string) *models.Document {
	return models.NewDocument(models.Metadata{}, parser.Outline(content), content)
}

func TestReplaceRoundTrip(t *testing.T) {
	ed, fs, _ := newTestEditor(t)
	seed(t, fs, "/spec.md", "# Spec\n\n## Overview\n\nOld text.\n\n## Details\n\nKeep me.\n")

	res, err := ed.Apply(mustSection(t, "/spec.md", "overview"), Request{Op: OpReplace, Content: "New body with @/other.md ref."})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Updated || res.Slug != "overview" {
		t.Fatalf("unexpected result: %+v", res)
	}

	content := readFile(t, fs, "/spec.md")
	doc := parseDoc(content)
	h, ok := doc.ResolveSection("overview")
	if !ok {
		t.Fatal("overview missing after replace")
	}
	if got := doc.SectionBody(h); got != "New body with @/other.md ref." {
		t.Errorf("round trip body = %q", got)
	}
	d, ok := doc.ResolveSection("details")
	if !ok || doc.SectionBody(d) != "Keep me." {
		t.Errorf("sibling section changed: %q", doc.SectionBody(d))
	}
	if strings.HasSuffix(content, "\n\n") || !strings.HasSuffix(content, "\n") {
		t.Errorf("file tail not normalized: %q", content[len(content)-4:])
	}
}

func TestReplaceRewritesWholeRange(t *testing.T) {
	ed, fs, _ := newTestEditor(t)
	seed(t, fs, "/doc.md", "## Parent\n\nIntro.\n\n### Child\n\nChild body.\n\n## Sibling\n\nS.\n")

	if _, err := ed.Apply(mustSection(t, "/doc.md", "parent"), Request{Op: OpReplace, Content: "Flat."}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	doc := parseDoc(readFile(t, fs, "/doc.md"))
	if _, ok := doc.ResolveSection("child"); ok {
		t.Error("child survived a whole-range replace")
	}
	p, _ := doc.ResolveSection("parent")
	if got := doc.SectionBody(p); got != "Flat." {
		t.Errorf("parent body = %q", got)
	}
	s, ok := doc.ResolveSection("sibling")
	if !ok || doc.SectionBody(s) != "S." {
		t.Error("sibling affected by replace")
	}
}

func TestAppendAtEndOfRange(t *testing.T) {
	ed, fs, _ := newTestEditor(t)
	seed(t, fs, "/doc.md", "## Parent\n\nIntro.\n\n### Child\n\nChild body.\n\n## Sibling\n\nS.\n")

	if _, err := ed.Apply(mustSection(t, "/doc.md", "parent"), Request{Op: OpAppend, Content: "Tail note."}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	content := readFile(t, fs, "/doc.md")
	doc := parseDoc(content)
	c, ok := doc.ResolveSection("parent/child")
	if !ok {
		t.Fatal("child heading lost by append")
	}
	// End-of-range text sits below the last child heading, so it extends
	// that child's range while staying inside the parent's.
	if got := doc.SectionBody(c); got != "Child body.\n\nTail note." {
		t.Errorf("child body = %q", got)
	}
	p, _ := doc.ResolveSection("parent")
	if !strings.HasSuffix(doc.SectionBody(p), "Tail note.") {
		t.Error("parent range does not end with appended text")
	}
	if strings.Index(content, "Tail note.") > strings.Index(content, "## Sibling") {
		t.Error("appended text leaked into sibling")
	}
	s, _ := doc.ResolveSection("sibling")
	if doc.SectionBody(s) != "S." {
		t.Error("sibling changed by append")
	}
}

func TestPrepend(t *testing.T) {
	ed, fs, _ := newTestEditor(t)
	seed(t, fs, "/log.md", "## Log\n\nFirst entry.\n")

	if _, err := ed.Apply(mustSection(t, "/log.md", "log"), Request{Op: OpPrepend, Content: "Newest entry."}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	doc := parseDoc(readFile(t, fs, "/log.md"))
	h, _ := doc.ResolveSection("log")
	if got := doc.SectionBody(h); got != "Newest entry.\n\nFirst entry." {
		t.Errorf("body = %q", got)
	}
}

func TestInsertAfter(t *testing.T) {
	ed, fs, _ := newTestEditor(t)
	seed(t, fs, "/doc.md", "## A\n\nBody a.\n\n## C\n\nBody c.\n")

	res, err := ed.Apply(mustSection(t, "/doc.md", "a"), Request{Op: OpInsertAfter, Title: "B", Content: "Body b."})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Created || res.Slug != "b" {
		t.Fatalf("unexpected result: %+v", res)
	}

	doc := parseDoc(readFile(t, fs, "/doc.md"))
	want := []string{"a", "b", "c"}
	if got := doc.Slugs(); !equalStrings(got, want) {
		t.Fatalf("slug order = %v, want %v", got, want)
	}
	b, _ := doc.ResolveSection("b")
	a, _ := doc.ResolveSection("a")
	if b.Depth != a.Depth {
		t.Errorf("inserted depth %d, sibling depth %d", b.Depth, a.Depth)
	}
	if doc.SectionBody(b) != "Body b." {
		t.Errorf("inserted body = %q", doc.SectionBody(b))
	}
}

func TestInsertBeforeFirstHeading(t *testing.T) {
	ed, fs, _ := newTestEditor(t)
	seed(t, fs, "/doc.md", "## A\n\nBody a.\n")

	res, err := ed.Apply(mustSection(t, "/doc.md", "a"), Request{Op: OpInsertBefore, Title: "Zero"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Slug != "zero" {
		t.Fatalf("slug = %q", res.Slug)
	}

	doc := parseDoc(readFile(t, fs, "/doc.md"))
	if got := doc.Slugs(); !equalStrings(got, []string{"zero", "a"}) {
		t.Fatalf("slug order = %v", got)
	}
	a, _ := doc.ResolveSection("a")
	if doc.SectionBody(a) != "Body a." {
		t.Error("existing section changed by insert")
	}
}

func TestAppendChild(t *testing.T) {
	ed, fs, _ := newTestEditor(t)
	seed(t, fs, "/doc.md", "# Doc\n\n## Api\n\nIntro.\n\n### Get\n\nG.\n\n## Other\n\nO.\n")

	res, err := ed.Apply(mustSection(t, "/doc.md", "api"), Request{Op: OpAppendChild, Title: "Post", Content: "P."})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Created || res.Slug != "post" {
		t.Fatalf("unexpected result: %+v", res)
	}

	content := readFile(t, fs, "/doc.md")
	doc := parseDoc(content)
	h, ok := doc.ResolveSection("api/post")
	if !ok {
		t.Fatal("api/post not resolvable")
	}
	if h.Depth != 3 {
		t.Errorf("child depth = %d, want 3", h.Depth)
	}
	if strings.Index(content, "### Post") < strings.Index(content, "### Get") {
		t.Error("child not appended after existing children")
	}
	if strings.Index(content, "### Post") > strings.Index(content, "## Other") {
		t.Error("child leaked past parent range")
	}
}

func TestAppendChildTooDeep(t *testing.T) {
	ed, fs, _ := newTestEditor(t)
	before := "# A\n\n## B\n\n### C\n\n#### D\n\n##### E\n\n###### F\n\nDeep.\n"
	seed(t, fs, "/deep.md", before)

	_, err := ed.Apply(mustSection(t, "/deep.md", "f"), Request{Op: OpAppendChild, Title: "G"})
	if !errors.Is(err, apperr.ErrMaxDepth) {
		t.Fatalf("err = %v, want ErrMaxDepth", err)
	}
	if got := readFile(t, fs, "/deep.md"); got != before {
		t.Errorf("file modified by failed mutation:\n%s", testutil.Diff(before, got))
	}
}

func TestRemove(t *testing.T) {
	ed, fs, _ := newTestEditor(t)
	seed(t, fs, "/doc.md", "## A\n\nBody a.\n\n## B\n\nBody b.\n\n## C\n\nBody c.\n")

	res, err := ed.Apply(mustSection(t, "/doc.md", "b"), Request{Op: OpRemove})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !res.Removed || res.Slug != "b" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.RemovedText != "## B\n\nBody b.\n\n" {
		t.Errorf("removed text = %q", res.RemovedText)
	}

	doc := parseDoc(readFile(t, fs, "/doc.md"))
	if _, ok := doc.ResolveSection("b"); ok {
		t.Fatal("b still present")
	}
	a, _ := doc.ResolveSection("a")
	c, _ := doc.ResolveSection("c")
	if doc.SectionBody(a) != "Body a." || doc.SectionBody(c) != "Body c." {
		t.Error("sibling content changed by remove")
	}

	_, err = ed.Apply(mustSection(t, "/doc.md", "b"), Request{Op: OpRemove})
	if !errors.Is(err, apperr.ErrSectionNotFound) {
		t.Fatalf("second remove err = %v, want ErrSectionNotFound", err)
	}
	var snf *apperr.SectionNotFoundError
	if !errors.As(err, &snf) {
		t.Fatalf("err type = %T", err)
	}
	if !equalStrings(snf.Available, []string{"a", "c"}) {
		t.Errorf("available = %v", snf.Available)
	}
}

// tamperStore modifies the file after handing out a snapshot, simulating
// an external writer racing the edit.
type tamperStore struct {
	*storage.FS
	tamper func()
}

func (s *tamperStore) Snapshot(path string) (*storage.Snapshot, error) {
	snap, err := s.FS.Snapshot(path)
	if err == nil && s.tamper != nil {
		s.tamper()
		s.tamper = nil
	}
	return snap, err
}

func TestConflictLeavesFileUntouched(t *testing.T) {
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	seed(t, fs, "/doc.md", "## A\n\nOriginal.\n")

	external := "## A\n\nExternal edit.\n"
	ts := &tamperStore{FS: fs, tamper: func() {
		if err := fs.Write("/doc.md", []byte(external)); err != nil {
			t.Fatalf("external write: %v", err)
		}
		abs := filepath.Join(fs.Root(), "doc.md")
		info, err := os.Stat(abs)
		if err != nil {
			t.Fatalf("stat: %v", err)
		}
		bumped := info.ModTime().Add(2 * time.Second)
		if err := os.Chtimes(abs, bumped, bumped); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}}
	ed := NewEditor(ts, cache.New(ts, 0, 0, 0))

	_, err = ed.Apply(mustSection(t, "/doc.md", "a"), Request{Op: OpReplace, Content: "Mine."})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if got := readFile(t, fs, "/doc.md"); got != external {
		t.Errorf("external write clobbered:\n%s", testutil.Diff(external, got))
	}
}

func TestMissingDocument(t *testing.T) {
	ed, _, _ := newTestEditor(t)
	_, err := ed.Apply(mustSection(t, "/nope.md", "a"), Request{Op: OpReplace, Content: "x"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRequestValidation(t *testing.T) {
	ed, fs, _ := newTestEditor(t)
	seed(t, fs, "/doc.md", "## A\n\nBody.\n")
	sec := mustSection(t, "/doc.md", "a")

	if _, err := ed.Apply(sec, Request{Op: "explode"}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("unknown op err = %v", err)
	}
	if _, err := ed.Apply(sec, Request{Op: OpInsertAfter, Content: "no title"}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("missing title err = %v", err)
	}
	if _, err := ParseOp("replace"); err != nil {
		t.Errorf("ParseOp(replace): %v", err)
	}
}

func TestHierarchicalMismatch(t *testing.T) {
	ed, fs, _ := newTestEditor(t)
	seed(t, fs, "/doc.md", "## Api\n\n### Get\n\nG.\n\n## Cli\n\nC.\n")

	_, err := ed.Apply(mustSection(t, "/doc.md", "cli/get"), Request{Op: OpReplace, Content: "x"})
	if !errors.Is(err, apperr.ErrSectionNotFound) {
		t.Fatalf("err = %v, want ErrSectionNotFound", err)
	}
}

func TestInsertSlugIsPositional(t *testing.T) {
	ed, fs, _ := newTestEditor(t)

	// A duplicate title after the insertion point does not constrain the
	// new slug; the later heading is the one that gets renumbered.
	seed(t, fs, "/a.md", "## Intro\n\nI.\n\n## Notes\n\nN.\n")
	res, err := ed.Apply(mustSection(t, "/a.md", "intro"), Request{Op: OpInsertBefore, Title: "Notes"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Slug != "notes" {
		t.Fatalf("slug = %q, want notes", res.Slug)
	}
	doc := parseDoc(readFile(t, fs, "/a.md"))
	renumbered, ok := doc.ResolveSection("notes-1")
	if !ok || doc.SectionBody(renumbered) != "N." {
		t.Error("original section not renumbered to notes-1")
	}

	// A duplicate before the insertion point does constrain it.
	seed(t, fs, "/b.md", "## Notes\n\nN.\n")
	res, err = ed.Apply(mustSection(t, "/b.md", "notes"), Request{Op: OpInsertAfter, Title: "Notes", Content: "More."})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if res.Slug != "notes-1" {
		t.Fatalf("slug = %q, want notes-1", res.Slug)
	}
	doc = parseDoc(readFile(t, fs, "/b.md"))
	h, ok := doc.ResolveSection("notes-1")
	if !ok || doc.SectionBody(h) != "More." {
		t.Error("new section not at notes-1")
	}
}

func TestEditInvalidatesCache(t *testing.T) {
	ed, fs, c := newTestEditor(t)
	seed(t, fs, "/doc.md", "## A\n\nOld.\n")

	doc, err := c.Get("/doc.md", cache.Direct)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	h, _ := doc.ResolveSection("a")
	if doc.SectionBody(h) != "Old." {
		t.Fatalf("seed body = %q", doc.SectionBody(h))
	}

	if _, err := ed.Apply(mustSection(t, "/doc.md", "a"), Request{Op: OpReplace, Content: "New."}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	doc, err = c.Get("/doc.md", cache.Direct)
	if err != nil {
		t.Fatalf("Get after edit: %v", err)
	}
	h, _ = doc.ResolveSection("a")
	if got := doc.SectionBody(h); got != "New." {
		t.Errorf("cache served stale body %q", got)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
