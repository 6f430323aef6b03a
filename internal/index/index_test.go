package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/starford/nbweb/internal/apperr"
	"github.com/starford/nbweb/internal/models"
	"github.com/starford/nbweb/internal/pathutil"
	"github.com/starford/nbweb/internal/settings"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "nbweb-test-*.db")
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

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// testSyncer creates a notebook under a temp dir, optionally seeded with files.
func testSyncer(t *testing.T, files map[string]string, tweak ...func(*settings.Notebook)) (*Syncer, string) {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		writeFile(t, root, rel, content)
	}
	nb := settings.Default()
	nb.Source = root
	for _, fn := range tweak {
		fn(&nb)
	}
	nb.Normalize()
	paths, err := pathutil.New(nb)
	if err != nil {
		t.Fatalf("pathutil.New: %v", err)
	}
	return NewSyncer(testDB(t), paths, nb, quietLogger(), nil), paths.Root()
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func doc(logical string) *models.Document {
	parts := pathutil.Split(logical)
	return &models.Document{
		SystemPath:      "/src" + logical,
		LogicalPath:     logical,
		LogicalDir:      parts.Dir,
		LogicalBasename: parts.Basename,
		Extension:       parts.Ext,
		ModTime:         time.Unix(1_700_000_000, 250_000_000),
		Meta:            models.Metadata{Title: parts.Name},
		RefName:         parts.Name,
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM documents`).Scan(&count); err != nil {
		t.Fatalf("documents table missing: %v", err)
	}
}

func TestSaveAndGet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	blog := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	d := doc("/posts/trip.md")
	d.Meta.Tags = []string{"travel"}
	d.Meta.ID = "7"
	d.Meta.Other = map[string]any{"author": "sam"}
	d.Todos = []models.TodoItem{{Line: 4, Text: "pack"}}
	d.Tags = []string{"summer", "travel"}
	d.IsBlogged = true
	d.BlogDate = &blog
	d.OutgoingLinks = []string{"/a.html", "/_id/3"}
	d.HTML = "<p>hi</p>"
	d.SearchText = "hi"

	if err := db.Save(ctx, d); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := db.Get(ctx, "/posts/trip.md")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got.Meta.ID != "7" || got.Meta.Other["author"] != "sam" {
		t.Errorf("meta = %+v", got.Meta)
	}
	if !reflect.DeepEqual(got.Todos, d.Todos) {
		t.Errorf("todos = %+v", got.Todos)
	}
	if !reflect.DeepEqual(got.Tags, d.Tags) || !reflect.DeepEqual(got.OutgoingLinks, d.OutgoingLinks) {
		t.Errorf("tags = %v links = %v", got.Tags, got.OutgoingLinks)
	}
	if got.BlogDate == nil || !got.BlogDate.Equal(blog) || !got.IsBlogged {
		t.Errorf("blog date = %v", got.BlogDate)
	}
	if diff := got.ModTime.Sub(d.ModTime); diff > time.Millisecond || diff < -time.Millisecond {
		t.Errorf("mtime drift %v", diff)
	}
	if got.LogicalDir != "/posts" || got.LogicalBasename != "/posts/trip" {
		t.Errorf("parts = %q %q", got.LogicalDir, got.LogicalBasename)
	}
}

func TestGet_NotFound(t *testing.T) {
	db := testDB(t)
	_, err := db.Get(context.Background(), "/missing.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSaveUpdatesInPlace(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	d := doc("/a.md")
	_ = db.Save(ctx, d)
	d.Meta.Title = "Renamed"
	if err := db.Save(ctx, d); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if n, _ := db.Count(ctx); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	got, _ := db.Get(ctx, "/a.md")
	if got.Meta.Title != "Renamed" {
		t.Errorf("title = %q", got.Meta.Title)
	}
}

func TestDeleteMany(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for _, p := range []string{"/a.md", "/b.md", "/c.md"} {
		_ = db.Save(ctx, doc(p))
	}
	if err := db.DeleteMany(ctx, []string{"/a.md", "/c.md"}); err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	paths, _ := db.LogicalPaths(ctx)
	if _, ok := paths["/b.md"]; !ok || len(paths) != 1 {
		t.Errorf("paths = %v", paths)
	}
}

func TestGenerationAdvancesOnWrite(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	g0 := db.Generation()
	_ = db.Save(ctx, doc("/a.md"))
	g1 := db.Generation()
	_ = db.Delete(ctx, "/a.md")
	if !(g0 < g1 && g1 < db.Generation()) {
		t.Errorf("generations %d %d %d", g0, g1, db.Generation())
	}
}

func TestListDirectory_Drafts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	draft := doc("/notes/d.md")
	draft.Meta.Draft = true
	_ = db.Save(ctx, draft)
	_ = db.Save(ctx, doc("/notes/p.md"))
	_ = db.Save(ctx, doc("/notes/deeper/x.md"))

	reader, err := db.ListDirectory(ctx, "/notes", false)
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if len(reader) != 1 || reader[0].LogicalPath != "/notes/p.md" {
		t.Errorf("reader listing = %+v", reader)
	}
	editor, _ := db.ListDirectory(ctx, "/notes", true)
	if len(editor) != 2 {
		t.Errorf("editor listing has %d docs, want 2", len(editor))
	}
}

func TestSearchCandidates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := doc("/a.md")
	a.SearchText = "elephants roam"
	b := doc("/b.md")
	b.Meta.Title = "About Elephant Care"
	c := doc("/c.md")
	c.SearchText = "giraffes"
	d := doc("/d.md")
	d.SearchText = "elephant"
	d.Meta.Draft = true
	for _, x := range []*models.Document{a, b, c, d} {
		_ = db.Save(ctx, x)
	}

	got, err := db.SearchCandidates(ctx, []string{"elephant"}, false)
	if err != nil {
		t.Fatalf("SearchCandidates: %v", err)
	}
	if len(got) != 2 || got[0].LogicalPath != "/a.md" || got[1].LogicalPath != "/b.md" {
		t.Errorf("candidates = %+v", got)
	}
	withDrafts, _ := db.SearchCandidates(ctx, []string{"elephant"}, true)
	if len(withDrafts) != 3 {
		t.Errorf("with drafts = %d, want 3", len(withDrafts))
	}
	if wild, _ := db.SearchCandidates(ctx, []string{"%"}, true); len(wild) != 0 {
		t.Errorf("LIKE wildcard not escaped: %d hits", len(wild))
	}
}

func TestIncomingCandidates(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	a := doc("/a.md")
	a.OutgoingLinks = []string{"/b.html"}
	x := doc("/x.md")
	x.OutgoingLinks = []string{"/sub/b.html"}
	y := doc("/y.md")
	y.OutgoingLinks = []string{"/_id/42"}
	for _, d := range []*models.Document{a, x, y, doc("/z.md")} {
		_ = db.Save(ctx, d)
	}

	got, err := db.IncomingCandidates(ctx, "/b", "/_id/42")
	if err != nil {
		t.Fatalf("IncomingCandidates: %v", err)
	}
	var paths []string
	for _, d := range got {
		paths = append(paths, d.LogicalPath)
	}
	// /x.md is a substring false positive that callers filter out.
	want := []string{"/a.md", "/x.md", "/y.md"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("candidates = %v, want %v", paths, want)
	}
}

func TestIDLookups(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	first := doc("/first.md")
	first.Meta.ID = "12"
	second := doc("/second.md")
	second.Meta.ID = "12"
	_ = db.Save(ctx, first)
	_ = db.Save(ctx, second)

	got, err := db.ByID(ctx, "12")
	if err != nil || got.LogicalPath != "/first.md" {
		t.Fatalf("ByID = %+v, %v", got, err)
	}
	targets, _ := db.IDTargets(ctx)
	if targets["12"] != "/first" {
		t.Errorf("targets = %v", targets)
	}
	ids, _ := db.IDs(ctx)
	if _, ok := ids["12"]; !ok || len(ids) != 1 {
		t.Errorf("ids = %v", ids)
	}
	if _, err := db.ByID(ctx, "99"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing id err = %v", err)
	}
}

func TestBlogPostsNewestFirst(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	for i, p := range []string{"/posts/old.md", "/posts/new.md", "/posts/mid.md"} {
		d := doc(p)
		when := time.Date(2020+[]int{0, 2, 1}[i], 1, 1, 0, 0, 0, 0, time.UTC)
		d.IsBlogged = true
		d.BlogDate = &when
		_ = db.Save(ctx, d)
	}
	_ = db.Save(ctx, doc("/posts/undated.md"))

	got, err := db.BlogPosts(ctx, 0, 2, false)
	if err != nil {
		t.Fatalf("BlogPosts: %v", err)
	}
	if len(got) != 2 || got[0].LogicalPath != "/posts/new.md" || got[1].LogicalPath != "/posts/mid.md" {
		t.Errorf("page = %+v", got)
	}
	rest, _ := db.BlogPosts(ctx, 2, 2, false)
	if len(rest) != 1 || rest[0].LogicalPath != "/posts/old.md" {
		t.Errorf("second page = %+v", rest)
	}
}

func TestWithTodosScopedToDirectory(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	in := doc("/work/plan.md")
	in.Todos = []models.TodoItem{{Line: 1, Text: "ship"}}
	out := doc("/home/list.md")
	out.Todos = []models.TodoItem{{Line: 2, Text: "shop"}}
	_ = db.Save(ctx, in)
	_ = db.Save(ctx, out)
	_ = db.Save(ctx, doc("/work/none.md"))

	all, _ := db.WithTodos(ctx, "", false)
	if len(all) != 2 {
		t.Errorf("all = %d, want 2", len(all))
	}
	scoped, err := db.WithTodos(ctx, "/work", false)
	if err != nil {
		t.Fatalf("WithTodos: %v", err)
	}
	if len(scoped) != 1 || scoped[0].LogicalPath != "/work/plan.md" {
		t.Errorf("scoped = %+v", scoped)
	}
}
