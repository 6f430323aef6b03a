package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/nbweb/internal/apperr"
	"github.com/starford/nbweb/internal/models"
	"github.com/starford/nbweb/internal/settings"
)

func testResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	root := t.TempDir()
	nb := settings.Default()
	nb.Source = root
	nb.Normalize()
	r, err := New(nb)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, r.Root()
}

func write(t *testing.T, root, rel, content string) string {
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

func TestLogicalPathRoundTrip(t *testing.T) {
	r, root := testResolver(t)
	sys := filepath.Join(root, "sub", "page.md")

	logical, err := r.LogicalPath(sys)
	if err != nil {
		t.Fatalf("LogicalPath: %v", err)
	}
	if logical != "/sub/page.md" {
		t.Errorf("logical = %q, want /sub/page.md", logical)
	}
	back, err := r.SystemPath(logical)
	if err != nil {
		t.Fatalf("SystemPath: %v", err)
	}
	if back != sys {
		t.Errorf("system = %q, want %q", back, sys)
	}
}

func TestLogicalPath_OutsideRoot(t *testing.T) {
	r, root := testResolver(t)
	_, err := r.LogicalPath(filepath.Join(root, "..", "elsewhere.md"))
	if !errors.Is(err, apperr.ErrSecurity) {
		t.Fatalf("err = %v, want ErrSecurity", err)
	}
}

func TestSystemPath_RejectsTraversal(t *testing.T) {
	r, _ := testResolver(t)
	if _, err := r.SystemPath("/../../etc/passwd"); !errors.Is(err, apperr.ErrSecurity) {
		t.Fatalf("err = %v, want ErrSecurity", err)
	}
}

func TestLocate(t *testing.T) {
	r, root := testResolver(t)
	exact := write(t, root, "notes/page.md", "x")

	got, err := r.Locate("/notes/page.md")
	if err != nil || got != exact {
		t.Fatalf("exact Locate = %q, %v", got, err)
	}
	got, err = r.Locate("/notes/page.html")
	if err != nil || got != exact {
		t.Fatalf("published Locate = %q, %v", got, err)
	}
	got, err = r.Locate("/notes/page")
	if err != nil || got != exact {
		t.Fatalf("bare Locate = %q, %v", got, err)
	}
	if _, err := r.Locate("/notes/missing.html"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing: err = %v, want ErrNotFound", err)
	}
}

func TestLocate_Ambiguous(t *testing.T) {
	r, root := testResolver(t)
	write(t, root, "twin.md", "a")
	write(t, root, "twin.gallery", "b")

	if _, err := r.Locate("/twin.html"); !errors.Is(err, apperr.ErrAmbiguousPath) {
		t.Fatalf("err = %v, want ErrAmbiguousPath", err)
	}
}

func TestSplit(t *testing.T) {
	p := Split("/sub/page.md")
	if p.Dir != "/sub" || p.Basename != "/sub/page" || p.Name != "page.md" || p.Ext != ".md" {
		t.Errorf("Split = %+v", p)
	}
	p = Split("/top.md")
	if p.Dir != "/" || p.Basename != "/top" {
		t.Errorf("Split root file = %+v", p)
	}
}

func TestExcluded(t *testing.T) {
	r, _ := testResolver(t)
	cases := []struct {
		logical string
		isDir   bool
		want    bool
	}{
		{"/media", true, true},
		{"/media/deep/photo.md", false, true},
		{"/.git", true, true},
		{"/notes/.hidden.md", false, true},
		{"/_scratch", true, true},
		{"/notes/page.md", false, false},
		{"/mediahouse.md", false, false},
	}
	for _, c := range cases {
		if got := r.Excluded(c.logical, c.isDir); got != c.want {
			t.Errorf("Excluded(%q, %v) = %v, want %v", c.logical, c.isDir, got, c.want)
		}
	}
}

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"/posts/*", "/posts/2017/trip.md", true},
		{"/posts/*", "/postscript.md", false},
		{"*.md", "/a/b.md", true},
		{"page?.md", "page1.md", true},
		{"[!a]*", "b.md", true},
		{"[!a]*", "a.md", false},
		{"a.b", "axb", false},
		{"[unclosed", "[unclosed", true},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.name); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.name, got, c.want)
		}
	}
}

func TestExcludedTree(t *testing.T) {
	r, _ := testResolver(t)
	if !r.ExcludedTree("/_scratch/notes/a.md") {
		t.Error("file under excluded dir should be excluded")
	}
	if r.ExcludedTree("/notes/deep/a.md") {
		t.Error("plain file should not be excluded")
	}
}

func TestVisible(t *testing.T) {
	nb := settings.Default()
	nb.Source = t.TempDir()
	nb.ProtectedDirs = []string{"/private/*"}
	nb.Normalize()
	r, err := New(nb)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	draft := &models.Document{LogicalPath: "/d.md", Meta: models.Metadata{Draft: true}}
	private := &models.Document{LogicalPath: "/private/p.md"}
	public := &models.Document{LogicalPath: "/p.md"}

	reader := models.Viewer{Authenticated: true}
	if r.Visible(draft, reader) || !r.Visible(draft, models.EditorViewer) {
		t.Error("drafts must be editor-only")
	}
	if r.Visible(private, models.Anonymous) || !r.Visible(private, reader) {
		t.Error("protected docs need an authenticated viewer")
	}
	if !r.Visible(public, models.Anonymous) {
		t.Error("public doc hidden from anonymous viewer")
	}
}
