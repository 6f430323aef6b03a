package links

import (
	"context"
	"reflect"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/starford/nbweb/internal/metrics"
	"github.com/starford/nbweb/internal/models"
	"github.com/starford/nbweb/internal/testutil"
)

func get(t *testing.T, n *testutil.Notebook, logical string) *models.Document {
	t.Helper()
	d, err := n.DB.Get(context.Background(), logical)
	if err != nil {
		t.Fatalf("Get %s: %v", logical, err)
	}
	return d
}

func paths(ls []Link) []string {
	var out []string
	for _, l := range ls {
		out = append(out, l.Path)
	}
	return out
}

func TestEndToEnd(t *testing.T) {
	n := testutil.Reconciled(t, map[string]string{
		"a.md": "---\ntitle: Alpha\n---\nSee [[b]]\n",
		"b.md": "---\ntitle: Beta\n---\nNothing here.\n",
	})
	r := New(n.DB, n.Paths, testutil.Logger(), nil)
	ctx := context.Background()

	out, err := r.Outgoing(ctx, get(t, n, "/a.md"), models.Anonymous)
	if err != nil {
		t.Fatalf("Outgoing: %v", err)
	}
	if len(out) != 1 || out[0].Href != "/b.html" || out[0].Title != "Beta" {
		t.Fatalf("outgoing = %+v", out)
	}

	in, err := r.Incoming(ctx, get(t, n, "/b.md"), models.Anonymous)
	if err != nil {
		t.Fatalf("Incoming: %v", err)
	}
	if !reflect.DeepEqual(paths(in), []string{"/a.md"}) {
		t.Errorf("incoming = %+v", in)
	}
}

func TestOutgoing_BrokenLinksOmitted(t *testing.T) {
	n := testutil.Reconciled(t, map[string]string{
		"c.md": "Links to [[missing]], [nowhere](/_id/404) and [[d]].\n",
		"d.md": "# D\n",
	})
	m := metrics.New()
	r := New(n.DB, n.Paths, testutil.Logger(), m)

	out, err := r.Outgoing(context.Background(), get(t, n, "/c.md"), models.EditorViewer)
	if err != nil {
		t.Fatalf("Outgoing: %v", err)
	}
	if !reflect.DeepEqual(paths(out), []string{"/d.md"}) {
		t.Errorf("outgoing = %+v", out)
	}
	if got := promtest.ToFloat64(m.BrokenLinksTotal); got != 2 {
		t.Errorf("broken links = %v, want 2", got)
	}
}

func TestIncoming_ExactPathNotSuperstring(t *testing.T) {
	n := testutil.Reconciled(t, map[string]string{
		"a.md":     "[[b]]\n",
		"x.md":     "[[sub/b]]\n",
		"b.md":     "# Root B\n",
		"sub/b.md": "# Nested B\n",
	})
	r := New(n.DB, n.Paths, testutil.Logger(), nil)
	ctx := context.Background()

	in, _ := r.Incoming(ctx, get(t, n, "/b.md"), models.Anonymous)
	if !reflect.DeepEqual(paths(in), []string{"/a.md"}) {
		t.Errorf("incoming(/b) = %v", paths(in))
	}
	in, _ = r.Incoming(ctx, get(t, n, "/sub/b.md"), models.Anonymous)
	if !reflect.DeepEqual(paths(in), []string{"/x.md"}) {
		t.Errorf("incoming(/sub/b) = %v", paths(in))
	}
}

func TestIDLinks(t *testing.T) {
	n := testutil.Reconciled(t, map[string]string{
		"target.md": "---\ntitle: Target\nid: 42\n---\nbody\n",
		"y.md":      "See [it](/_id/42).\n",
	})
	r := New(n.DB, n.Paths, testutil.Logger(), nil)
	ctx := context.Background()

	out, _ := r.Outgoing(ctx, get(t, n, "/y.md"), models.Anonymous)
	if !reflect.DeepEqual(paths(out), []string{"/target.md"}) {
		t.Errorf("outgoing = %+v", out)
	}
	in, _ := r.Incoming(ctx, get(t, n, "/target.md"), models.Anonymous)
	if !reflect.DeepEqual(paths(in), []string{"/y.md"}) {
		t.Errorf("incoming = %+v", in)
	}
}

func TestIncoming_SharedIDBelongsToFirstDocument(t *testing.T) {
	n := testutil.Reconciled(t, map[string]string{
		"first.md":  "---\ntitle: First\nid: 7\n---\nbody\n",
		"second.md": "---\ntitle: Second\nid: 7\n---\nbody\n",
		"src.md":    "See [it](/_id/7).\n",
	})
	r := New(n.DB, n.Paths, testutil.Logger(), nil)
	ctx := context.Background()

	out, _ := r.Outgoing(ctx, get(t, n, "/src.md"), models.Anonymous)
	if !reflect.DeepEqual(paths(out), []string{"/first.md"}) {
		t.Errorf("outgoing = %v", paths(out))
	}
	in, _ := r.Incoming(ctx, get(t, n, "/first.md"), models.Anonymous)
	if !reflect.DeepEqual(paths(in), []string{"/src.md"}) {
		t.Errorf("first incoming = %v", paths(in))
	}
	in, err := r.Incoming(ctx, get(t, n, "/second.md"), models.Anonymous)
	if err != nil {
		t.Fatalf("Incoming: %v", err)
	}
	if len(in) != 0 {
		t.Errorf("second incoming = %v, want none", paths(in))
	}
}

func TestIncoming_DraftSourcesNeedEditor(t *testing.T) {
	n := testutil.Reconciled(t, map[string]string{
		"b.md":  "# B\n",
		"a.md":  "[[b]]\n",
		"dr.md": "---\ntitle: Wip\ndraft: true\n---\n[[b]]\n",
	})
	r := New(n.DB, n.Paths, testutil.Logger(), nil)
	ctx := context.Background()
	b := get(t, n, "/b.md")

	in, _ := r.Incoming(ctx, b, models.Anonymous)
	if !reflect.DeepEqual(paths(in), []string{"/a.md"}) {
		t.Errorf("reader incoming = %v", paths(in))
	}
	in, _ = r.Incoming(ctx, b, models.EditorViewer)
	if !reflect.DeepEqual(paths(in), []string{"/a.md", "/dr.md"}) {
		t.Errorf("editor incoming = %v", paths(in))
	}
}

func TestTargets(t *testing.T) {
	d := &models.Document{LogicalBasename: "/notes/b", Meta: models.Metadata{ID: "9"}}
	cases := []struct {
		links []string
		want  bool
	}{
		{[]string{"/notes/b.html"}, true},
		{[]string{"/_id/9"}, true},
		{[]string{"/notes/bb.html", "/b.html"}, false},
		{[]string{"/_id/99"}, false},
	}
	for _, c := range cases {
		if got := Targets(c.links, d); got != c.want {
			t.Errorf("Targets(%v) = %v, want %v", c.links, got, c.want)
		}
	}
}
