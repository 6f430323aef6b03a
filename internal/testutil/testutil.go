// Package testutil provides shared test helpers for setting up notebooks and indexes.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/nbweb/internal/index"
	"github.com/starford/nbweb/internal/pathutil"
	"github.com/starford/nbweb/internal/settings"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "nbweb-test-*.db")
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
	return db
}

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// WriteFile writes content to rel (slash separated) under root.
func WriteFile(t *testing.T, root, rel, content string) string {
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

// Notebook is a temporary notebook with its settings and index.
type Notebook struct {
	Root     string
	Settings settings.Notebook
	Paths    *pathutil.Resolver
	Syncer   *index.Syncer
	DB       *index.DB
}

// NewNotebook seeds a temporary source tree with files and builds a Syncer
// over it. tweak may adjust the settings before they are normalized.
func NewNotebook(t *testing.T, files map[string]string, tweak ...func(*settings.Notebook)) *Notebook {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
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
	db := TestDB(t)
	return &Notebook{
		Root:     paths.Root(),
		Settings: nb,
		Paths:    paths,
		Syncer:   index.NewSyncer(db, paths, nb, Logger(), nil),
		DB:       db,
	}
}

// Reconciled is NewNotebook followed by a full reconcile.
func Reconciled(t *testing.T, files map[string]string, tweak ...func(*settings.Notebook)) *Notebook {
	t.Helper()
	n := NewNotebook(t, files, tweak...)
	if _, err := n.Syncer.Reconcile(t.Context(), false); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	return n
}
