// Package pathutil maps between filesystem paths and root-relative logical paths and
// applies the notebook's inclusion and exclusion patterns.
package pathutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/nbweb/internal/apperr"
	"github.com/starford/nbweb/internal/models"
	"github.com/starford/nbweb/internal/settings"
)

// Resolver converts paths for a single source root.
type Resolver struct {
	root       string
	exclusions []string
	protected  []string
	extensions map[string]struct{}
}

// New creates a Resolver rooted at nb.Source. The directory must already exist.
func New(nb settings.Notebook) (*Resolver, error) {
	abs, err := filepath.Abs(nb.Source)
	if err != nil {
		return nil, fmt.Errorf("pathutil: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("pathutil: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("pathutil: root is not a directory: %s", abs)
	}
	exts := make(map[string]struct{}, len(nb.Extensions))
	for _, e := range nb.Extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	return &Resolver{root: abs, exclusions: nb.Exclusions, protected: nb.ProtectedDirs, extensions: exts}, nil
}

// Root returns the absolute source root.
func (r *Resolver) Root() string { return r.root }

// Recognized reports whether ext (with leading dot) is an indexable extension.
func (r *Resolver) Recognized(ext string) bool {
	_, ok := r.extensions[strings.ToLower(ext)]
	return ok
}

// Extensions returns the recognized extensions in sorted order.
func (r *Resolver) Extensions() []string {
	out := make([]string, 0, len(r.extensions))
	for e := range r.extensions {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// LogicalPath returns the "/"-prefixed root-relative path for an absolute or
// working-directory relative system path.
func (r *Resolver) LogicalPath(systemPath string) (string, error) {
	abs, err := filepath.Abs(systemPath)
	if err != nil {
		return "", fmt.Errorf("pathutil: resolve %s: %w", systemPath, err)
	}
	rel, err := filepath.Rel(r.root, abs)
	if err != nil {
		return "", fmt.Errorf("pathutil: %s: %w", systemPath, apperr.ErrSecurity)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("pathutil: %s: %w", systemPath, apperr.ErrSecurity)
	}
	if rel == "." {
		return "/", nil
	}
	return "/" + filepath.ToSlash(rel), nil
}

// SystemPath joins a logical path onto the root. Paths that would leave the
// root are rejected, never clamped.
func (r *Resolver) SystemPath(logical string) (string, error) {
	joined := filepath.Join(r.root, filepath.FromSlash(logical))
	if joined != r.root && !strings.HasPrefix(joined, r.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("pathutil: %s: %w", logical, apperr.ErrSecurity)
	}
	return joined, nil
}

// Locate finds the file behind a logical path. An exact match wins; otherwise
// the extension is replaced by a wildcard so published ".html" names and
// extensionless names find their source file.
func (r *Resolver) Locate(logical string) (string, error) {
	sys, err := r.SystemPath(logical)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(sys); err == nil {
		return sys, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("pathutil: stat %s: %w", logical, err)
	}

	dir, file := filepath.Split(sys)
	stem := strings.TrimSuffix(file, filepath.Ext(file))
	if stem == "" {
		return "", fmt.Errorf("pathutil: %s: %w", logical, apperr.ErrNotFound)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("pathutil: %s: %w", logical, apperr.ErrNotFound)
	}
	var matches []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), stem+".") {
			matches = append(matches, filepath.Join(dir, e.Name()))
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("pathutil: %s: %w", logical, apperr.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("pathutil: %s matches %d files: %w", logical, len(matches), apperr.ErrAmbiguousPath)
	}
}

// Excluded reports whether a logical path matches any exclusion pattern.
func (r *Resolver) Excluded(logical string, isDir bool) bool {
	return MatchAny(r.exclusions, logical, isDir)
}

// ExcludedTree is Excluded for a file that also checks every ancestor
// directory, matching what a pruned tree walk would skip.
func (r *Resolver) ExcludedTree(logical string) bool {
	if r.Excluded(logical, false) {
		return true
	}
	for dir := path.Dir(logical); dir != "/" && dir != "."; dir = path.Dir(dir) {
		if r.Excluded(dir, true) {
			return true
		}
	}
	return false
}

// Protected reports whether a logical path lies in a protected directory.
func (r *Resolver) Protected(logical string) bool {
	return MatchAny(r.protected, logical, false)
}

// Visible reports whether v may see doc. Drafts need an editor; protected
// documents need an authenticated viewer.
func (r *Resolver) Visible(doc *models.Document, v models.Viewer) bool {
	if doc.Meta.Draft && !v.Editor {
		return false
	}
	if !v.Authenticated && !v.Editor && r.Protected(doc.LogicalPath) {
		return false
	}
	return true
}

// Parts are the components derived from a logical path.
type Parts struct {
	Dir      string // "/sub"
	Basename string // "/sub/page", the logical path without its extension
	Name     string // "page.md"
	Ext      string // ".md"
}

// Split derives the parts of a logical path.
func Split(logical string) Parts {
	ext := path.Ext(logical)
	return Parts{
		Dir:      path.Dir(logical),
		Basename: strings.TrimSuffix(logical, ext),
		Name:     path.Base(logical),
		Ext:      ext,
	}
}

// MatchAny checks patterns against both the full logical path and the file
// name. Directories are also tried with a trailing slash so "name/" patterns
// only match directories.
func MatchAny(patterns []string, logical string, isDir bool) bool {
	name := path.Base(logical)
	candidates := []string{logical, name}
	if isDir {
		candidates = append(candidates, logical+"/", name+"/")
	}
	for _, p := range patterns {
		for _, c := range candidates {
			if Match(p, c) {
				return true
			}
		}
	}
	return false
}
