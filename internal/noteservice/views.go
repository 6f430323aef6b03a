package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/starford/nbweb/internal/apperr"
	"github.com/starford/nbweb/internal/models"
	"github.com/starford/nbweb/internal/settings"
	"github.com/starford/nbweb/internal/todotag"
)

// BlogPageSize is the number of posts per blog page.
const BlogPageSize = 8

// blogLookahead is how many extra records are read to tell whether another
// page follows once vanished files are skipped.
const blogLookahead = 5

// Entry is one document in a directory listing.
type Entry struct {
	Path    string    `json:"path"`
	Href    string    `json:"href"`
	Title   string    `json:"title"`
	RefName string    `json:"reference_name"`
	ModTime time.Time `json:"modified_time"`
	Draft   bool      `json:"draft,omitempty"`
}

// Listing is the content of one directory.
type Listing struct {
	Dir       string   `json:"dir"`
	Parent    string   `json:"parent,omitempty"`
	Dirs      []string `json:"dirs"`
	Documents []Entry  `json:"documents"`
}

// ListDirectory lists the subdirectories and the documents visible to v
// directly inside dir. Files on disk are synced first, and records whose
// file is gone are dropped.
func (s *Service) ListDirectory(ctx context.Context, dir string, v models.Viewer) (*Listing, error) {
	dir = Clean(dir)
	if s.excludedDir(dir) {
		return nil, fmt.Errorf("notebook: %s: %w", dir, apperr.ErrNotFound)
	}
	sysDir, err := s.paths.SystemPath(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(sysDir)
	if err != nil {
		return nil, fmt.Errorf("notebook: list %s: %w", dir, apperr.ErrNotFound)
	}

	listing := &Listing{Dir: dir, Dirs: []string{}, Documents: []Entry{}}
	if dir != "/" {
		listing.Parent = path.Dir(dir)
	}
	onDisk := make(map[string]struct{})
	for _, e := range entries {
		logical := path.Join(dir, e.Name())
		if e.IsDir() {
			if !s.paths.Excluded(logical, true) {
				listing.Dirs = append(listing.Dirs, logical)
			}
			continue
		}
		if s.paths.Excluded(logical, false) || !s.paths.Recognized(path.Ext(logical)) {
			continue
		}
		onDisk[logical] = struct{}{}
		if _, err := s.syncer.SyncOne(ctx, filepath.Join(sysDir, e.Name()), false); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			s.logger.Warn("notebook: sync failed", slog.String("path", logical), slog.String("error", err.Error()))
		}
	}
	sort.Slice(listing.Dirs, func(i, j int) bool {
		return strings.ToLower(listing.Dirs[i]) < strings.ToLower(listing.Dirs[j])
	})

	docs, err := s.db.ListDirectory(ctx, dir, v.Editor)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		d := &docs[i]
		if _, ok := onDisk[d.LogicalPath]; !ok {
			if err := s.syncer.Remove(ctx, d.LogicalPath); err != nil {
				return nil, err
			}
			continue
		}
		if !s.paths.Visible(d, v) {
			continue
		}
		listing.Documents = append(listing.Documents, Entry{
			Path:    d.LogicalPath,
			Href:    d.Href(),
			Title:   d.Title(),
			RefName: d.RefName,
			ModTime: d.ModTime,
			Draft:   d.Meta.Draft,
		})
	}
	sortEntries(listing.Documents, s.nb.SortType)
	return listing, nil
}

// sortEntries orders a listing case-insensitively by the configured key,
// falling back to the path.
func sortEntries(entries []Entry, sortType string) {
	key := func(e Entry) string {
		switch sortType {
		case settings.SortTitle:
			return strings.ToLower(e.Title)
		case settings.SortRef:
			return strings.ToLower(e.RefName)
		default:
			return strings.ToLower(e.Path)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		ki, kj := key(entries[i]), key(entries[j])
		if ki != kj {
			return ki < kj
		}
		return entries[i].Path < entries[j].Path
	})
}

// visible drops the documents v may not see.
func (s *Service) visible(docs []models.Document, v models.Viewer) []models.Document {
	out := docs[:0:0]
	for i := range docs {
		if s.paths.Visible(&docs[i], v) {
			out = append(out, docs[i])
		}
	}
	return out
}

// Todos groups the open todo items under dir ("" or "/" for everything).
func (s *Service) Todos(ctx context.Context, dir string, v models.Viewer) (todotag.Board, error) {
	if strings.TrimSpace(dir) != "" {
		dir = Clean(dir)
	}
	docs, err := s.db.WithTodos(ctx, dir, v.Editor)
	if err != nil {
		return todotag.Board{}, err
	}
	return todotag.GroupTodos(s.visible(docs, v)), nil
}

// Tags builds the tag cloud over the documents visible to v.
func (s *Service) Tags(ctx context.Context, v models.Viewer) (todotag.Cloud, error) {
	docs, err := s.db.WithTags(ctx, v.Editor)
	if err != nil {
		return todotag.Cloud{}, err
	}
	return todotag.TagCloud(s.visible(docs, v)), nil
}

// Post is one entry of a blog page.
type Post struct {
	Path    string    `json:"path"`
	Href    string    `json:"href"`
	Title   string    `json:"title"`
	RefName string    `json:"reference_name"`
	Date    time.Time `json:"date"`
	HTML    string    `json:"html"`
}

// Blog is one page of blog posts, newest first. Pages start at 1.
type Blog struct {
	Page  int    `json:"page"`
	Posts []Post `json:"posts"`
	Prev  int    `json:"prev,omitempty"`
	Next  int    `json:"next,omitempty"`
}

// Blog returns one page of posts. Records whose file has vanished are
// skipped.
func (s *Service) Blog(ctx context.Context, page int, v models.Viewer) (*Blog, error) {
	if page < 1 {
		return nil, fmt.Errorf("notebook: blog page %d: %w", page, apperr.ErrInvalidInput)
	}
	docs, err := s.db.BlogPosts(ctx, (page-1)*BlogPageSize, BlogPageSize+blogLookahead, v.Editor)
	if err != nil {
		return nil, err
	}
	out := &Blog{Page: page, Posts: []Post{}}
	if page > 1 {
		out.Prev = page - 1
	}
	for i := range docs {
		d := &docs[i]
		if !s.paths.Visible(d, v) || !s.exists(d.LogicalPath) {
			continue
		}
		if len(out.Posts) == BlogPageSize {
			out.Next = page + 1
			break
		}
		p := Post{Path: d.LogicalPath, Href: d.Href(), Title: d.Title(), RefName: d.RefName, HTML: d.HTML}
		if d.BlogDate != nil {
			p.Date = *d.BlogDate
		}
		out.Posts = append(out.Posts, p)
	}
	return out, nil
}

func (s *Service) exists(logical string) bool {
	sys, err := s.paths.SystemPath(logical)
	if err != nil {
		return false
	}
	_, err = os.Stat(sys)
	return err == nil
}
