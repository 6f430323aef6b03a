package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/nbweb/internal/apperr"
	"github.com/starford/nbweb/internal/metrics"
	"github.com/starford/nbweb/internal/models"
	"github.com/starford/nbweb/internal/parser"
	"github.com/starford/nbweb/internal/pathutil"
	"github.com/starford/nbweb/internal/render"
	"github.com/starford/nbweb/internal/settings"
	"github.com/starford/nbweb/internal/textnorm"
	"github.com/starford/nbweb/internal/todotag"
)

// StaleTolerance is how far (in seconds) the on-disk modification time may
// drift from the stored one before a file is parsed again.
const StaleTolerance = 1.0

// idProbeWindow is how many ids above the document count are tried before
// falling back to a scan from zero.
const idProbeWindow = 50

const draftMarker = "[DRAFT]"

// Syncer keeps the index in step with the source tree:
//   - new/changed files are parsed and saved
//   - records whose file is gone are deleted
type Syncer struct {
	db       *DB
	paths    *pathutil.Resolver
	nb       settings.Notebook
	renderer *render.Renderer
	norm     *textnorm.Normalizer
	metrics  *metrics.Metrics
	logger   *slog.Logger

	group singleflight.Group
}

// NewSyncer creates a Syncer. m may be nil.
func NewSyncer(db *DB, paths *pathutil.Resolver, nb settings.Notebook, logger *slog.Logger, m *metrics.Metrics) *Syncer {
	return &Syncer{
		db:       db,
		paths:    paths,
		nb:       nb,
		renderer: render.New(render.Options{AutomaticLineBreaks: nb.AutomaticLineBreaks}),
		norm:     textnorm.New(nb.StopWords),
		metrics:  m,
		logger:   logger,
	}
}

// DB returns the underlying index.
func (s *Syncer) DB() *DB { return s.db }

// Paths returns the path resolver.
func (s *Syncer) Paths() *pathutil.Resolver { return s.paths }

// Settings returns the notebook settings the syncer was built with.
func (s *Syncer) Settings() settings.Notebook { return s.nb }

// Normalizer returns the normalizer that builds search text.
func (s *Syncer) Normalizer() *textnorm.Normalizer { return s.norm }

// SyncOne brings the record for one file up to date and returns it. A stored
// record whose modification time is within StaleTolerance of the file is
// returned as is (Cached set) unless force is true. Files with an
// unrecognized extension or under an exclusion yield (nil, nil).
func (s *Syncer) SyncOne(ctx context.Context, systemPath string, force bool) (*models.Document, error) {
	abs, err := filepath.Abs(systemPath)
	if err != nil {
		return nil, fmt.Errorf("sync: resolve %s: %w", systemPath, err)
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("sync: %s: %w", systemPath, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sync: stat %s: %w", systemPath, err)
	}
	if info.IsDir() {
		return nil, nil
	}
	logical, err := s.paths.LogicalPath(abs)
	if err != nil {
		return nil, err
	}
	if !s.paths.Recognized(path.Ext(logical)) || s.paths.ExcludedTree(logical) {
		return nil, nil
	}

	v, err, _ := s.group.Do(logical+"\x00"+strconv.FormatBool(force), func() (any, error) {
		return s.sync(ctx, abs, logical, info, force, true)
	})
	if err != nil {
		return nil, err
	}
	doc := *v.(*models.Document)
	return &doc, nil
}

func (s *Syncer) sync(ctx context.Context, abs, logical string, info fs.FileInfo, force, retry bool) (*models.Document, error) {
	stored, err := s.db.Lookup(ctx, logical)
	if err != nil {
		return nil, err
	}
	if len(stored) > 1 {
		s.logger.Warn("sync: duplicate records, purging",
			slog.String("path", logical),
			slog.Int("records", len(stored)),
			slog.String("error", apperr.ErrCorruptIndex.Error()))
		s.metrics.Sync(metrics.SyncPurged)
		if err := s.db.Delete(ctx, logical); err != nil {
			return nil, err
		}
		if retry {
			return s.sync(ctx, abs, logical, info, force, false)
		}
		stored = nil
	}

	if len(stored) == 1 && !force && math.Abs(Seconds(stored[0].ModTime)-Seconds(info.ModTime())) <= StaleTolerance {
		doc := stored[0]
		doc.Cached = true
		s.metrics.Sync(metrics.SyncCached)
		return &doc, nil
	}

	doc, err := s.build(abs, logical, info)
	if err != nil {
		return nil, err
	}
	if err := s.db.Save(ctx, doc); err != nil {
		return nil, err
	}
	s.metrics.Sync(metrics.SyncParsed)
	s.logger.Debug("sync: parsed", slog.String("path", logical))
	return doc, nil
}

// build reads and parses one file into a Document.
func (s *Syncer) build(abs, logical string, info fs.FileInfo) (*models.Document, error) {
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("sync: %s vanished: %w", logical, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sync: read %s: %w", logical, err)
	}

	parts := pathutil.Split(logical)
	res, err := parser.Parse(data, strings.TrimSuffix(parts.Name, parts.Ext))
	if err != nil {
		return nil, fmt.Errorf("sync: parse %s: %w", logical, err)
	}

	body := res.Body
	if parts.Ext == ".gallery" {
		body = render.WrapGallery(body)
	}

	meta := res.Meta
	ref := referenceName(s.nb.RefType, meta.Title, parts.Name)
	if meta.Draft {
		meta.Title = decorateDraft(meta.Title)
		ref = decorateDraft(ref)
	}

	doc := &models.Document{
		SystemPath:      abs,
		LogicalPath:     logical,
		LogicalDir:      parts.Dir,
		LogicalBasename: parts.Basename,
		Extension:       parts.Ext,
		ModTime:         info.ModTime(),
		Meta:            meta,
		RefName:         ref,
		Todos:           todotag.ExtractTodos(res.Body, res.LineOffset),
		Tags:            parser.MergeTags(res.Meta.Tags, parser.ExtractTags(res.Body)),
	}

	if pathutil.MatchAny(s.nb.BlogDirs, logical, false) {
		if t, ok := parser.ParseDate(res.Meta.Date); ok {
			doc.IsBlogged = true
			doc.BlogDate = &t
		}
	}

	html, err := s.renderer.Markdown(body)
	if err != nil {
		return nil, fmt.Errorf("sync: render %s: %w", logical, err)
	}
	html = render.AbsolutizeLinks(logical, html)
	doc.HTML, doc.OutgoingLinks = render.RewriteInternalLinks(html, s.nb.Extensions)
	doc.SearchText = s.norm.Clean(doc.HTML)
	return doc, nil
}

func referenceName(refType, title, name string) string {
	switch refType {
	case settings.RefPath:
		return name
	case settings.RefBoth:
		return title + " (" + name + ")"
	default:
		return title
	}
}

func decorateDraft(s string) string {
	return draftMarker + " " + s + " " + draftMarker
}

// Reconcile walks the source tree, syncs every recognized file and deletes
// records whose file no longer exists. It returns the number of documents
// that were parsed (not served from cache). A file that fails to parse is
// logged and skipped.
func (s *Syncer) Reconcile(ctx context.Context, force bool) (int, error) {
	v, err, _ := s.group.Do("\x00reconcile\x00"+strconv.FormatBool(force), func() (any, error) {
		return s.reconcile(ctx, force)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (s *Syncer) reconcile(ctx context.Context, force bool) (int, error) {
	start := time.Now()
	root := s.paths.Root()
	walked := make(map[string]struct{})
	parsed := 0

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			s.logger.Warn("sync: walk error", slog.String("path", p), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == root {
			return nil
		}
		logical, lerr := s.paths.LogicalPath(p)
		if lerr != nil {
			return nil
		}
		if d.IsDir() {
			if s.paths.Excluded(logical, true) {
				return fs.SkipDir
			}
			return nil
		}
		if s.paths.Excluded(logical, false) || !s.paths.Recognized(path.Ext(logical)) {
			return nil
		}
		walked[logical] = struct{}{}

		doc, serr := s.syncGuarded(ctx, p, force)
		switch {
		case errors.Is(serr, apperr.ErrNotFound):
			s.logger.Debug("sync: vanished during walk", slog.String("path", logical))
		case serr != nil:
			s.metrics.Sync(metrics.SyncError)
			s.logger.Warn("sync: parse failed", slog.String("path", logical), slog.String("error", serr.Error()))
		case doc != nil && !doc.Cached:
			parsed++
		}
		return nil
	})
	if err != nil {
		return parsed, fmt.Errorf("sync: walk: %w", err)
	}

	// Read the known keys once, after the walk, so a file written during the
	// walk is never mistaken for a removed one.
	known, err := s.db.LogicalPaths(ctx)
	if err != nil {
		return parsed, err
	}
	var stale []string
	for p := range known {
		if _, ok := walked[p]; ok {
			continue
		}
		if s.stillIndexable(p) {
			continue
		}
		stale = append(stale, p)
	}
	if err := s.db.DeleteMany(ctx, stale); err != nil {
		return parsed, err
	}
	for range stale {
		s.metrics.Sync(metrics.SyncDeleted)
	}

	total, err := s.db.Count(ctx)
	if err != nil {
		return parsed, err
	}
	s.metrics.Reconciled(time.Since(start), total)
	s.logger.Info("sync: reconciled",
		slog.Int("parsed", parsed),
		slog.Int("deleted", len(stale)),
		slog.Int("documents", total),
		slog.Duration("took", time.Since(start)))
	return parsed, nil
}

// stillIndexable reports whether a record missed by the walk has a file that
// the walk would have picked up, meaning it appeared concurrently.
func (s *Syncer) stillIndexable(logical string) bool {
	if !s.paths.Recognized(path.Ext(logical)) || s.paths.ExcludedTree(logical) {
		return false
	}
	sys, err := s.paths.SystemPath(logical)
	if err != nil {
		return false
	}
	info, err := os.Stat(sys)
	return err == nil && !info.IsDir()
}

// syncGuarded is SyncOne with panics turned into errors, so one malformed
// document cannot abort a walk.
func (s *Syncer) syncGuarded(ctx context.Context, p string, force bool) (doc *models.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync: panic: %v", r)
		}
	}()
	return s.SyncOne(ctx, p, force)
}

// Remove deletes the record of a file that is gone from disk.
func (s *Syncer) Remove(ctx context.Context, logical string) error {
	if err := s.db.Delete(ctx, logical); err != nil {
		return err
	}
	s.metrics.Sync(metrics.SyncDeleted)
	return nil
}

// NextNumericID returns an unused numeric metadata id. Ids just above the
// document count are tried first, then every id from zero.
func (s *Syncer) NextNumericID(ctx context.Context) (int, error) {
	n, err := s.db.Count(ctx)
	if err != nil {
		return 0, err
	}
	used, err := s.db.IDs(ctx)
	if err != nil {
		return 0, err
	}
	free := func(i int) bool {
		_, taken := used[strconv.Itoa(i)]
		return !taken
	}
	for i := n + 1; i < n+1+idProbeWindow; i++ {
		if free(i) {
			return i, nil
		}
	}
	for i := 0; i <= n+1; i++ {
		if free(i) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("sync: no free numeric id among %d documents", n)
}
