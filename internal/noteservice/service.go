// Package noteservice coordinates the index, the cross reference resolver,
// the search engine and file storage behind every read and edit of the
// notebook.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/starford/nbweb/internal/apperr"
	"github.com/starford/nbweb/internal/checksum"
	"github.com/starford/nbweb/internal/index"
	"github.com/starford/nbweb/internal/links"
	"github.com/starford/nbweb/internal/metrics"
	"github.com/starford/nbweb/internal/models"
	"github.com/starford/nbweb/internal/parser"
	"github.com/starford/nbweb/internal/pathutil"
	"github.com/starford/nbweb/internal/search"
	"github.com/starford/nbweb/internal/settings"
	"github.com/starford/nbweb/internal/storage"
)

// Page is a document with its cross references as served to one viewer.
// Content is only filled for editors.
type Page struct {
	Document *models.Document `json:"document"`
	Outgoing []links.Link     `json:"outgoing"`
	Incoming []links.Link     `json:"incoming"`
	Content  string           `json:"content,omitempty"`
	Checksum string           `json:"checksum"`
}

// Service coordinates storage and index operations.
type Service struct {
	syncer *index.Syncer
	db     *index.DB
	paths  *pathutil.Resolver
	nb     settings.Notebook
	store  storage.Provider
	links  *links.Resolver
	search *search.Engine
	logger *slog.Logger
	notify index.EventCallback
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets a callback invoked after each edit made through the
// service.
func WithNotifier(cb index.EventCallback) Option {
	return func(s *Service) { s.notify = cb }
}

// NewService creates a new notebook service.
func NewService(syncer *index.Syncer, store storage.Provider, engine *search.Engine, resolver *links.Resolver, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		syncer: syncer,
		db:     syncer.DB(),
		paths:  syncer.Paths(),
		nb:     syncer.Settings(),
		store:  store,
		links:  resolver,
		search: engine,
		logger: logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Build wires a Service and its collaborators over an open index. m may be nil.
func Build(nb settings.Notebook, db *index.DB, logger *slog.Logger, m *metrics.Metrics, opts ...Option) (*Service, error) {
	paths, err := pathutil.New(nb)
	if err != nil {
		return nil, err
	}
	syncer := index.NewSyncer(db, paths, nb, logger, m)
	engine, err := search.New(db, paths, syncer.Normalizer(), logger, m)
	if err != nil {
		return nil, err
	}
	resolver := links.New(db, paths, logger, m)
	return NewService(syncer, storage.NewFS(paths), engine, resolver, logger, opts...), nil
}

// Syncer returns the sync engine behind the service.
func (s *Service) Syncer() *index.Syncer { return s.syncer }

// Settings returns the notebook settings.
func (s *Service) Settings() settings.Notebook { return s.nb }

func (s *Service) emit(kind, logical string) {
	if s.notify != nil {
		s.notify(kind, logical)
	}
}

// Clean turns user input into a logical path: "/"-rooted, no trailing slash.
func Clean(p string) string {
	return path.Clean("/" + strings.TrimSpace(p))
}

// excludedDir reports whether a directory or any of its ancestors is excluded.
func (s *Service) excludedDir(dir string) bool {
	if dir == "/" {
		return false
	}
	return s.paths.Excluded(dir, true) || s.paths.ExcludedTree(dir)
}

// resolve locates the document behind a possibly extensionless or ".html"
// logical path and brings its record up to date.
func (s *Service) resolve(ctx context.Context, logical string, force bool) (*models.Document, error) {
	logical = Clean(logical)
	if logical == "/" {
		return nil, fmt.Errorf("notebook: %s: %w", logical, apperr.ErrNotFound)
	}
	sys, err := s.paths.Locate(logical)
	if err != nil {
		return nil, err
	}
	located, err := s.paths.LogicalPath(sys)
	if err != nil {
		return nil, err
	}
	if s.paths.ExcludedTree(located) {
		return nil, fmt.Errorf("notebook: %s: %w", logical, apperr.ErrNotFound)
	}
	doc, err := s.syncer.SyncOne(ctx, sys, force)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("notebook: %s is not a document: %w", logical, apperr.ErrNotFound)
	}
	return doc, nil
}

// Document returns the document at logical with its cross references.
// Drafts and protected documents the viewer may not see are unauthorized.
func (s *Service) Document(ctx context.Context, logical string, v models.Viewer) (*Page, error) {
	doc, err := s.resolve(ctx, logical, false)
	if err != nil {
		return nil, err
	}
	if !s.paths.Visible(doc, v) {
		return nil, fmt.Errorf("notebook: %s: %w", doc.LogicalPath, apperr.ErrUnauthorized)
	}
	return s.page(ctx, doc, v)
}

func (s *Service) page(ctx context.Context, doc *models.Document, v models.Viewer) (*Page, error) {
	data, err := s.store.Read(doc.LogicalPath)
	if err != nil {
		return nil, err
	}
	out, err := s.links.Outgoing(ctx, doc, v)
	if err != nil {
		return nil, err
	}
	in, err := s.links.Incoming(ctx, doc, v)
	if err != nil {
		return nil, err
	}
	p := &Page{
		Document: doc,
		Outgoing: nonNilSlice(out),
		Incoming: nonNilSlice(in),
		Checksum: checksum.Sum(data),
	}
	if v.Editor {
		p.Content = string(data)
	}
	return p, nil
}

// Raw returns the system path of a file served as is, such as an image.
// Hidden path components are refused; protected files need an
// authenticated viewer.
func (s *Service) Raw(_ context.Context, logical string, v models.Viewer) (string, error) {
	logical = Clean(logical)
	for _, part := range strings.Split(strings.TrimPrefix(logical, "/"), "/") {
		if strings.HasPrefix(part, ".") {
			return "", fmt.Errorf("notebook: %s: %w", logical, apperr.ErrNotFound)
		}
	}
	if !v.Authenticated && !v.Editor && s.paths.Protected(logical) {
		return "", fmt.Errorf("notebook: %s: %w", logical, apperr.ErrUnauthorized)
	}
	sys, err := s.paths.SystemPath(logical)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(sys)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("notebook: %s: %w", logical, apperr.ErrNotFound)
	}
	return sys, nil
}

// Search runs a ranked query for v.
func (s *Service) Search(ctx context.Context, query string, v models.Viewer) (*search.Result, error) {
	return s.search.Search(ctx, query, v)
}

// ForwardID returns the published location of the first document carrying
// the metadata id.
func (s *Service) ForwardID(ctx context.Context, id string, v models.Viewer) (string, error) {
	doc, err := s.db.ByID(ctx, id)
	if err != nil {
		return "", err
	}
	if !s.paths.Visible(doc, v) {
		return "", fmt.Errorf("notebook: id %s: %w", id, apperr.ErrUnauthorized)
	}
	return doc.Href(), nil
}

// NewID returns a numeric id no document uses yet.
func (s *Service) NewID(ctx context.Context) (int, error) {
	return s.syncer.NextNumericID(ctx)
}

// Refresh reconciles the index with the source tree. reset drops every
// record first, which implies a full parse.
func (s *Service) Refresh(ctx context.Context, force, reset bool) (int, error) {
	if reset {
		if err := s.db.Reset(ctx); err != nil {
			return 0, err
		}
		force = true
	}
	return s.syncer.Reconcile(ctx, force)
}

// checkWritable rejects paths that the index would never pick up.
func (s *Service) checkWritable(logical string) error {
	if logical == "/" || !s.paths.Recognized(path.Ext(logical)) {
		return fmt.Errorf("notebook: %s: unsupported document type: %w", logical, apperr.ErrInvalidInput)
	}
	if s.paths.ExcludedTree(logical) {
		return fmt.Errorf("notebook: %s is excluded: %w", logical, apperr.ErrInvalidInput)
	}
	return nil
}

// Create writes a new document and indexes it.
func (s *Service) Create(ctx context.Context, logical string, content []byte) (*Page, error) {
	logical = Clean(logical)
	if err := s.checkWritable(logical); err != nil {
		return nil, err
	}
	if !parser.IsText(content) {
		return nil, fmt.Errorf("notebook: %s: %w", logical, apperr.ErrBinaryContent)
	}
	if _, err := s.store.Read(logical); err == nil {
		return nil, fmt.Errorf("notebook: %s: %w", logical, apperr.ErrAlreadyExists)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if err := s.store.Write(logical, content); err != nil {
		return nil, err
	}
	page, err := s.reindex(ctx, logical)
	if err != nil {
		return nil, err
	}
	s.logger.Info("notebook: created", slog.String("path", logical))
	s.emit(index.EventCreated, logical)
	return page, nil
}

// Update replaces the content of an existing document. A non-empty ifMatch
// must match the checksum of the current content.
func (s *Service) Update(ctx context.Context, logical string, content []byte, ifMatch string) (*Page, error) {
	doc, err := s.resolve(ctx, logical, false)
	if err != nil {
		return nil, err
	}
	existing, err := s.store.Read(doc.LogicalPath)
	if err != nil {
		return nil, err
	}
	if !parser.IsText(existing) || !parser.IsText(content) {
		return nil, fmt.Errorf("notebook: %s: %w", doc.LogicalPath, apperr.ErrBinaryContent)
	}
	if !checksum.Match(ifMatch, existing) {
		return nil, fmt.Errorf("notebook: %s changed on disk: %w", doc.LogicalPath, apperr.ErrConflict)
	}
	if err := s.store.Write(doc.LogicalPath, content); err != nil {
		return nil, err
	}
	page, err := s.reindex(ctx, doc.LogicalPath)
	if err != nil {
		return nil, err
	}
	s.logger.Info("notebook: updated", slog.String("path", doc.LogicalPath))
	s.emit(index.EventUpdated, doc.LogicalPath)
	return page, nil
}

// Delete removes the file first and then its record, so a crash in between
// leaves at most a record that the next reconcile drops.
func (s *Service) Delete(ctx context.Context, logical string) error {
	doc, err := s.resolve(ctx, logical, false)
	if err != nil {
		return err
	}
	if err := s.store.Delete(doc.LogicalPath); err != nil {
		return err
	}
	if err := s.syncer.Remove(ctx, doc.LogicalPath); err != nil {
		return err
	}
	s.logger.Info("notebook: deleted", slog.String("path", doc.LogicalPath))
	s.emit(index.EventDeleted, doc.LogicalPath)
	return nil
}

// Move renames a document and re-indexes it under the new path.
func (s *Service) Move(ctx context.Context, from, to string) (*Page, error) {
	doc, err := s.resolve(ctx, from, false)
	if err != nil {
		return nil, err
	}
	to = Clean(to)
	if err := s.checkWritable(to); err != nil {
		return nil, err
	}
	if err := s.store.Move(doc.LogicalPath, to); err != nil {
		return nil, err
	}
	if err := s.syncer.Remove(ctx, doc.LogicalPath); err != nil {
		return nil, err
	}
	page, err := s.reindex(ctx, to)
	if err != nil {
		return nil, err
	}
	s.logger.Info("notebook: moved", slog.String("from", doc.LogicalPath), slog.String("to", to))
	s.emit(index.EventDeleted, doc.LogicalPath)
	s.emit(index.EventCreated, to)
	return page, nil
}

// reindex parses a just written file. The write may land within the
// staleness tolerance of the old record, so the parse is forced.
func (s *Service) reindex(ctx context.Context, logical string) (*Page, error) {
	sys, err := s.paths.SystemPath(logical)
	if err != nil {
		return nil, err
	}
	doc, err := s.syncer.SyncOne(ctx, sys, true)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("notebook: %s: %w", logical, apperr.ErrNotFound)
	}
	return s.page(ctx, doc, models.EditorViewer)
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
