// Package links resolves the cross references of a document: the documents
// it links to and the documents that link to it.
package links

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/starford/nbweb/internal/apperr"
	"github.com/starford/nbweb/internal/metrics"
	"github.com/starford/nbweb/internal/models"
	"github.com/starford/nbweb/internal/pathutil"
	"github.com/starford/nbweb/internal/render"
)

// Store is the part of the index the resolver reads.
type Store interface {
	ByID(ctx context.Context, id string) (*models.Document, error)
	ByBasename(ctx context.Context, basename string) (*models.Document, error)
	IncomingCandidates(ctx context.Context, basename, idToken string) ([]models.Document, error)
}

// Link is a resolved cross reference.
type Link struct {
	Path    string `json:"path"`
	Href    string `json:"href"`
	Title   string `json:"title"`
	RefName string `json:"reference_name"`
}

func linkTo(d *models.Document) Link {
	return Link{Path: d.LogicalPath, Href: d.Href(), Title: d.Title(), RefName: d.RefName}
}

// Resolver resolves links against the index.
type Resolver struct {
	store   Store
	paths   *pathutil.Resolver
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Resolver. m may be nil.
func New(store Store, paths *pathutil.Resolver, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{store: store, paths: paths, logger: logger, metrics: m}
}

// Outgoing resolves the outgoing links of doc to indexed documents visible
// to v, sorted case-insensitively by path. Links to missing documents are
// logged as broken and left out.
func (r *Resolver) Outgoing(ctx context.Context, doc *models.Document, v models.Viewer) ([]Link, error) {
	seen := map[string]struct{}{}
	var out []Link
	for _, link := range doc.OutgoingLinks {
		target, err := r.target(ctx, link)
		if errors.Is(err, apperr.ErrNotFound) {
			r.broken(doc, link)
			continue
		}
		if err != nil {
			return nil, err
		}
		if _, dup := seen[target.LogicalPath]; dup {
			continue
		}
		seen[target.LogicalPath] = struct{}{}
		if !r.paths.Visible(target, v) {
			continue
		}
		out = append(out, linkTo(target))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Path) < strings.ToLower(out[j].Path)
	})
	return out, nil
}

func (r *Resolver) target(ctx context.Context, link string) (*models.Document, error) {
	if id, ok := strings.CutPrefix(link, render.IDPrefix); ok {
		return r.store.ByID(ctx, id)
	}
	return r.store.ByBasename(ctx, stripExt(link))
}

func (r *Resolver) broken(doc *models.Document, link string) {
	r.metrics.BrokenLink()
	r.logger.Warn("links: broken link",
		slog.String("path", doc.LogicalPath),
		slog.String("link", link))
}

// Incoming returns the documents visible to v that link to doc, ordered by
// basename. Candidates come from a substring pre-filter and each one is kept
// only when one of its links targets doc exactly, by id token or by full
// extension-stripped path.
func (r *Resolver) Incoming(ctx context.Context, doc *models.Document, v models.Viewer) ([]Link, error) {
	target, err := r.idOwner(ctx, doc)
	if err != nil {
		return nil, err
	}
	idToken := ""
	if target.Meta.ID != "" {
		idToken = render.IDPrefix + target.Meta.ID
	}
	candidates, err := r.store.IncomingCandidates(ctx, target.LogicalBasename, idToken)
	if err != nil {
		return nil, err
	}

	var out []Link
	for i := range candidates {
		c := &candidates[i]
		if !Targets(c.OutgoingLinks, target) {
			continue
		}
		if !r.paths.Visible(c, v) {
			continue
		}
		out = append(out, linkTo(c))
	}
	return out, nil
}

// idOwner returns doc unchanged when it is the document an id link resolves
// to, and otherwise a copy without the id so that only path links count.
func (r *Resolver) idOwner(ctx context.Context, doc *models.Document) (*models.Document, error) {
	if doc.Meta.ID == "" {
		return doc, nil
	}
	owner, err := r.store.ByID(ctx, doc.Meta.ID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if owner != nil && owner.LogicalPath == doc.LogicalPath {
		return doc, nil
	}
	shadow := *doc
	shadow.Meta.ID = ""
	return &shadow, nil
}

// Targets reports whether any of links points at doc.
func Targets(links []string, doc *models.Document) bool {
	for _, l := range links {
		if doc.Meta.ID != "" && l == render.IDPrefix+doc.Meta.ID {
			return true
		}
		if !strings.HasPrefix(l, render.IDPrefix) && stripExt(l) == doc.LogicalBasename {
			return true
		}
	}
	return false
}

func stripExt(link string) string {
	return strings.TrimSuffix(link, path.Ext(link))
}
