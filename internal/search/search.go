// Package search ranks documents for a free-text query using windowed
// substring scoring over the normalized search text, boosted by the scores
// of the pages that link in.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/starford/nbweb/internal/metrics"
	"github.com/starford/nbweb/internal/models"
	"github.com/starford/nbweb/internal/pathutil"
	"github.com/starford/nbweb/internal/render"
	"github.com/starford/nbweb/internal/textnorm"
)

// MaxResults caps the number of hits.
const MaxResults = 20

const cacheSize = 256

// Status classifies a search outcome.
type Status string

const (
	StatusOK           Status = "ok"
	StatusInsufficient Status = "insufficient"
	StatusNoResults    Status = "no_results"
)

// Store is the part of the index the engine reads.
type Store interface {
	SearchCandidates(ctx context.Context, tokens []string, includeDrafts bool) ([]models.Document, error)
	IDTargets(ctx context.Context) (map[string]string, error)
	Generation() uint64
}

// Hit is one ranked document.
type Hit struct {
	Path     string  `json:"path"`
	Href     string  `json:"href"`
	Title    string  `json:"title"`
	RefName  string  `json:"reference_name"`
	Score    float64 `json:"score"`
	Direct   float64 `json:"direct"`
	Incoming float64 `json:"incoming"`
}

// Result is the outcome of a query. Message is set for the insufficient and
// no-results outcomes.
type Result struct {
	Query      string `json:"query"`
	Normalized string `json:"normalized"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	Hits       []Hit  `json:"hits"`
}

func (r *Result) clone() *Result {
	c := *r
	c.Hits = append([]Hit(nil), r.Hits...)
	return &c
}

// Engine runs queries. Results are cached per index generation.
type Engine struct {
	store   Store
	paths   *pathutil.Resolver
	norm    *textnorm.Normalizer
	cache   *lru.Cache[string, *Result]
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an Engine. norm must be configured like the one used to build
// search text. m may be nil.
func New(store Store, paths *pathutil.Resolver, norm *textnorm.Normalizer, logger *slog.Logger, m *metrics.Metrics) (*Engine, error) {
	cache, err := lru.New[string, *Result](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("search: cache: %w", err)
	}
	return &Engine{store: store, paths: paths, norm: norm, cache: cache, metrics: m, logger: logger}, nil
}

// Search ranks the documents visible to v against query.
func (e *Engine) Search(ctx context.Context, query string, v models.Viewer) (*Result, error) {
	start := time.Now()
	tokens := e.norm.Tokens(query)
	normalized := strings.Join(tokens, " ")
	if len(tokens) == 0 {
		e.metrics.Searched(string(StatusInsufficient), time.Since(start), false)
		return &Result{
			Query:   query,
			Status:  StatusInsufficient,
			Message: fmt.Sprintf("Error: Non-sufficient search query: %q", query),
		}, nil
	}

	key := fmt.Sprintf("%d|%t|%t|%s", e.store.Generation(), v.Editor, v.Authenticated, normalized)
	if cached, ok := e.cache.Get(key); ok {
		res := cached.clone()
		res.Query = query
		res.Normalized = normalized
		res.Message = message(res.Status, query)
		e.metrics.Searched(string(res.Status), time.Since(start), true)
		return res, nil
	}

	val, err, _ := e.group.Do(key, func() (any, error) {
		res, err := e.rank(ctx, tokens, v)
		if err != nil {
			return nil, err
		}
		e.cache.Add(key, res)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	res := val.(*Result).clone()
	res.Query = query
	res.Normalized = normalized
	res.Message = message(res.Status, query)
	e.metrics.Searched(string(res.Status), time.Since(start), false)
	e.logger.Debug("search: ranked",
		slog.String("query", normalized),
		slog.Int("hits", len(res.Hits)),
		slog.Duration("took", time.Since(start)))
	return res, nil
}

func message(s Status, query string) string {
	switch s {
	case StatusInsufficient:
		return fmt.Sprintf("Error: Non-sufficient search query: %q", query)
	case StatusNoResults:
		return fmt.Sprintf("No results for %q", query)
	}
	return ""
}

type incoming struct {
	count int
	score float64
}

func (e *Engine) rank(ctx context.Context, tokens []string, v models.Viewer) (*Result, error) {
	candidates, err := e.store.SearchCandidates(ctx, tokens, v.Editor)
	if err != nil {
		return nil, err
	}
	windows := Windows(tokens, MaxWindow)

	var idTargets map[string]string
	resolve := func(link string) (string, error) {
		id, ok := strings.CutPrefix(link, render.IDPrefix)
		if !ok {
			return strings.TrimSuffix(link, path.Ext(link)), nil
		}
		if idTargets == nil {
			if idTargets, err = e.store.IDTargets(ctx); err != nil {
				return "", err
			}
		}
		return idTargets[id], nil
	}

	direct := make([]float64, 0, len(candidates))
	boosts := map[string]*incoming{}
	visible := make([]models.Document, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if !e.paths.Visible(c, v) {
			continue
		}
		score := DirectScore(strings.ToLower(c.Meta.Title), c.SearchText, windows)
		direct = append(direct, score)
		visible = append(visible, *c)
		for _, link := range c.OutgoingLinks {
			target, err := resolve(link)
			if err != nil {
				return nil, err
			}
			if target == "" {
				continue
			}
			b := boosts[target]
			if b == nil {
				b = &incoming{}
				boosts[target] = b
			}
			b.count++
			b.score += score
		}
	}

	hits := make([]Hit, 0, len(visible))
	for i := range visible {
		d := &visible[i]
		var in float64
		var count int
		if b := boosts[d.LogicalBasename]; b != nil {
			in, count = b.score, b.count
		}
		final := Combine(direct[i], in, count)
		hits = append(hits, Hit{
			Path:     d.LogicalPath,
			Href:     d.Href(),
			Title:    d.Title(),
			RefName:  d.RefName,
			Score:    final,
			Direct:   direct[i],
			Incoming: in,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Direct != hits[j].Direct {
			return hits[i].Direct > hits[j].Direct
		}
		return hits[i].Path < hits[j].Path
	})

	var out []Hit
	for _, h := range hits {
		if len(out) == MaxResults || h.Score == 0 {
			break
		}
		out = append(out, h)
	}

	res := &Result{Normalized: strings.Join(tokens, " "), Status: StatusOK, Hits: out}
	if len(out) == 0 {
		res.Status = StatusNoResults
	}
	return res, nil
}
