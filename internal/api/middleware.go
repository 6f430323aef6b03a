// Package api implements the notebook REST API using chi.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/starford/nbweb/internal/checksum"
	"github.com/starford/nbweb/internal/models"
)

// Auth configures how requests map to viewers.
//
// When Enabled is false every request is an editor. Otherwise a bearer
// token equal to ReaderToken makes an authenticated reader, a bearer token
// matching the bcrypt EditorTokenHash makes an editor, and anything else is
// anonymous.
type Auth struct {
	Enabled         bool
	ReaderToken     string
	EditorTokenHash string
}

type viewerKey struct{}

// ViewerFrom returns the viewer stored by ViewerMiddleware, anonymous if none.
func ViewerFrom(ctx context.Context) models.Viewer {
	if v, ok := ctx.Value(viewerKey{}).(models.Viewer); ok {
		return v
	}
	return models.Anonymous
}

// WithViewer stores v in ctx.
func WithViewer(ctx context.Context, v models.Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// bearer reads the token from the Authorization header. EventSource cannot
// set headers, so a "token" query parameter is accepted too.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

const (
	rejectedTokens = 1024
	// Unknown tokens may cost at most this many bcrypt comparisons per second.
	editorChecksPerSecond = 10
	editorCheckBurst      = 20
)

// tokenResolver maps bearer tokens to viewers. The reader token is checked
// first with a constant-time compare; only other tokens reach bcrypt, and
// known-bad or over-limit ones never do.
type tokenResolver struct {
	auth     Auth
	editors  sync.Map
	rejected *lru.Cache[string, struct{}]
	limiter  *rate.Limiter
	compare  func(hash, token []byte) error
}

func newTokenResolver(auth Auth) *tokenResolver {
	rejected, _ := lru.New[string, struct{}](rejectedTokens)
	return &tokenResolver{
		auth:     auth,
		rejected: rejected,
		limiter:  rate.NewLimiter(rate.Limit(editorChecksPerSecond), editorCheckBurst),
		compare:  bcrypt.CompareHashAndPassword,
	}
}

func (t *tokenResolver) viewer(token string) models.Viewer {
	if !t.auth.Enabled {
		return models.EditorViewer
	}
	if token == "" {
		return models.Anonymous
	}
	if t.auth.ReaderToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(t.auth.ReaderToken)) == 1 {
		return models.Viewer{Authenticated: true}
	}
	if t.auth.EditorTokenHash == "" {
		return models.Anonymous
	}
	digest := checksum.Sum([]byte(token))
	if _, ok := t.editors.Load(digest); ok {
		return models.EditorViewer
	}
	if t.rejected.Contains(digest) || !t.limiter.Allow() {
		return models.Anonymous
	}
	if t.compare([]byte(t.auth.EditorTokenHash), []byte(token)) == nil {
		t.editors.Store(digest, struct{}{})
		return models.EditorViewer
	}
	t.rejected.Add(digest, struct{}{})
	return models.Anonymous
}

// ViewerMiddleware resolves the viewer of each request. It never rejects a
// request; handlers decide what a viewer may see.
func ViewerMiddleware(auth Auth) func(http.Handler) http.Handler {
	tokens := newTokenResolver(auth)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := tokens.viewer(bearer(r))
			next.ServeHTTP(w, r.WithContext(WithViewer(r.Context(), v)))
		})
	}
}

// RequireEditor rejects requests whose viewer is not an editor.
func RequireEditor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ViewerFrom(r.Context()).Editor {
			writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
