package index

import (
	"context"

	"github.com/starford/nbweb/internal/models"
)

// Store defines the document index operations.
// Consumers should depend on this interface (or a narrower one) rather than
// the concrete *DB type to facilitate testing with fakes.
type Store interface {
	Lookup(ctx context.Context, logicalPath string) ([]models.Document, error)
	Get(ctx context.Context, logicalPath string) (*models.Document, error)
	Save(ctx context.Context, doc *models.Document) error
	Delete(ctx context.Context, logicalPath string) error
	DeleteMany(ctx context.Context, logicalPaths []string) error
	LogicalPaths(ctx context.Context) (map[string]struct{}, error)
	Count(ctx context.Context) (int, error)
	IDs(ctx context.Context) (map[string]struct{}, error)
	ByID(ctx context.Context, id string) (*models.Document, error)
	ByBasename(ctx context.Context, basename string) (*models.Document, error)
	IDTargets(ctx context.Context) (map[string]string, error)
	ListDirectory(ctx context.Context, dir string, includeDrafts bool) ([]models.Document, error)
	SearchCandidates(ctx context.Context, tokens []string, includeDrafts bool) ([]models.Document, error)
	IncomingCandidates(ctx context.Context, basename, idToken string) ([]models.Document, error)
	WithTodos(ctx context.Context, dir string, includeDrafts bool) ([]models.Document, error)
	WithTags(ctx context.Context, includeDrafts bool) ([]models.Document, error)
	BlogPosts(ctx context.Context, offset, limit int, includeDrafts bool) ([]models.Document, error)
	Generation() uint64
	Reset(ctx context.Context) error
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
