package storage

import "context"

// ArticleStore defines the storage interface for newsalert's data layer.
// It exposes query primitives only; tag sets, limits and error masking
// belong to the caller.
type ArticleStore interface {
	Close() error

	// Writes
	InsertArticles(ctx context.Context, articles []Article) (int64, error)
	MarkNotified(ctx context.Context, articleID int64) (bool, error)

	// Reads
	QueryRecent(ctx context.Context, limit int) ([]Article, error)
	QueryByTagsAny(ctx context.Context, tags []string, limit int) ([]Article, error)
	QueryByTagsAll(ctx context.Context, tags []string, excludeNotified bool, limit int) ([]Article, error)
	QueryPage(ctx context.Context, page, pageSize int) ([]Article, error)

	// Ingestion support
	ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error)

	// Health
	Ping(ctx context.Context) error
}

// Admin is implemented by stores that support out-of-band schema tooling.
// The HTTP surface never reaches these operations.
type Admin interface {
	Migrate(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
	Seed(ctx context.Context) (int64, error)
	Columns(ctx context.Context) ([]Column, error)
}

var (
	_ ArticleStore = (*SQLStore)(nil)
	_ Admin        = (*SQLStore)(nil)
)
