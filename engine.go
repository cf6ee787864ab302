package newsalert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/matthewjhunter/newsalert/internal/feeds"
	"github.com/matthewjhunter/newsalert/internal/metrics"
	"github.com/matthewjhunter/newsalert/internal/storage"
	"github.com/matthewjhunter/newsalert/internal/tagging"
)

var (
	// ErrStoreUnavailable reports that the article store could not be reached
	// or a query against it failed.
	ErrStoreUnavailable = storage.ErrStoreUnavailable
	// ErrSchemaMismatch reports that the articles table lacks a column a
	// query needs.
	ErrSchemaMismatch = storage.ErrSchemaMismatch
	// ErrReadOnly is returned by Ingest on an engine built with ReadOnly.
	ErrReadOnly = errors.New("engine is read-only")
)

// Engine is the public API for newsalert's article feeds. It maps each feed
// to a store query with fixed tags and limits and owns ingestion.
type Engine struct {
	store    storage.ArticleStore
	ingester *feeds.Ingester
	config   EngineConfig
	logger   *slog.Logger
}

// NewEngine opens the configured database, retrying while it is
// unreachable, and builds the ingester unless cfg.ReadOnly is set.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	retry := storage.DefaultRetryPolicy()
	if cfg.RetryDelay > 0 {
		retry.Delay = cfg.RetryDelay
		retry.MaxDelay = cfg.RetryMaxDelay
		retry.Multiplier = cfg.RetryMultiplier
	}
	retry.MaxAttempts = cfg.RetryMaxAttempts

	store, err := storage.Open(ctx, storage.Options{
		Driver:      cfg.Driver,
		DSN:         cfg.DSN,
		AutoMigrate: cfg.AutoMigrate,
		Retry:       retry,
	}, cfg.Logger.With("component", "storage"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	engine, err := NewEngineWithStore(store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return engine, nil
}

// NewEngineWithStore builds an engine over an already open store. The
// engine takes ownership of the store and closes it in Close.
func NewEngineWithStore(store storage.ArticleStore, cfg EngineConfig) (*Engine, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	e := &Engine{
		store:  store,
		config: cfg,
		logger: cfg.Logger.With("component", "engine"),
	}
	if cfg.ReadOnly {
		return e, nil
	}

	classifier, err := newClassifier(cfg)
	if err != nil {
		return nil, fmt.Errorf("create classifier: %w", err)
	}
	e.ingester = feeds.NewIngester(store, classifier, cfg.FetchTimeout, cfg.Logger.With("component", "ingest"))
	return e, nil
}

func newClassifier(cfg EngineConfig) (tagging.Classifier, error) {
	keywords := tagging.NewKeywordClassifier(cfg.TagRules)
	if !cfg.OllamaEnabled {
		return keywords, nil
	}
	return tagging.NewOllamaClassifier(cfg.OllamaBaseURL, cfg.OllamaModel, cfg.OllamaTemperature,
		keywords, cfg.Logger.With("component", "tagging"))
}

// RecentNews returns the most recently stored articles, newest first.
func (e *Engine) RecentNews(ctx context.Context) ([]Article, error) {
	articles, err := e.store.QueryRecent(ctx, RecentLimit)
	if err != nil {
		return e.fail("recent", err)
	}
	return articlesFromInternal(articles), nil
}

// TopArticles returns articles carrying any of TopTags, newest publication
// first.
func (e *Engine) TopArticles(ctx context.Context) ([]Article, error) {
	articles, err := e.store.QueryByTagsAny(ctx, TopTags, TopLimit)
	if err != nil {
		return e.fail("top", err)
	}
	return articlesFromInternal(articles), nil
}

// CriticalArticles returns unacknowledged articles carrying all of
// CriticalTags. A table without domain_tags yields an empty list.
func (e *Engine) CriticalArticles(ctx context.Context) ([]Article, error) {
	articles, err := e.store.QueryByTagsAll(ctx, CriticalTags, true, CriticalLimit)
	if errors.Is(err, storage.ErrSchemaMismatch) {
		e.logger.Debug("critical feed unavailable on this schema", "error", err)
		return []Article{}, nil
	}
	if err != nil {
		return e.fail("critical", err)
	}
	return articlesFromInternal(articles), nil
}

// CriticalArticlesAll is CriticalArticles including acknowledged articles.
func (e *Engine) CriticalArticlesAll(ctx context.Context) ([]Article, error) {
	articles, err := e.store.QueryByTagsAll(ctx, CriticalTags, false, CriticalLimit)
	if err != nil {
		return e.fail("critical_all", err)
	}
	return articlesFromInternal(articles), nil
}

// MarkRead acknowledges an article. Unknown IDs are not an error.
func (e *Engine) MarkRead(ctx context.Context, articleID int64) error {
	found, err := e.store.MarkNotified(ctx, articleID)
	if err != nil {
		metrics.RecordStoreError("mark_read", err)
		return fmt.Errorf("mark article %d read: %w", articleID, err)
	}
	if !found {
		e.logger.Debug("mark read: no such article", "id", articleID)
	}
	return nil
}

// OtherNews returns one page of all articles by publication date. Page and
// limit go through NormalizePage.
func (e *Engine) OtherNews(ctx context.Context, page, limit int) ([]Article, error) {
	page, limit = NormalizePage(page, limit)
	articles, err := e.store.QueryPage(ctx, page, limit)
	if err != nil {
		return e.fail("page", err)
	}
	return articlesFromInternal(articles), nil
}

// NormalizePage replaces non-positive values with DefaultPage and
// DefaultPageLimit.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultPageLimit
	}
	return page, limit
}

// Ingest fetches every configured source once and stores new articles.
func (e *Engine) Ingest(ctx context.Context) (*IngestResult, error) {
	if e.ingester == nil {
		return nil, ErrReadOnly
	}
	sources, err := feeds.ResolveSources(e.config.Sources, e.config.OPMLPath)
	if err != nil {
		return nil, fmt.Errorf("resolve sources: %w", err)
	}

	stats, err := e.ingester.Run(ctx, sources)
	result := ingestResultFromStats(stats)
	if err != nil {
		metrics.RecordStoreError("ingest", err)
		return result, fmt.Errorf("ingest: %w", err)
	}
	return result, nil
}

// Ping checks that the store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// Close releases all resources held by the engine.
func (e *Engine) Close() error {
	return e.store.Close()
}

func (e *Engine) fail(feed string, err error) ([]Article, error) {
	metrics.RecordStoreError(feed, err)
	return nil, fmt.Errorf("%s feed: %w", feed, err)
}

// --- internal type conversion helpers ---

func articleFromInternal(a storage.Article) Article {
	return Article{
		ID:          a.ID,
		Title:       a.Title,
		URL:         a.URL,
		Source:      a.Source,
		PublishedAt: a.PublishedAt,
		DomainTags:  a.DomainTags,
		Summary:     a.Summary,
		Notified:    a.Notified,
		CreatedAt:   a.CreatedAt,
	}
}

func articlesFromInternal(articles []storage.Article) []Article {
	result := make([]Article, len(articles))
	for i, a := range articles {
		result[i] = articleFromInternal(a)
	}
	return result
}

func ingestResultFromStats(s *feeds.Stats) *IngestResult {
	if s == nil {
		return &IngestResult{}
	}
	return &IngestResult{
		FeedsTotal:       s.FeedsTotal,
		FeedsDownloaded:  s.FeedsDownloaded,
		FeedsNotModified: s.FeedsNotModified,
		FeedsErrored:     s.FeedsErrored,
		NewArticles:      s.NewArticles,
		Skipped:          s.Skipped,
		Errors:           s.Errors,
	}
}
