package feeds

import (
	"context"
	"html"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"github.com/matthewjhunter/newsalert/internal/metrics"
	"github.com/matthewjhunter/newsalert/internal/storage"
	"github.com/matthewjhunter/newsalert/internal/tagging"
)

// ArticleWriter is the part of the article store ingestion writes through.
type ArticleWriter interface {
	ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error)
	InsertArticles(ctx context.Context, articles []storage.Article) (int64, error)
}

// Stats summarizes one ingestion pass.
type Stats struct {
	FeedsTotal       int
	FeedsDownloaded  int
	FeedsNotModified int
	FeedsErrored     int
	NewArticles      int
	Skipped          int
	Errors           []string
}

// Ingester pulls sources, tags each new item and stores it.
type Ingester struct {
	fetcher    *Fetcher
	store      ArticleWriter
	classifier tagging.Classifier
	policy     *bluemonday.Policy
	timeout    time.Duration
	logger     *slog.Logger
}

// NewIngester wires a fetcher to the store. timeout bounds each feed.
func NewIngester(store ArticleWriter, classifier tagging.Classifier, timeout time.Duration, logger *slog.Logger) *Ingester {
	if classifier == nil {
		classifier = tagging.NewKeywordClassifier(nil)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		fetcher:    NewFetcher(0),
		store:      store,
		classifier: classifier,
		policy:     bluemonday.StrictPolicy(),
		timeout:    timeout,
		logger:     logger,
	}
}

// Run fetches every source once. Per-feed failures are counted and logged;
// a store failure aborts the pass and is returned with the stats so far.
func (in *Ingester) Run(ctx context.Context, sources []Source) (*Stats, error) {
	stats := &Stats{FeedsTotal: len(sources)}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		feedCtx, cancel := context.WithTimeout(ctx, in.timeout)
		result, err := in.fetcher.FetchFeed(feedCtx, src.URL)
		cancel()
		if err != nil {
			in.logger.Warn("feed fetch failed", "url", src.URL, "error", err)
			stats.FeedsErrored++
			stats.Errors = append(stats.Errors, err.Error())
			continue
		}
		if result.NotModified {
			stats.FeedsNotModified++
			continue
		}
		stats.FeedsDownloaded++

		stored, skipped, err := in.storeFeed(ctx, src, result.Feed)
		stats.NewArticles += stored
		stats.Skipped += skipped
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (in *Ingester) storeFeed(ctx context.Context, src Source, feed *gofeed.Feed) (int, int, error) {
	source := sourceName(src, feed)
	articles := in.articlesFromFeed(ctx, source, feed)
	if len(articles) == 0 {
		return 0, len(feed.Items), nil
	}

	urls := make([]string, len(articles))
	for i, a := range articles {
		urls[i] = a.URL
	}
	existing, err := in.store.ExistingURLs(ctx, urls)
	if err != nil {
		return 0, 0, err
	}

	fresh := articles[:0]
	for _, a := range articles {
		if !existing[a.URL] {
			fresh = append(fresh, a)
		}
	}
	skipped := len(feed.Items) - len(fresh)
	if len(fresh) == 0 {
		return 0, skipped, nil
	}

	n, err := in.store.InsertArticles(ctx, fresh)
	if err != nil {
		return int(n), skipped, err
	}
	metrics.RecordIngested(source, int(n))
	in.logger.Info("stored articles", "source", source, "new", n, "skipped", skipped)
	return int(n), skipped, nil
}

// articlesFromFeed converts feed items, dropping items without a link and
// repeated links within the same feed.
func (in *Ingester) articlesFromFeed(ctx context.Context, source string, feed *gofeed.Feed) []storage.Article {
	seen := make(map[string]bool)
	var articles []storage.Article
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true

		title := in.plainText(item.Title)
		summary := in.plainText(item.Description)
		tags, err := in.classifier.Classify(ctx, title, summary)
		if err != nil {
			in.logger.Warn("tagging failed", "url", link, "error", err)
		}

		a := storage.Article{
			Title:      title,
			URL:        link,
			Source:     source,
			DomainTags: tagging.Join(tags),
		}
		if summary != "" {
			a.Summary = &summary
		}
		if item.PublishedParsed != nil {
			a.PublishedAt = item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			a.PublishedAt = item.UpdatedParsed
		}
		articles = append(articles, a)
	}
	return articles
}

// plainText strips markup and decodes entities.
func (in *Ingester) plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(in.policy.Sanitize(s)))
}

func sourceName(src Source, feed *gofeed.Feed) string {
	if src.Title != "" {
		return src.Title
	}
	if feed != nil && strings.TrimSpace(feed.Title) != "" {
		return strings.TrimSpace(feed.Title)
	}
	if u, err := url.Parse(src.URL); err == nil && u.Host != "" {
		return u.Host
	}
	return src.URL
}
