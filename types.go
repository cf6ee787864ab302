package newsalert

import (
	"log/slog"
	"time"
)

// Feed sizes and tag sets served by the Engine.
const (
	RecentLimit      = 50
	TopLimit         = 5
	CriticalLimit    = 3
	DefaultPage      = 1
	DefaultPageLimit = 40
)

var (
	// TopTags selects the top feed: an article needs any one of them.
	TopTags = []string{"war", "religion", "economy", "tech", "politics", "world"}
	// CriticalTags selects the critical feed: an article needs all of them.
	CriticalTags = []string{"finance", "geopolitics", "religion"}
)

// EngineConfig configures the newsalert engine.
type EngineConfig struct {
	Driver      string // "sqlite" (default) or "postgres"
	DSN         string
	AutoMigrate bool

	// Startup retry while the database is unreachable. MaxAttempts 0
	// retries until the context is cancelled.
	RetryDelay       time.Duration
	RetryMaxDelay    time.Duration
	RetryMultiplier  float64
	RetryMaxAttempts int

	Sources      []string // RSS/Atom feed URLs for Ingest
	OPMLPath     string   // optional OPML file of extra sources
	FetchTimeout time.Duration

	TagRules          map[string][]string // keyword rules; nil means the built-in set
	OllamaEnabled     bool
	OllamaBaseURL     string
	OllamaModel       string
	OllamaTemperature float64

	ReadOnly bool // when true, skip ingester creation
	Logger   *slog.Logger
}

// Article is one stored news item.
type Article struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Source      string     `json:"source"`
	PublishedAt *time.Time `json:"published_at"`
	DomainTags  *string    `json:"domain_tags"`
	Summary     *string    `json:"summary"`
	Notified    bool       `json:"notified"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IngestResult summarizes a feed polling cycle.
type IngestResult struct {
	FeedsTotal       int      `json:"feeds_total"`
	FeedsDownloaded  int      `json:"feeds_downloaded"`
	FeedsNotModified int      `json:"feeds_not_modified"`
	FeedsErrored     int      `json:"feeds_errored"`
	NewArticles      int      `json:"new_articles"`
	Skipped          int      `json:"skipped"`
	Errors           []string `json:"errors,omitempty"`
}
