package storage

// Migration is one numbered schema step. When Column is set the step only
// adds that column and is recorded without running if the column already
// exists, which covers tables created before versioning.
type Migration struct {
	Version    int
	Name       string
	Column     string
	Statements []string
}

const sqliteVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

const postgresVersionTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

var sqliteMigrations = []Migration{
	{
		Version: 1,
		Name:    "create articles",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS articles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    published_at DATETIME,
    domain_tags TEXT,
    summary TEXT,
    notified BOOLEAN NOT NULL DEFAULT 0,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`,
		},
	},
	{
		Version:    2,
		Name:       "add domain_tags",
		Column:     "domain_tags",
		Statements: []string{"ALTER TABLE articles ADD COLUMN domain_tags TEXT"},
	},
	{
		Version:    3,
		Name:       "add summary",
		Column:     "summary",
		Statements: []string{"ALTER TABLE articles ADD COLUMN summary TEXT"},
	},
	{
		Version:    4,
		Name:       "add notified",
		Column:     "notified",
		Statements: []string{"ALTER TABLE articles ADD COLUMN notified BOOLEAN NOT NULL DEFAULT 0"},
	},
	{
		// SQLite refuses ADD COLUMN with a non-constant default, so backfill.
		Version: 5,
		Name:    "add created_at",
		Column:  "created_at",
		Statements: []string{
			"ALTER TABLE articles ADD COLUMN created_at DATETIME",
			"UPDATE articles SET created_at = COALESCE(published_at, CURRENT_TIMESTAMP) WHERE created_at IS NULL",
		},
	},
	{
		Version: 6,
		Name:    "ordering indexes",
		Statements: []string{
			"CREATE INDEX IF NOT EXISTS idx_articles_created ON articles(created_at DESC)",
			"CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at DESC)",
			"CREATE INDEX IF NOT EXISTS idx_articles_url ON articles(url)",
		},
	},
}

var postgresMigrations = []Migration{
	{
		Version: 1,
		Name:    "create articles",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS articles (
    id BIGSERIAL PRIMARY KEY,
    title TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    source TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMPTZ,
    domain_tags TEXT,
    summary TEXT,
    notified BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		},
	},
	{
		Version:    2,
		Name:       "add domain_tags",
		Column:     "domain_tags",
		Statements: []string{"ALTER TABLE articles ADD COLUMN IF NOT EXISTS domain_tags TEXT"},
	},
	{
		Version:    3,
		Name:       "add summary",
		Column:     "summary",
		Statements: []string{"ALTER TABLE articles ADD COLUMN IF NOT EXISTS summary TEXT"},
	},
	{
		Version:    4,
		Name:       "add notified",
		Column:     "notified",
		Statements: []string{"ALTER TABLE articles ADD COLUMN IF NOT EXISTS notified BOOLEAN NOT NULL DEFAULT FALSE"},
	},
	{
		Version:    5,
		Name:       "add created_at",
		Column:     "created_at",
		Statements: []string{"ALTER TABLE articles ADD COLUMN IF NOT EXISTS created_at TIMESTAMPTZ NOT NULL DEFAULT now()"},
	},
	{
		Version: 6,
		Name:    "ordering indexes",
		Statements: []string{
			"CREATE INDEX IF NOT EXISTS idx_articles_created ON articles(created_at DESC)",
			"CREATE INDEX IF NOT EXISTS idx_articles_published ON articles(published_at DESC)",
			"CREATE INDEX IF NOT EXISTS idx_articles_url ON articles(url)",
		},
	},
}

// seedArticles are the sample rows written by the seed command.
var seedArticles = []Article{
	{Title: "Global Markets Rally on Strong Economic Data", URL: "https://finance.yahoo.com/news/markets-rally", Source: "Yahoo Finance"},
	{Title: "Tech Stocks Surge After Earnings Beat", URL: "https://bloomberg.com/news/tech-surge", Source: "Bloomberg"},
	{Title: "Oil Prices Jump on Supply Concerns", URL: "https://reuters.com/business/energy/oil-prices", Source: "Reuters"},
	{Title: "Federal Reserve Hints at Rate Changes", URL: "https://wsj.com/articles/fed-rates", Source: "Wall Street Journal"},
	{Title: "Cryptocurrency Market Shows Volatility", URL: "https://coindesk.com/markets/crypto-vol", Source: "CoinDesk"},
}
