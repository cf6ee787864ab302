package storage

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// insertBatchSize bounds the rows per INSERT so the bound-parameter count
// stays well under SQLite's variable limit.
const insertBatchSize = 200

type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	sb      sq.StatementBuilderType
	columns map[string]bool
}

type Article struct {
	ID          int64
	Title       string
	URL         string
	Source      string
	PublishedAt *time.Time
	DomainTags  *string
	Summary     *string
	Notified    bool
	CreatedAt   time.Time
}

// requiredColumns must exist for any article read to succeed.
var requiredColumns = []string{"id", "title", "url", "source", "published_at", "notified", "created_at"}

// NewSQLStore wraps an open database. The table columns are inspected once
// here; call Migrate to bring an older table up to date.
func NewSQLStore(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		sb:      dialect.builder(),
	}
	if err := s.refreshColumns(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Dialect reports which SQL dialect the store speaks.
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

// Ping checks that the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *SQLStore) refreshColumns(ctx context.Context) error {
	cols, err := s.dialect.inspect(ctx, s.db)
	if err != nil {
		return unavailable("inspect columns", err)
	}
	s.columns = make(map[string]bool, len(cols))
	for _, c := range cols {
		s.columns[c.Name] = true
	}
	return nil
}

// HasColumn reports whether the articles table had the column when it was
// last inspected.
func (s *SQLStore) HasColumn(name string) bool {
	return s.columns[name]
}

// selectArticles starts a SELECT over the articles table. Optional columns
// absent from the live table are read as NULL.
func (s *SQLStore) selectArticles() (sq.SelectBuilder, error) {
	for _, c := range requiredColumns {
		if !s.columns[c] {
			return sq.SelectBuilder{}, missingColumn(c)
		}
	}
	return s.sb.Select(
		"id",
		"COALESCE(title, '')",
		"COALESCE(url, '')",
		"COALESCE(source, '')",
		"published_at",
		s.optionalColumn("domain_tags"),
		s.optionalColumn("summary"),
		"COALESCE(notified, FALSE)",
		"created_at",
	).From("articles"), nil
}

func (s *SQLStore) optionalColumn(name string) string {
	if s.columns[name] {
		return name
	}
	return "NULL AS " + name
}

func (s *SQLStore) queryArticles(ctx context.Context, op string, q sq.SelectBuilder) ([]Article, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	articles := make([]Article, 0)
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.Title, &a.URL, &a.Source, &a.PublishedAt,
			&a.DomainTags, &a.Summary, &a.Notified, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: scan article: %w", op, err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return articles, nil
}

// InsertArticles appends rows and returns how many were inserted. Titles
// and URLs are not deduplicated here. Tags and summaries are dropped when
// the live table lacks those columns.
func (s *SQLStore) InsertArticles(ctx context.Context, articles []Article) (int64, error) {
	for _, c := range []string{"title", "url", "source", "published_at", "notified", "created_at"} {
		if !s.columns[c] {
			return 0, missingColumn(c)
		}
	}
	var inserted int64
	for start := 0; start < len(articles); start += insertBatchSize {
		end := min(start+insertBatchSize, len(articles))

		cols := []string{"title", "url", "source", "published_at", "notified", "created_at"}
		hasTags, hasSummary := s.columns["domain_tags"], s.columns["summary"]
		if hasTags {
			cols = append(cols, "domain_tags")
		}
		if hasSummary {
			cols = append(cols, "summary")
		}
		q := s.sb.Insert("articles").Columns(cols...)

		now := time.Now().UTC()
		for _, a := range articles[start:end] {
			createdAt := now
			if !a.CreatedAt.IsZero() {
				createdAt = a.CreatedAt.UTC()
			}
			var published *time.Time
			if a.PublishedAt != nil {
				p := a.PublishedAt.UTC()
				published = &p
			}
			values := []interface{}{a.Title, a.URL, a.Source, published, a.Notified, createdAt}
			if hasTags {
				values = append(values, a.DomainTags)
			}
			if hasSummary {
				values = append(values, a.Summary)
			}
			q = q.Values(values...)
		}

		query, args, err := q.ToSql()
		if err != nil {
			return inserted, fmt.Errorf("insert articles: build query: %w", err)
		}
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return inserted, unavailable("insert articles", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return inserted, unavailable("insert articles", err)
		}
		inserted += n
	}
	return inserted, nil
}

// QueryRecent returns up to limit articles, newest insert first.
func (s *SQLStore) QueryRecent(ctx context.Context, limit int) ([]Article, error) {
	q, err := s.selectArticles()
	if err != nil {
		return nil, err
	}
	q = q.OrderBy("created_at DESC", "id DESC").Limit(clampUint(limit))
	return s.queryArticles(ctx, "query recent", q)
}

// QueryByTagsAny returns articles whose domain_tags contain at least one of
// the keywords, newest publication first.
func (s *SQLStore) QueryByTagsAny(ctx context.Context, tags []string, limit int) ([]Article, error) {
	if !s.columns["domain_tags"] {
		return nil, missingColumn("domain_tags")
	}
	if len(tags) == 0 {
		return []Article{}, nil
	}
	q, err := s.selectArticles()
	if err != nil {
		return nil, err
	}

	anyTag := sq.Or{}
	for _, tag := range tags {
		anyTag = append(anyTag, s.dialect.contains("domain_tags", tag))
	}
	q = q.Where(anyTag).
		OrderBy("published_at DESC NULLS LAST", "id DESC").
		Limit(clampUint(limit))
	return s.queryArticles(ctx, "query by tags (any)", q)
}

// QueryByTagsAll returns articles whose domain_tags contain every keyword,
// newest insert first. Acknowledged articles are skipped when
// excludeNotified is set.
func (s *SQLStore) QueryByTagsAll(ctx context.Context, tags []string, excludeNotified bool, limit int) ([]Article, error) {
	if !s.columns["domain_tags"] {
		return nil, missingColumn("domain_tags")
	}
	q, err := s.selectArticles()
	if err != nil {
		return nil, err
	}

	allTags := sq.And{}
	for _, tag := range tags {
		allTags = append(allTags, s.dialect.contains("domain_tags", tag))
	}
	if len(allTags) > 0 {
		q = q.Where(allTags)
	}
	if excludeNotified {
		q = q.Where("(notified = FALSE OR notified IS NULL)")
	}
	q = q.OrderBy("created_at DESC", "id DESC").Limit(clampUint(limit))
	return s.queryArticles(ctx, "query by tags (all)", q)
}

// MarkNotified flags an article as acknowledged. An unknown ID is not an
// error; the boolean reports whether a row matched.
func (s *SQLStore) MarkNotified(ctx context.Context, articleID int64) (bool, error) {
	if !s.columns["notified"] {
		return false, missingColumn("notified")
	}
	query, args, err := s.sb.Update("articles").
		Set("notified", true).
		Where(sq.Eq{"id": articleID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("mark notified: build query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, unavailable("mark notified", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, unavailable("mark notified", err)
	}
	return n > 0, nil
}

// QueryPage returns one page of articles ordered by publication date.
// Page numbers are 1-based; page and pageSize are clamped to at least 1.
// A page whose offset does not fit in a signed 64-bit integer is empty.
func (s *SQLStore) QueryPage(ctx context.Context, page, pageSize int) ([]Article, error) {
	page = max(page, 1)
	pageSize = max(pageSize, 1)
	if uint64(page-1) > math.MaxInt64/uint64(pageSize) {
		return []Article{}, nil
	}

	q, err := s.selectArticles()
	if err != nil {
		return nil, err
	}
	q = q.OrderBy("published_at DESC NULLS LAST", "id DESC").
		Limit(uint64(pageSize)).
		Offset(uint64(page-1) * uint64(pageSize))
	return s.queryArticles(ctx, "query page", q)
}

// ExistingURLs reports which of the given URLs are already stored.
func (s *SQLStore) ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for start := 0; start < len(urls); start += insertBatchSize {
		end := min(start+insertBatchSize, len(urls))

		query, args, err := s.sb.Select("url").
			From("articles").
			Where(sq.Eq{"url": urls[start:end]}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("existing urls: build query: %w", err)
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, unavailable("existing urls", err)
		}
		for rows.Next() {
			var u string
			if err := rows.Scan(&u); err != nil {
				rows.Close()
				return nil, fmt.Errorf("existing urls: scan: %w", err)
			}
			existing[u] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, unavailable("existing urls", err)
		}
		rows.Close()
	}
	return existing, nil
}

func clampUint(n int) uint64 {
	if n < 1 {
		return 1
	}
	return uint64(n)
}
