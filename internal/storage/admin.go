package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Migrate applies every migration newer than the recorded schema version,
// each in its own transaction, then re-inspects the table columns.
func (s *SQLStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.versionDDL); err != nil {
		return unavailable("create schema_migrations", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, m := range s.dialect.Migrations {
		if m.Version <= current {
			continue
		}
		if err := s.refreshColumns(ctx); err != nil {
			return err
		}
		skip := m.Column != "" && s.columns[m.Column]
		if err := s.applyMigration(ctx, m, skip); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return s.refreshColumns(ctx)
}

func (s *SQLStore) applyMigration(ctx context.Context, m Migration, skip bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin", err)
	}
	defer tx.Rollback()

	if !skip {
		for _, stmt := range m.Statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return unavailable("apply", err)
			}
		}
	}

	query, args, err := s.sb.Insert("schema_migrations").
		Columns("version", "name").
		Values(m.Version, m.Name).
		ToSql()
	if err != nil {
		return fmt.Errorf("build version insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return unavailable("record version", err)
	}
	return tx.Commit()
}

// SchemaVersion returns the highest applied migration, or 0 when the
// database has never been migrated.
func (s *SQLStore) SchemaVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	if err != nil {
		if isMissingTable(err) {
			return 0, nil
		}
		return 0, unavailable("schema version", err)
	}
	return int(version.Int64), nil
}

// Reset drops the articles table and rebuilds it from the migrations.
// This destroys all stored articles.
func (s *SQLStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS articles"); err != nil {
		return unavailable("drop articles", err)
	}
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS schema_migrations"); err != nil {
		return unavailable("drop schema_migrations", err)
	}
	return s.Migrate(ctx)
}

// Seed inserts a fixed set of sample articles stamped with the current time.
func (s *SQLStore) Seed(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	rows := make([]Article, len(seedArticles))
	for i, a := range seedArticles {
		a.PublishedAt = &now
		a.CreatedAt = now
		rows[i] = a
	}
	return s.InsertArticles(ctx, rows)
}

// Columns describes the live articles table.
func (s *SQLStore) Columns(ctx context.Context) ([]Column, error) {
	cols, err := s.dialect.inspect(ctx, s.db)
	if err != nil {
		return nil, unavailable("describe articles", err)
	}
	return cols, nil
}

// CountArticles returns the number of stored articles.
func (s *SQLStore) CountArticles(ctx context.Context) (int64, error) {
	query, args, err := s.sb.Select("COUNT(*)").From("articles").ToSql()
	if err != nil {
		return 0, fmt.Errorf("count articles: build query: %w", err)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, unavailable("count articles", err)
	}
	return n, nil
}

// isMissingTable matches the "no such table" errors of both drivers.
func isMissingTable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such table") ||
		(strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist"))
}
