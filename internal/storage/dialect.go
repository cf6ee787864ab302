package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Name       string
	DriverName string
	Migrations []Migration

	placeholder  sq.PlaceholderFormat
	containsFunc string
	versionDDL   string
	inspect      func(ctx context.Context, db *sql.DB) ([]Column, error)
}

// Column describes one column of the articles table.
type Column struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	NotNull    bool    `json:"not_null"`
	Default    *string `json:"default,omitempty"`
	PrimaryKey bool    `json:"primary_key"`
}

var SQLite = Dialect{
	Name:         "sqlite",
	DriverName:   "sqlite",
	Migrations:   sqliteMigrations,
	placeholder:  sq.Question,
	containsFunc: "instr",
	versionDDL:   sqliteVersionTable,
	inspect:      sqliteColumns,
}

var Postgres = Dialect{
	Name:         "postgres",
	DriverName:   "pgx",
	Migrations:   postgresMigrations,
	placeholder:  sq.Dollar,
	containsFunc: "strpos",
	versionDDL:   postgresVersionTable,
	inspect:      postgresColumns,
}

// DialectFor resolves a configured driver name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported database driver %q", name)
	}
}

// contains is a case-sensitive substring test. LIKE is avoided because
// SQLite's LIKE folds ASCII case.
func (d Dialect) contains(column, needle string) sq.Sqlizer {
	return sq.Expr(d.containsFunc+"("+column+", ?) > 0", needle)
}

func (d Dialect) builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.placeholder)
}

// dsn adapts a configured DSN for the driver.
func (d Dialect) dsn(raw string) string {
	if d.Name != SQLite.Name {
		return raw
	}
	if raw == "" {
		raw = "./newsalert.db"
	}
	if strings.Contains(raw, "_time_format=") {
		return raw
	}
	if strings.Contains(raw, "?") {
		return raw + "&_time_format=sqlite"
	}
	return raw + "?_time_format=sqlite"
}

func sqliteColumns(ctx context.Context, db *sql.DB) ([]Column, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info(articles)")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var cid, notnull, pk int
		var c Column
		var dflt sql.NullString
		if err := rows.Scan(&cid, &c.Name, &c.Type, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		c.NotNull = notnull != 0
		c.PrimaryKey = pk != 0
		if dflt.Valid {
			v := dflt.String
			c.Default = &v
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func postgresColumns(ctx context.Context, db *sql.DB) ([]Column, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name, data_type, is_nullable = 'NO', column_default
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = 'articles'
		ORDER BY ordinal_position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var dflt sql.NullString
		if err := rows.Scan(&c.Name, &c.Type, &c.NotNull, &dflt); err != nil {
			return nil, err
		}
		if dflt.Valid {
			v := dflt.String
			c.Default = &v
		}
		c.PrimaryKey = c.Name == "id"
		cols = append(cols, c)
	}
	return cols, rows.Err()
}
