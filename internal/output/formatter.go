package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/matthewjhunter/newsalert"
	"github.com/matthewjhunter/newsalert/internal/storage"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

// OutputIngestResult outputs the ingest result in the configured format
func (f *Formatter) OutputIngestResult(result *newsalert.IngestResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "feeds_total=%d\n", result.FeedsTotal)
		fmt.Fprintf(f.out, "feeds_downloaded=%d\n", result.FeedsDownloaded)
		fmt.Fprintf(f.out, "feeds_not_modified=%d\n", result.FeedsNotModified)
		fmt.Fprintf(f.out, "feeds_errored=%d\n", result.FeedsErrored)
		fmt.Fprintf(f.out, "new_articles=%d\n", result.NewArticles)
		fmt.Fprintf(f.out, "skipped=%d\n", result.Skipped)
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Fetched %d new articles from %d feeds\n", result.NewArticles, result.FeedsTotal)
		if result.FeedsNotModified > 0 {
			fmt.Fprintf(f.out, "%d feeds unchanged\n", result.FeedsNotModified)
		}
		if result.Skipped > 0 {
			fmt.Fprintf(f.out, "Skipped %d items already stored\n", result.Skipped)
		}
		if result.FeedsErrored > 0 {
			fmt.Fprintf(f.out, "⚠️  %d feeds failed\n", result.FeedsErrored)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputArticleList outputs a list of articles under a heading used by the
// human format.
func (f *Formatter) OutputArticleList(heading string, articles []newsalert.Article) error {
	switch f.format {
	case FormatJSON:
		if articles == nil {
			articles = []newsalert.Article{}
		}
		return json.NewEncoder(f.out).Encode(articles)
	case FormatText:
		for _, a := range articles {
			fmt.Fprintf(f.out, "id=%d\ttitle=%s\tsource=%s\turl=%s\tpublished=%s\ttags=%s\tnotified=%t\n",
				a.ID, a.Title, a.Source, a.URL, formatTime(a.PublishedAt), deref(a.DomainTags), a.Notified)
		}
		return nil
	case FormatHuman:
		if len(articles) == 0 {
			fmt.Fprintf(f.out, "No articles in %s\n", heading)
			return nil
		}
		fmt.Fprintf(f.out, "%s (%d):\n\n", heading, len(articles))
		for _, a := range articles {
			marker := ""
			if a.Notified {
				marker = " ✓"
			}
			fmt.Fprintf(f.out, "ID: %d%s\n", a.ID, marker)
			fmt.Fprintf(f.out, "Title: %s\n", a.Title)
			fmt.Fprintf(f.out, "Source: %s\n", a.Source)
			fmt.Fprintf(f.out, "URL: %s\n", a.URL)
			if a.PublishedAt != nil {
				fmt.Fprintf(f.out, "Published: %s\n", a.PublishedAt.Format("2006-01-02 15:04"))
			}
			if tags := deref(a.DomainTags); tags != "" {
				fmt.Fprintf(f.out, "Tags: %s\n", tags)
			}
			fmt.Fprintln(f.out, "---")
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputSchema describes the articles table and its migration version.
func (f *Formatter) OutputSchema(version int, columns []storage.Column) error {
	switch f.format {
	case FormatJSON:
		if columns == nil {
			columns = []storage.Column{}
		}
		return json.NewEncoder(f.out).Encode(struct {
			Version int              `json:"version"`
			Columns []storage.Column `json:"columns"`
		}{version, columns})
	case FormatText:
		fmt.Fprintf(f.out, "version=%d\n", version)
		for _, c := range columns {
			fmt.Fprintf(f.out, "column=%s\ttype=%s\tnot_null=%t\tdefault=%s\tpk=%t\n",
				c.Name, c.Type, c.NotNull, deref(c.Default), c.PrimaryKey)
		}
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Schema version %d\n", version)
		if len(columns) == 0 {
			fmt.Fprintln(f.out, "articles table does not exist")
			return nil
		}
		fmt.Fprintln(f.out, strings.Repeat("=", 50))
		for _, c := range columns {
			flags := []string{}
			if c.PrimaryKey {
				flags = append(flags, "primary key")
			}
			if c.NotNull {
				flags = append(flags, "not null")
			}
			if c.Default != nil {
				flags = append(flags, "default "+*c.Default)
			}
			fmt.Fprintf(f.out, "  %-14s %-12s %s\n", c.Name, c.Type, strings.Join(flags, ", "))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputStatus reports a one-line result of an admin or mark-read command.
func (f *Formatter) OutputStatus(event string, fields map[string]interface{}, message string) error {
	switch f.format {
	case FormatJSON:
		payload := map[string]interface{}{"event": event}
		for k, v := range fields {
			payload[k] = v
		}
		return json.NewEncoder(f.out).Encode(payload)
	case FormatText:
		fmt.Fprintf(f.out, "event=%s", event)
		for _, k := range sortedKeys(fields) {
			fmt.Fprintf(f.out, "\t%s=%v", k, fields[k])
		}
		fmt.Fprintln(f.out)
		return nil
	case FormatHuman:
		fmt.Fprintln(f.out, message)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...interface{}) {
	fmt.Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...interface{}) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

// formatTime formats a time pointer for output
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
