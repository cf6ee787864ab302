package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/matthewjhunter/newsalert"
	"github.com/matthewjhunter/newsalert/internal/storage"
)

func sampleArticles() []newsalert.Article {
	published := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	tags := "finance,geopolitics,religion"
	return []newsalert.Article{
		{ID: 1, Title: "Border deal", URL: "https://example.com/1", Source: "Wire", PublishedAt: &published, DomainTags: &tags, Notified: true},
		{ID: 2, Title: "Weather", URL: "https://example.com/2", Source: "Local"},
	}
}

func TestOutputIngestResult_JSON(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatJSON, &out, &errBuf)

	result := &newsalert.IngestResult{
		FeedsTotal:   3,
		NewArticles:  5,
		FeedsErrored: 1,
		Errors:       []string{"feed timeout"},
	}
	if err := f.OutputIngestResult(result); err != nil {
		t.Fatalf("OutputIngestResult failed: %v", err)
	}

	var decoded newsalert.IngestResult
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if decoded.NewArticles != 5 || decoded.FeedsTotal != 3 {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(decoded.Errors) != 1 || decoded.Errors[0] != "feed timeout" {
		t.Errorf("Errors = %v, want [feed timeout]", decoded.Errors)
	}
}

func TestOutputIngestResult_Text(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatText, &out, &errBuf)

	if err := f.OutputIngestResult(&newsalert.IngestResult{NewArticles: 10, Skipped: 4}); err != nil {
		t.Fatalf("OutputIngestResult failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{"new_articles=10", "skipped=4", "feeds_total=0"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %s in output: %s", want, got)
		}
	}
}

func TestOutputIngestResult_Human(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	f.OutputIngestResult(&newsalert.IngestResult{FeedsTotal: 2, NewArticles: 3, FeedsErrored: 1})
	got := out.String()
	if !strings.Contains(got, "Fetched 3 new articles from 2 feeds") {
		t.Errorf("unexpected output: %s", got)
	}
	if !strings.Contains(got, "1 feeds failed") {
		t.Errorf("missing failure line: %s", got)
	}
}

func TestOutputArticleList_JSON(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatJSON, &out, &errBuf)

	if err := f.OutputArticleList("Recent news", sampleArticles()); err != nil {
		t.Fatalf("OutputArticleList failed: %v", err)
	}
	var decoded []map[string]interface{}
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(decoded))
	}
	if decoded[1]["domain_tags"] != nil || decoded[1]["published_at"] != nil {
		t.Errorf("nullable fields should be null: %v", decoded[1])
	}
	if decoded[0]["domain_tags"] != "finance,geopolitics,religion" {
		t.Errorf("domain_tags = %v", decoded[0]["domain_tags"])
	}
}

func TestOutputArticleList_EmptyJSONIsArray(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatJSON, &out, &errBuf)

	f.OutputArticleList("Critical", nil)
	if got := strings.TrimSpace(out.String()); got != "[]" {
		t.Errorf("got %s, want []", got)
	}
}

func TestOutputArticleList_Text(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatText, &out, &errBuf)

	f.OutputArticleList("Recent news", sampleArticles())
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "published=2024-05-06T10:00:00Z") || !strings.Contains(lines[0], "notified=true") {
		t.Errorf("unexpected first line: %s", lines[0])
	}
}

func TestOutputArticleList_HumanEmpty(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	f.OutputArticleList("Critical articles", nil)
	if !strings.Contains(out.String(), "No articles in Critical articles") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestOutputSchema(t *testing.T) {
	dflt := "0"
	cols := []storage.Column{
		{Name: "id", Type: "INTEGER", PrimaryKey: true},
		{Name: "notified", Type: "BOOLEAN", NotNull: true, Default: &dflt},
	}

	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)
	if err := f.OutputSchema(6, cols); err != nil {
		t.Fatalf("OutputSchema failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Schema version 6") || !strings.Contains(got, "not null, default 0") {
		t.Errorf("unexpected output: %s", got)
	}

	out.Reset()
	f = NewFormatterWithWriters(FormatJSON, &out, &errBuf)
	f.OutputSchema(6, cols)
	var decoded struct {
		Version int              `json:"version"`
		Columns []storage.Column `json:"columns"`
	}
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if decoded.Version != 6 || len(decoded.Columns) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestOutputStatus(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatText, &out, &errBuf)
	f.OutputStatus("seeded", map[string]interface{}{"count": 5, "driver": "sqlite"}, "Seeded 5 articles")
	if got := strings.TrimSpace(out.String()); got != "event=seeded\tcount=5\tdriver=sqlite" {
		t.Errorf("got %q", got)
	}

	out.Reset()
	f = NewFormatterWithWriters(FormatHuman, &out, &errBuf)
	f.OutputStatus("seeded", nil, "Seeded 5 articles")
	if got := strings.TrimSpace(out.String()); got != "Seeded 5 articles" {
		t.Errorf("got %q", got)
	}
}

func TestUnknownFormat(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(Format("xml"), &out, &errBuf)
	if err := f.OutputArticleList("x", nil); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWarning(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatJSON, &out, &errBuf)
	f.Warning("feed %s failed", "x")
	if errBuf.String() != "Warning: feed x failed\n" {
		t.Errorf("got %q", errBuf.String())
	}
	if out.Len() != 0 {
		t.Error("warnings must not go to stdout")
	}
}
