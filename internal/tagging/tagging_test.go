package tagging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/ollama/ollama/api"
)

func TestKeywordClassifier(t *testing.T) {
	k := NewKeywordClassifier(nil)
	tests := []struct {
		name    string
		title   string
		summary string
		want    []string
	}{
		{"none", "Local team wins cup", "", nil},
		{"finance", "Oil prices climb", "", []string{"finance"}},
		{"case insensitive", "PEACE talks resume", "", []string{"geopolitics"}},
		{"summary counts", "Weekly roundup", "A new church opened", []string{"religion"}},
		{
			"all three",
			"Border deal reached",
			"Faith leaders welcomed the agreement",
			[]string{"finance", "geopolitics", "religion"},
		},
		{"substring", "Software warranty rules", "", []string{"geopolitics"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := k.Classify(context.Background(), tt.title, tt.summary)
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeywordClassifierCustomRules(t *testing.T) {
	k := NewKeywordClassifier(map[string][]string{
		"tech": {" AI ", "Chip"},
		"war":  {"missile"},
	})
	got := k.Match("New chip export rules after missile test")
	if want := []string{"tech", "war"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if want := []string{"tech", "war"}; !reflect.DeepEqual(k.Tags(), want) {
		t.Errorf("Tags() = %v, want %v", k.Tags(), want)
	}
}

func TestJoin(t *testing.T) {
	if Join(nil) != nil {
		t.Error("Join(nil) should be nil")
	}
	got := Join([]string{"finance", "religion"})
	if got == nil || *got != "finance,religion" {
		t.Errorf("Join = %v", got)
	}
}

type fakeGenerator struct {
	response string
	err      error
	prompt   string
}

func (f *fakeGenerator) Generate(_ context.Context, req *api.GenerateRequest, fn api.GenerateResponseFunc) error {
	f.prompt = req.Prompt
	if f.err != nil {
		return f.err
	}
	return fn(api.GenerateResponse{Response: f.response})
}

func newTestOllama(gen generator) *OllamaClassifier {
	return &OllamaClassifier{
		client:   gen,
		model:    "test",
		fallback: NewKeywordClassifier(nil),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestOllamaClassifier(t *testing.T) {
	gen := &fakeGenerator{response: "Sure! {\"tags\": [\"Religion\", \"finance\", \"sports\", \"finance\"]}"}
	o := newTestOllama(gen)

	got, err := o.Classify(context.Background(), "Title", "Summary")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if want := []string{"finance", "religion"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if gen.prompt == "" {
		t.Error("prompt was not sent")
	}
}

func TestOllamaClassifierFallsBack(t *testing.T) {
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{"request error", &fakeGenerator{err: errors.New("connection refused")}},
		{"bad json", &fakeGenerator{response: "I think it is about oil"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOllama(tt.gen)
			got, err := o.Classify(context.Background(), "Oil deal signed", "")
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if want := []string{"finance"}; !reflect.DeepEqual(got, want) {
				t.Errorf("got %v, want %v", got, want)
			}
		})
	}
}

func TestOllamaClassifierUsesBaseURL(t *testing.T) {
	t.Setenv("OLLAMA_HOST", "")
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"model":"test","response":"{\"tags\": [\"religion\"]}","done":true}`)
	}))
	t.Cleanup(ts.Close)

	o, err := NewOllamaClassifier(ts.URL, "test", 0, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewOllamaClassifier: %v", err)
	}
	got, err := o.Classify(context.Background(), "Weekly roundup", "")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if hits.Load() == 0 {
		t.Fatal("configured server was not called")
	}
	if want := []string{"religion"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNewOllamaClassifierRejectsBadURL(t *testing.T) {
	if _, err := NewOllamaClassifier("http://bad host:11434", "test", 0, nil, nil); err == nil {
		t.Error("expected error for invalid base URL")
	}
}

func TestTruncateTextKeepsRunesWhole(t *testing.T) {
	got := truncateText("a"+strings.Repeat("é", 2500), 2000)
	if !utf8.ValidString(got) {
		t.Fatalf("truncateText produced invalid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != 2003 {
		t.Errorf("got %d runes, want 2003", n)
	}
	if short := truncateText("héllo", 2000); short != "héllo" {
		t.Errorf("got %q, want unchanged", short)
	}
}
