package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/matthewjhunter/newsalert"
	"github.com/matthewjhunter/newsalert/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine seeds a database with the given articles and opens a
// read-only engine over it.
func newTestEngine(t *testing.T, articles ...storage.Article) *newsalert.Engine {
	t.Helper()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "test.db")

	st, err := storage.Open(ctx, storage.Options{
		DSN:         dsn,
		AutoMigrate: true,
		Retry:       storage.RetryPolicy{Delay: time.Millisecond, MaxAttempts: 1},
	}, quietLogger())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	if len(articles) > 0 {
		if _, err := st.InsertArticles(ctx, articles); err != nil {
			t.Fatalf("InsertArticles: %v", err)
		}
	}
	st.Close()

	engine, err := newsalert.NewEngine(ctx, newsalert.EngineConfig{
		DSN:              dsn,
		RetryMaxAttempts: 1,
		ReadOnly:         true,
		Logger:           quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine
}

func testArticle(title, tags string, at time.Time) storage.Article {
	a := storage.Article{
		Title:       title,
		URL:         "https://example.com/" + title,
		Source:      "Wire",
		PublishedAt: &at,
		CreatedAt:   at,
	}
	if tags != "" {
		a.DomainTags = &tags
	}
	return a
}

func scenario() []storage.Article {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return []storage.Article{
		testArticle("A", "war,politics", base),
		testArticle("B", "finance,geopolitics,religion", base.Add(time.Hour)),
		testArticle("C", "sports", base.Add(2*time.Hour)),
	}
}

func newTestRouter(engine *newsalert.Engine, secret string) http.Handler {
	return newRouter(engine, routerOptions{
		AllowedOrigins: []string{"*"},
		JWTSecret:      secret,
		Logger:         quietLogger(),
	})
}

func do(t *testing.T, h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeArticles(t *testing.T, rec *httptest.ResponseRecorder) []newsalert.Article {
	t.Helper()
	var out []newsalert.Article
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func titles(articles []newsalert.Article) string {
	parts := make([]string, len(articles))
	for i, a := range articles {
		parts[i] = a.Title
	}
	return strings.Join(parts, ",")
}

func TestFeeds(t *testing.T) {
	router := newTestRouter(newTestEngine(t, scenario()...), "")

	tests := []struct {
		path string
		want string
	}{
		{"/news", "C,B,A"},
		{"/top-articles", "B,A"},
		{"/critical-articles", "B"},
		{"/critical-articles-all", "B"},
		{"/other-news", "C,B,A"},
		{"/other-news?page=2&limit=2", "A"},
		{"/other-news?page=abc&limit=-3", "C,B,A"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, tt.path, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			if got := titles(decodeArticles(t, rec)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEmptyFeedIsArray(t *testing.T) {
	router := newTestRouter(newTestEngine(t), "")
	rec := do(t, router, http.MethodGet, "/critical-articles", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("got %d %q, want 200 []", rec.Code, rec.Body.String())
	}
}

func TestOtherNewsHugePage(t *testing.T) {
	router := newTestRouter(newTestEngine(t, scenario()...), "")
	rec := do(t, router, http.MethodGet, "/other-news?page=9223372036854775807", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("got %d %q, want 200 []", rec.Code, rec.Body.String())
	}
}

func TestNullableFieldsSerializeAsNull(t *testing.T) {
	router := newTestRouter(newTestEngine(t, storage.Article{
		Title: "bare", URL: "https://example.com/bare", Source: "Wire", CreatedAt: time.Now().UTC(),
	}), "")
	rec := do(t, router, http.MethodGet, "/news", nil)

	var raw []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != 1 {
		t.Fatalf("expected 1 article, got %d", len(raw))
	}
	for _, field := range []string{"published_at", "domain_tags", "summary"} {
		v, ok := raw[0][field]
		if !ok || v != nil {
			t.Errorf("%s = %v (present %t), want null", field, v, ok)
		}
	}
}

func TestMarkRead(t *testing.T) {
	engine := newTestEngine(t, scenario()...)
	router := newTestRouter(engine, "")

	critical := decodeArticles(t, do(t, router, http.MethodGet, "/critical-articles", nil))
	if len(critical) != 1 {
		t.Fatalf("expected one critical article, got %d", len(critical))
	}
	id := critical[0].ID

	rec := do(t, router, http.MethodPost, "/articles/"+strconv.FormatInt(id, 10)+"/mark-read", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Fatalf("mark-read = %d %s", rec.Code, rec.Body.String())
	}

	if got := decodeArticles(t, do(t, router, http.MethodGet, "/critical-articles", nil)); len(got) != 0 {
		t.Errorf("acknowledged article still unacknowledged: %v", titles(got))
	}
	all := decodeArticles(t, do(t, router, http.MethodGet, "/critical-articles-all", nil))
	if len(all) != 1 || !all[0].Notified {
		t.Errorf("critical-all = %+v, want B notified", all)
	}
}

func TestMarkReadUnknownID(t *testing.T) {
	router := newTestRouter(newTestEngine(t, scenario()...), "")
	rec := do(t, router, http.MethodPost, "/articles/9999/mark-read", nil)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"success":true}` {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestMarkReadInvalidID(t *testing.T) {
	router := newTestRouter(newTestEngine(t), "")
	rec := do(t, router, http.MethodPost, "/articles/abc/mark-read", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"error"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestMarkReadRequiresToken(t *testing.T) {
	const secret = "test-secret"
	router := newTestRouter(newTestEngine(t, scenario()...), secret)

	rec := do(t, router, http.MethodPost, "/articles/1/mark-read", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/articles/1/mark-read", http.Header{"Authorization": {"Bearer " + signToken(t, "wrong-secret")}})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad signature: status = %d, want 401", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/articles/1/mark-read", http.Header{"Authorization": {"Bearer " + signToken(t, secret)}})
	if rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, body %s", rec.Code, rec.Body.String())
	}

	// Reads stay public.
	if rec := do(t, router, http.MethodGet, "/news", nil); rec.Code != http.StatusOK {
		t.Errorf("/news status = %d", rec.Code)
	}
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "tester",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return s
}

func TestStoreFailure(t *testing.T) {
	engine := newTestEngine(t, scenario()...)
	engine.Close()
	router := newTestRouter(engine, "")

	for _, path := range []string{"/news", "/top-articles", "/critical-articles-all", "/other-news"} {
		rec := do(t, router, http.MethodGet, path, nil)
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("%s status = %d, want 500", path, rec.Code)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
			t.Errorf("%s body = %q, want []", path, got)
		}
	}

	rec := do(t, router, http.MethodPost, "/articles/1/mark-read", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("mark-read status = %d, want 500", rec.Code)
	}

	rec = do(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("healthz status = %d, want 503", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(newTestEngine(t), "")
	rec := do(t, router, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(newTestEngine(t, scenario()...), "")
	do(t, router, http.MethodGet, "/news", nil)

	rec := do(t, router, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"newsalert_http_requests_total", `route="GET /news"`} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %s", want)
		}
	}
}

func TestRequestID(t *testing.T) {
	router := newTestRouter(newTestEngine(t), "")

	rec := do(t, router, http.MethodGet, "/news", http.Header{"X-Request-Id": {"abc-123"}})
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want abc-123", got)
	}

	rec = do(t, router, http.MethodGet, "/news", nil)
	if got := rec.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Errorf("generated X-Request-ID = %q, want a UUID", got)
	}
}

func TestCORS(t *testing.T) {
	engine := newTestEngine(t)

	rec := do(t, newTestRouter(engine, ""), http.MethodOptions, "/articles/1/mark-read", http.Header{
		"Origin":                        {"https://app.example.com"},
		"Access-Control-Request-Method": {"POST"},
	})
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}

	restricted := newRouter(engine, routerOptions{AllowedOrigins: []string{"https://app.example.com"}, Logger: quietLogger()})
	rec = do(t, restricted, http.MethodGet, "/news", http.Header{"Origin": {"https://app.example.com"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("allowed origin: Allow-Origin = %q", got)
	}
	rec = do(t, restricted, http.MethodGet, "/news", http.Header{"Origin": {"https://evil.example.com"}})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin: Allow-Origin = %q, want empty", got)
	}
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(newTestEngine(t), "")
	if rec := do(t, router, http.MethodGet, "/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if rec := do(t, router, http.MethodPost, "/news", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
