package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/matthewjhunter/newsalert"
	"github.com/matthewjhunter/newsalert/internal/metrics"
)

// handlers holds dependencies for all HTTP handler methods.
type handlers struct {
	engine *newsalert.Engine
	logger *slog.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

type successBody struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// serveFeed writes a feed as a JSON array. Failures are logged and the
// client sees a 500 with an empty array.
func (h *handlers) serveFeed(w http.ResponseWriter, r *http.Request, feed string, load func(context.Context) ([]newsalert.Article, error)) {
	articles, err := load(r.Context())
	if err != nil {
		h.logger.Error("feed query failed", "feed", feed, "error", err, "request_id", requestIDFrom(r.Context()))
		writeJSON(w, http.StatusInternalServerError, []newsalert.Article{})
		return
	}
	metrics.RecordServed(feed, len(articles))
	writeJSON(w, http.StatusOK, articles)
}

func (h *handlers) handleRecent(w http.ResponseWriter, r *http.Request) {
	h.serveFeed(w, r, "recent", h.engine.RecentNews)
}

func (h *handlers) handleTop(w http.ResponseWriter, r *http.Request) {
	h.serveFeed(w, r, "top", h.engine.TopArticles)
}

func (h *handlers) handleCritical(w http.ResponseWriter, r *http.Request) {
	h.serveFeed(w, r, "critical", h.engine.CriticalArticles)
}

func (h *handlers) handleCriticalAll(w http.ResponseWriter, r *http.Request) {
	h.serveFeed(w, r, "critical_all", h.engine.CriticalArticlesAll)
}

// handleOtherNews serves ?page=&limit=. Missing or malformed values fall
// back to the defaults.
func (h *handlers) handleOtherNews(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	h.serveFeed(w, r, "page", func(ctx context.Context) ([]newsalert.Article, error) {
		return h.engine.OtherNews(ctx, page, limit)
	})
}

func (h *handlers) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid article id"})
		return
	}
	if err := h.engine.MarkRead(r.Context(), id); err != nil {
		h.logger.Error("mark read failed", "id", id, "error", err, "request_id", requestIDFrom(r.Context()))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to mark article read"})
		return
	}
	writeJSON(w, http.StatusOK, successBody{Success: true})
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.engine.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
