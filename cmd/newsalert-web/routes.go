package main

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matthewjhunter/newsalert"
)

type routerOptions struct {
	AllowedOrigins []string
	JWTSecret      string
	Logger         *slog.Logger
}

// newRouter sets up all routes using Go 1.22+ enhanced routing and wraps
// them in the middleware chain.
func newRouter(engine *newsalert.Engine, opts routerOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	mux := http.NewServeMux()

	h := &handlers{engine: engine, logger: opts.Logger}

	// Article feeds
	mux.HandleFunc("GET /news", h.handleRecent)
	mux.HandleFunc("GET /top-articles", h.handleTop)
	mux.HandleFunc("GET /critical-articles", h.handleCritical)
	mux.HandleFunc("GET /critical-articles-all", h.handleCriticalAll)
	mux.HandleFunc("GET /other-news", h.handleOtherNews)
	mux.HandleFunc("POST /articles/{id}/mark-read", requireToken(opts.JWTSecret, h.handleMarkRead))

	// Operations
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	handler = recovery(opts.Logger, handler)
	handler = logRequests(opts.Logger, handler)
	handler = cors(opts.AllowedOrigins, handler)
	handler = requestID(handler)
	return handler
}
