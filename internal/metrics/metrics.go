// Package metrics provides Prometheus metrics for newsalert.
package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/matthewjhunter/newsalert/internal/storage"
)

var (
	// HTTPRequestsTotal counts requests by route pattern and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsalert",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"route", "status"},
	)

	// HTTPRequestDuration measures request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newsalert",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// ArticlesServed observes how many articles each feed returned.
	ArticlesServed = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newsalert",
			Name:      "articles_served",
			Help:      "Number of articles returned per feed request",
			Buckets:   []float64{0, 1, 3, 5, 10, 20, 40, 50, 100},
		},
		[]string{"feed"},
	)

	// StoreErrorsTotal counts article store failures.
	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsalert",
			Name:      "store_errors_total",
			Help:      "Total number of article store errors",
		},
		[]string{"operation", "error_type"},
	)

	// IngestedArticlesTotal counts articles written by ingestion.
	IngestedArticlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsalert",
			Name:      "ingested_articles_total",
			Help:      "Total number of articles stored by ingestion",
		},
		[]string{"source"},
	)
)

// RecordRequest records one served HTTP request.
func RecordRequest(route string, status int, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordServed records the size of a feed response.
func RecordServed(feed string, n int) {
	ArticlesServed.WithLabelValues(feed).Observe(float64(n))
}

// RecordStoreError classifies and counts a store error.
func RecordStoreError(operation string, err error) {
	StoreErrorsTotal.WithLabelValues(operation, ErrorType(err)).Inc()
}

// RecordIngested adds n newly stored articles for source.
func RecordIngested(source string, n int) {
	if n > 0 {
		IngestedArticlesTotal.WithLabelValues(source).Add(float64(n))
	}
}

// ErrorType maps an error to a low-cardinality label.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, storage.ErrSchemaMismatch):
		return "schema_mismatch"
	case errors.Is(err, storage.ErrStoreUnavailable):
		return "unavailable"
	default:
		return "other"
	}
}
