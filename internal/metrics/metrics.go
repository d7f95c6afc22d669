// Package metrics provides Prometheus instrumentation for the analyzer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AnalysesTotal counts completed analyses by verdict and match tier.
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmm_analyses_total",
		Help: "Total number of completed listing analyses",
	}, []string{"verdict", "tier"})

	// AnalysisLatency tracks end-to-end analysis latency.
	AnalysisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gmm_analysis_latency_seconds",
		Help:    "Listing analysis latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// CacheLookups counts result-cache lookups by outcome (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmm_cache_lookups_total",
		Help: "Result cache lookups by outcome",
	}, []string{"outcome"})

	// ExtractionAttempts counts individual extraction attempts by outcome
	// (ok, error); a retried extraction increments it once per attempt.
	ExtractionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmm_extraction_attempts_total",
		Help: "Structured extraction attempts by outcome",
	}, []string{"outcome"})

	// PurchasesTotal counts recorded purchases.
	PurchasesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gmm_purchases_total",
		Help: "Total purchases recorded",
	})

	// WebSocketClients tracks connected analysis-feed clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gmm_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gmm_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gmm_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
