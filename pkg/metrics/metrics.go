// Package metrics provides Prometheus instrumentation shared by every
// gateway in this repository.
//
// Each gateway's main.go mounts Handler() at GET /metrics and wraps its
// router with Middleware(gatewayName, ...). Business metrics below are
// incremented directly from the package that owns the event.
//
// Standard metrics exposed automatically by prometheus/client_golang:
//   - go_goroutines, go_gc_duration_seconds, etc. (Go runtime)
//   - process_cpu_seconds_total, process_open_fds, etc. (process)
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ── Gauges ──────────────────────────────────────────────────────────────────

// ActiveSessions is the number of session directories currently on disk.
var ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "adcast_active_sessions",
	Help: "Number of session directories currently present on the shared volume.",
})

// InFlightRuns is the number of node-graph runs currently executing per gateway.
var InFlightRuns = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "adcast_inflight_runs",
	Help: "Number of inference-gateway runs currently in flight.",
}, []string{"gateway"})

// ── Counters ──────────────────────────────────────────────────────────────────

// HTTPRequests counts HTTP requests by gateway, method, path, and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "adcast_http_requests_total",
	Help: "Total HTTP requests handled.",
}, []string{"gateway", "method", "path", "status"})

// RunOutcomes counts completed node-graph runs by gateway and outcome
// (ok, upstream_error, timeout).
var RunOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "adcast_run_outcomes_total",
	Help: "Inference-gateway run outcomes by gateway and result.",
}, []string{"gateway", "outcome"})

// SweeperDeletions counts files/sessions removed by a retention sweeper.
var SweeperDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "adcast_sweeper_deletions_total",
	Help: "Items removed by a retention sweeper pass.",
}, []string{"sweeper"})

// DialogueRetries counts dialogue-validator regeneration attempts by outcome.
var DialogueRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "adcast_dialogue_retries_total",
	Help: "Dialogue validator regeneration attempts by outcome (pass, exhausted).",
}, []string{"outcome"})

// ── Histograms ────────────────────────────────────────────────────────────────

// HTTPDuration tracks HTTP request latency.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "adcast_http_request_duration_seconds",
	Help:    "HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"gateway", "method", "path"})

// RunDuration tracks end-to-end node-graph run latency.
var RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "adcast_run_duration_seconds",
	Help:    "Inference-gateway run latency from queue to fetch.",
	Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
}, []string{"gateway"})

// ── Handler ───────────────────────────────────────────────────────────────────

// Handler returns the Prometheus scrape handler. Mount at GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ── Middleware ────────────────────────────────────────────────────────────────

// Middleware wraps an HTTP handler to record request counts and latency.
func Middleware(gateway string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		dur := time.Since(start).Seconds()
		path := sanitizePath(r.URL.Path)
		status := strconv.Itoa(rw.status)
		HTTPRequests.WithLabelValues(gateway, r.Method, path, status).Inc()
		HTTPDuration.WithLabelValues(gateway, r.Method, path).Observe(dur)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush passes through to the underlying writer so SSE responses keep
// streaming when wrapped by this middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// sanitizePath keeps path labels short and bounded to avoid cardinality blowups
// from artifact/session names appearing in the URL.
func sanitizePath(path string) string {
	if len(path) > 64 {
		return path[:64] + "..."
	}
	return path
}
