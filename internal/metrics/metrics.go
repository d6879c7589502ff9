package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cas_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cas_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	pairsScreenedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cas_pairs_screened_total",
			Help: "Total number of candidate pairs fully screened.",
		},
	)

	pairsFilteredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cas_pairs_filtered_total",
			Help: "Candidate pairs rejected before propagation, by filter.",
		},
		[]string{"filter"},
	)

	pairsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cas_pairs_failed_total",
			Help: "Candidate pairs skipped because screening failed.",
		},
	)

	conjunctionsFoundTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cas_conjunctions_found_total",
			Help: "Screened pairs whose closest approach fell below the threshold.",
		},
	)

	pairSearchSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cas_pair_search_seconds",
			Help:    "Closest-approach search duration per pair in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cas_stream_messages_total",
			Help: "Total SSE status messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cas_stream_bytes_total",
			Help: "Total bytes written to SSE status streams.",
		},
	)

	analysisRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cas_analysis_running",
			Help: "1 while a screening batch is in progress, 0 otherwise.",
		},
	)

	catalogAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cas_catalog_age_seconds",
			Help: "Age of the loaded TLE catalog snapshot in seconds.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(pairsScreenedTotal)
	prometheus.MustRegister(pairsFilteredTotal)
	prometheus.MustRegister(pairsFailedTotal)
	prometheus.MustRegister(conjunctionsFoundTotal)
	prometheus.MustRegister(pairSearchSeconds)
	prometheus.MustRegister(streamMessagesTotal)
	prometheus.MustRegister(streamBytesTotal)
	prometheus.MustRegister(analysisRunning)
	prometheus.MustRegister(catalogAgeSeconds)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// PairScreened records one fully screened pair and its search duration.
func PairScreened(searchDuration time.Duration) {
	pairsScreenedTotal.Inc()
	pairSearchSeconds.Observe(searchDuration.Seconds())
}

// PairFiltered records a pair rejected by the named pre-filter.
func PairFiltered(filter string) {
	pairsFilteredTotal.WithLabelValues(filter).Inc()
}

// PairFailed records a pair skipped due to a screening error.
func PairFailed() {
	pairsFailedTotal.Inc()
}

// ConjunctionFound records a pair whose closest approach breached the threshold.
func ConjunctionFound() {
	conjunctionsFoundTotal.Inc()
}

// IncStreamMessages records one SSE message sent to a client.
func IncStreamMessages() {
	streamMessagesTotal.Inc()
}

// AddStreamBytes records bytes written to an SSE stream.
func AddStreamBytes(n int64) {
	streamBytesTotal.Add(float64(n))
}

// SetCatalogAge updates the catalog snapshot age gauge.
func SetCatalogAge(seconds float64) {
	catalogAgeSeconds.Set(seconds)
}

// AnalysisRunning tracks whether a screening batch is in progress.
func AnalysisRunning(running bool) {
	if running {
		analysisRunning.Set(1)
	} else {
		analysisRunning.Set(0)
	}
}

// knownRoutes are the exact paths the router serves. Anything else is a
// scanner or typo and collapses to a single label to bound cardinality.
var knownRoutes = map[string]bool{
	"/":                        true,
	"/healthz":                 true,
	"/readyz":                  true,
	"/metrics":                 true,
	"/api/v1/analysis/start":   true,
	"/api/v1/analysis/stop":    true,
	"/api/v1/analysis/status":  true,
	"/api/v1/analysis/results": true,
	"/api/v1/analysis/events":  true,
	"/api/v1/targets":          true,
	"/api/v1/satellites":       true,
}

func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if strings.HasPrefix(path, "/api/v1/satellites/") {
		return "/api/v1/satellites/{norad_id}"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)

		path := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(path, r.Method).Observe(duration)
	})
}
