// Package metrics exposes Prometheus collectors for the collection engine.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_pages_total",
			Help: "Total fetch attempts, labeled by origin and outcome status.",
		},
		[]string{"origin", "status"},
	)

	rejectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_rejects_total",
			Help: "Candidates rejected by the collector, labeled by reason.",
		},
		[]string{"reason"},
	)

	renderFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_render_fallbacks_total",
			Help: "Render fallback attempts, labeled by result.",
		},
		[]string{"result"},
	)

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_runs_total",
			Help: "Collection runs finished, labeled by terminal status.",
		},
		[]string{"status"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvester_active_workers",
			Help: "Number of workers currently fetching a candidate.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_rate_limit_delay_seconds",
			Help:    "Histogram of per-origin rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"origin"},
	)
)

// SanitizeOrigin extracts a lowercase hostname from a URL for labeling.
// It returns "unknown" if the URL is invalid.
func SanitizeOrigin(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt outcome.
func ObserveFetch(rawURL string, status string) {
	pagesTotal.WithLabelValues(SanitizeOrigin(rawURL), status).Inc()
}

// ObserveReject counts a rejected candidate by reason.
func ObserveReject(reason string) {
	rejectsTotal.WithLabelValues(reason).Inc()
}

// ObserveRenderFallback counts a render fallback attempt by result.
func ObserveRenderFallback(result string) {
	renderFallbacksTotal.WithLabelValues(result).Inc()
}

// ObserveRun counts a finished run by terminal status.
func ObserveRun(status string) {
	runsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(origin string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(origin).Observe(duration.Seconds())
}
