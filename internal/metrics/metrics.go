// Package metrics exposes Prometheus collectors for the outreach pipeline.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Phase outcome labels shared by the pipeline stages.
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeSkipped  = "skipped"
	OutcomeUnknown  = "unknown"
	OutcomeNotFound = "not_found"
	OutcomeFailed   = "failed"
	OutcomeDryRun   = "dry_run"
)

var (
	listingPagesTotal          *prometheus.CounterVec
	resolutionsTotal           *prometheus.CounterVec
	extractionsTotal           *prometheus.CounterVec
	sendsTotal                 *prometheus.CounterVec
	fetchPagesTotal            *prometheus.CounterVec
	fetchBytesTotal            *prometheus.CounterVec
	persistDurationSeconds     prometheus.Histogram
	persistErrorsTotal         prometheus.Counter
	activeTasks                *prometheus.GaugeVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		listingPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_listing_pages_total",
				Help: "Listing pages processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		resolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_resolutions_total",
				Help: "Website resolutions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_extractions_total",
				Help: "Email extractions, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		sendsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_sends_total",
				Help: "Outreach emails, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_fetch_pages_total",
				Help: "Pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outreach_fetch_bytes_total",
				Help: "Bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		persistDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "outreach_store_persist_duration_seconds",
				Help:    "Time spent writing the CSV checkpoint.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		)

		persistErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "outreach_store_persist_errors_total",
				Help: "CSV checkpoint writes that failed.",
			},
		)

		activeTasks = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "outreach_active_tasks",
				Help: "Tasks currently in flight, labeled by phase.",
			},
			[]string{"phase"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "outreach_rate_limit_delays_seconds",
				Help:    "Histogram of per-domain politeness waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from rawURL.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveListingPage counts one listing page.
func ObserveListingPage(outcome string) {
	Init()
	listingPagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveResolution counts one website resolution.
func ObserveResolution(outcome string) {
	Init()
	resolutionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveExtraction counts one email extraction.
func ObserveExtraction(outcome string) {
	Init()
	extractionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSend counts one dispatch attempt.
func ObserveSend(outcome string) {
	Init()
	sendsTotal.WithLabelValues(outcome).Inc()
}

// ObserveFetch records a fetched page and its size.
func ObserveFetch(site string, status int, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	fetchPagesTotal.WithLabelValues(sanitizedSite, strconv.Itoa(status)).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObservePersist records one checkpoint write.
func ObservePersist(duration time.Duration, err error) {
	Init()
	persistDurationSeconds.Observe(duration.Seconds())
	if err != nil {
		persistErrorsTotal.Inc()
	}
}

// TrackActive increments the in-flight gauge for phase and returns the
// matching decrement.
func TrackActive(phase string) func() {
	Init()
	g := activeTasks.WithLabelValues(phase)
	g.Inc()
	return g.Dec
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveHTTPRequest records a request served by the metrics endpoint.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
