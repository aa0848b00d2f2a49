// Package metrics exposes Prometheus collectors for the harvester.
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

// Cache tiers.
const (
	TierIndex = "index"
	TierBody  = "body"
)

// Lookup and operation results.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultError   = "error"
	ResultOK      = "ok"
	ResultTimeout = "timeout"
	ResultFailed  = "failed"
)

var (
	cacheLookupsTotal          *prometheus.CounterVec
	fetchesTotal               *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	messagesTotal              *prometheus.CounterVec
	resourcesTotal             *prometheus.CounterVec
	publishTotal               *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	robotsFallbacksTotal       *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_cache_lookups_total",
				Help: "Cache lookups, labeled by tier and result.",
			},
			[]string{"tier", "result"},
		)

		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_fetches_total",
				Help: "Remote archive calls, labeled by operation and result.",
			},
			[]string{"op", "result"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_fetch_duration_seconds",
				Help:    "Histogram of remote archive call latencies, labeled by operation.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"op"},
		)

		messagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_messages_total",
				Help: "Messages processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		resourcesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_resources_total",
				Help: "URLs found in message text, labeled by resolution outcome.",
			},
			[]string{"outcome"},
		)

		publishTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_publish_total",
				Help: "Resource ids submitted to the sink, labeled by result.",
			},
			[]string{"result"},
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

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		robotsFallbacksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_robots_fallbacks_total",
				Help: "robots.txt requests that fell back to allow-all, by reason.",
			},
			[]string{"reason"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
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
	Init()
	return promhttp.Handler()
}

// ObserveCacheLookup counts one cache lookup.
func ObserveCacheLookup(tier, result string) {
	Init()
	cacheLookupsTotal.WithLabelValues(tier, result).Inc()
}

// ObserveFetch records one remote archive call.
func ObserveFetch(op, result string, duration time.Duration) {
	Init()
	fetchesTotal.WithLabelValues(op, result).Inc()
	fetchDurationSeconds.WithLabelValues(op).Observe(duration.Seconds())
}

// ObserveMessage counts one processed message by outcome.
func ObserveMessage(outcome string) {
	Init()
	messagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveResource counts one URL by resolution outcome.
func ObserveResource(outcome string) {
	Init()
	resourcesTotal.WithLabelValues(outcome).Inc()
}

// ObservePublish counts one sink submission.
func ObservePublish(result string) {
	Init()
	publishTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts a robots.txt request that gave up and allowed all.
func ObserveRobotsFallback(reason string) {
	Init()
	robotsFallbacksTotal.WithLabelValues(reason).Inc()
}
