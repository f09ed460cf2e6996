// Package metrics holds the Prometheus collectors for matching, catalog
// traffic and the search cache.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partsmatch_matches_total",
			Help: "BOM lines matched, by confidence classification",
		},
		[]string{"source", "classification"},
	)

	MatchConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partsmatch_match_confidence",
			Help:    "Confidence of matched BOM lines",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		},
		[]string{"source"},
	)

	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partsmatch_batch_duration_seconds",
			Help:    "Time taken to match a whole BOM",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"source"},
	)

	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partsmatch_api_calls_total",
			Help: "Calls made to the parts catalog API",
		},
		[]string{"endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partsmatch_api_call_duration_seconds",
			Help:    "Duration of parts catalog API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	RateLimitDelay = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "partsmatch_rate_limit_delay_seconds",
			Help:    "Time spent waiting on the client rate limiter or Retry-After",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partsmatch_search_cache_lookups_total",
			Help: "Search cache lookups, by result",
		},
		[]string{"result"},
	)
)

func RecordMatch(source, classification string, confidence float64) {
	MatchesTotal.WithLabelValues(source, classification).Inc()
	if classification != "no_match" {
		MatchConfidence.WithLabelValues(source).Observe(confidence)
	}
}

func RecordBatch(source string, duration time.Duration) {
	BatchDuration.WithLabelValues(source).Observe(duration.Seconds())
}

func RecordAPICall(endpoint, status string, duration time.Duration) {
	APICallsTotal.WithLabelValues(endpoint, status).Inc()
	APICallDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func RecordRateLimitDelay(duration time.Duration) {
	if duration > 0 {
		RateLimitDelay.Observe(duration.Seconds())
	}
}

func RecordCacheLookup(hit bool) {
	if hit {
		CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	CacheLookups.WithLabelValues("miss").Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
