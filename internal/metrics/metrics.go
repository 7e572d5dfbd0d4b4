// Package metrics provides Prometheus metrics for the cedhtools backend.
// Scrape these at /metrics for Grafana dashboards and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cedhtools_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cedhtools_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Rollup Metrics
	RollupBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cedhtools_rollup_builds_total",
			Help: "Slice rebuilds by outcome",
		},
		[]string{"slice", "result"}, // result: "success", "failed", "skipped"
	)

	RollupBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cedhtools_rollup_build_duration_seconds",
			Help:    "Time taken to rebuild and persist one slice",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"slice"},
	)

	RollupCommanderRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cedhtools_rollup_commander_rows",
			Help: "Commander identities in the live snapshot of a slice",
		},
		[]string{"slice"},
	)

	RollupCardRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cedhtools_rollup_card_rows",
			Help: "Card-level rows in the live snapshot of a slice",
		},
		[]string{"slice"},
	)

	RollupLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cedhtools_rollup_last_success_timestamp_seconds",
			Help: "Unix time of the last successful rebuild of a slice",
		},
		[]string{"slice"},
	)

	RollupRefreshInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cedhtools_rollup_refresh_in_progress",
			Help: "Number of slices currently rebuilding",
		},
	)

	RollupSourceDecks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cedhtools_rollup_source_decks",
			Help: "Eligible decks read by the last full refresh",
		},
	)

	// Statistics Metrics
	StatisticsRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cedhtools_statistics_requests_total",
			Help: "Statistics queries by result",
		},
		[]string{"result"}, // "ok", "empty", "invalid", "unavailable", "error"
	)

	PrintingCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cedhtools_printing_cache_hits_total",
			Help: "Representative printing cache hit count",
		},
	)

	PrintingCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cedhtools_printing_cache_misses_total",
			Help: "Representative printing cache miss count",
		},
	)

	// Moxfield API Metrics
	MoxfieldRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cedhtools_moxfield_requests_total",
			Help: "Moxfield deck fetches by result",
		},
		[]string{"result"}, // "ok", "not_found", "invalid", "error", "cached"
	)

	MoxfieldAPILatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cedhtools_moxfield_api_latency_seconds",
			Help:    "Moxfield API call latency",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
		},
	)
)
