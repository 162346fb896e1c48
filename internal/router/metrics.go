package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QuotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossroute_quotes_total",
			Help: "Total route quote requests",
		},
		[]string{"outcome"},
	)

	QuoteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crossroute_quote_latency_ms",
			Help:    "Route selection latency",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		},
		[]string{"outcome"},
	)

	RouteSelections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossroute_route_selections_total",
			Help: "Times each protocol won route selection",
		},
		[]string{"protocol", "preference"},
	)

	CircuitBreakerMetric = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "crossroute_dispatch_breaker_state",
			Help: "Dispatch breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"protocol"},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crossroute_quote_cache_hits_total",
			Help: "Quote cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crossroute_quote_cache_misses_total",
			Help: "Quote cache misses",
		},
	)

	CacheErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crossroute_quote_cache_errors_total",
			Help: "Quote cache write failures",
		},
	)
)
