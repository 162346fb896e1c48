package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InitiationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossroute_initiations_total",
			Help: "Transfer initiations by protocol and outcome",
		},
		[]string{"protocol", "outcome"},
	)

	CompletionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossroute_completions_total",
			Help: "Completion callbacks by outcome",
		},
		[]string{"outcome"},
	)

	PendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossroute_pending_requests",
			Help: "Requests initiated but not yet completed",
		},
	)

	DispatchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crossroute_dispatch_duration_ms",
			Help:    "Adapter dispatch latency in milliseconds",
			Buckets: []float64{1, 5, 10, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"protocol"},
	)

	AdminOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossroute_admin_ops_total",
			Help: "Administrative operations by name and outcome",
		},
		[]string{"op", "outcome"},
	)

	GuardRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crossroute_reentrant_calls_total",
			Help: "Entry points refused because a counterparty call was in flight",
		},
	)
)
