package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossroute_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		},
		[]string{"route", "status"},
	)

	HTTPLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crossroute_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossroute_auth_failures_total",
			Help: "Rejected API authentications by reason",
		},
		[]string{"reason"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossroute_rate_limited_total",
			Help: "Requests refused by the rate limiter, by plan",
		},
		[]string{"plan"},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossroute_stream_clients",
			Help: "Connected event stream clients",
		},
	)

	StreamDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crossroute_stream_dropped_total",
			Help: "Stream clients disconnected for falling behind",
		},
	)
)
