package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossroute_events_emitted_total",
			Help: "Notifications emitted by the gateway",
		},
		[]string{"kind"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossroute_events_sink_failures_total",
			Help: "Notification deliveries rejected by a sink",
		},
		[]string{"kind"},
	)

	NATSConnectionStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossroute_nats_connection_status",
			Help: "NATS connection status (1=connected, 0=disconnected)",
		},
	)
)
