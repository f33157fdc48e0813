// Package metrics exposes Prometheus instrumentation for the bridge
// engine. Collectors are registered on the default registry; embedders
// serve them with promhttp alongside their own.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts completed prompt turns by terminal status.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentbridge_turns_total",
			Help: "Total number of prompt turns by terminal status",
		},
		[]string{"status"},
	)

	// TurnDuration tracks how long prompt turns run.
	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agentbridge_turn_duration_seconds",
			Help:    "Prompt turn duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	// RestartsTotal counts transparent subprocess restarts.
	RestartsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentbridge_restarts_total",
			Help: "Total number of agent subprocess restarts",
		},
	)

	// ReverseRequests counts inbound requests from the agent by method.
	ReverseRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentbridge_reverse_requests_total",
			Help: "Total number of reverse requests received from the agent",
		},
		[]string{"method"},
	)

	// ParseErrors counts malformed frames skipped by the read loop.
	ParseErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentbridge_parse_errors_total",
			Help: "Total number of malformed frames skipped",
		},
	)

	// PendingRequests tracks outstanding outbound requests.
	PendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "agentbridge_pending_requests",
			Help: "Number of outbound requests awaiting a response",
		},
	)
)
