// Package metrics defines and registers the Prometheus metrics exposed on
// /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Domain metrics
	OperationsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "smokestack_operations_total",
			Help: "Number of operations by status",
		},
		[]string{"status"},
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokestack_transitions_total",
			Help: "Accepted status transitions by target status",
		},
		[]string{"to"},
	)

	AdmissionDenialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokestack_admission_denials_total",
			Help: "Denied mutations by denial kind",
		},
		[]string{"kind"},
	)

	// Event delivery metrics
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokestack_events_published_total",
			Help: "Events published by kind",
		},
		[]string{"kind"},
	)

	SubscribersEvictedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "smokestack_subscribers_evicted_total",
			Help: "Subscribers dropped for not keeping up with their queue",
		},
	)

	ActiveWebSocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smokestack_websocket_connections",
			Help: "Open WebSocket watch connections",
		},
	)

	// Sink metrics
	SinkDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokestack_sink_deliveries_total",
			Help: "Sink delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	SinksDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "smokestack_sinks_degraded",
			Help: "Sinks currently marked degraded after exhausted retries",
		},
	)

	// Persistence metrics
	SnapshotWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smokestack_snapshot_writes_total",
			Help: "State snapshot writes by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(TransitionsTotal)
	prometheus.MustRegister(AdmissionDenialsTotal)
	prometheus.MustRegister(EventsPublishedTotal)
	prometheus.MustRegister(SubscribersEvictedTotal)
	prometheus.MustRegister(ActiveWebSocketConnections)
	prometheus.MustRegister(SinkDeliveriesTotal)
	prometheus.MustRegister(SinksDegraded)
	prometheus.MustRegister(SnapshotWritesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
