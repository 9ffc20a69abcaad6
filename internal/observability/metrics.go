package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	transitionsTotal     *prometheus.CounterVec
	eventsPublishedTotal *prometheus.CounterVec
	deliveryRetriesTotal *prometheus.CounterVec
	eventsDroppedTotal   *prometheus.CounterVec
	streamClientsActive  prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the workflow
// service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Total transition attempts by entity type, action and outcome.",
		}, []string{"entity_type", "action", "outcome"})

		eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_events_published_total",
			Help: "Total domain events published on the bus, by topic.",
		}, []string{"topic"})

		deliveryRetriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_event_delivery_retries_total",
			Help: "Total retried event publish attempts, by topic.",
		}, []string{"topic"})

		eventsDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workflow_events_dropped_total",
			Help: "Events dropped after the retry budget was exhausted.",
		}, []string{"topic"})

		streamClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "workflow_stream_clients_active",
			Help: "Currently connected event stream clients (SSE and websocket).",
		})

		prometheus.MustRegister(
			transitionsTotal,
			eventsPublishedTotal,
			deliveryRetriesTotal,
			eventsDroppedTotal,
			streamClientsActive,
		)
	})
}

// Transitions exposes the transition outcome counter.
func Transitions() *prometheus.CounterVec {
	RegisterMetrics()
	return transitionsTotal
}

// EventsPublished exposes the published-events counter.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublishedTotal
}

// DeliveryRetries exposes the retry counter.
func DeliveryRetries() *prometheus.CounterVec {
	RegisterMetrics()
	return deliveryRetriesTotal
}

// EventsDropped exposes the dropped-events counter.
func EventsDropped() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsDroppedTotal
}

// StreamClients exposes the connected-clients gauge.
func StreamClients() prometheus.Gauge {
	RegisterMetrics()
	return streamClientsActive
}
