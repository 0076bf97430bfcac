// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics exposes the Prometheus collectors Quilt registers for its
// event bus, material registry, pipeline stages and embedding client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BusEventsPublishedTotal counts events accepted onto the bus ring buffer.
	BusEventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quilt_bus_events_published_total",
		Help: "Total number of events published to the event bus.",
	}, []string{"event"})

	// BusSubscriberLaggedTotal counts Lagged signals delivered to subscribers
	// that fell behind the ring buffer's retention window.
	BusSubscriberLaggedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quilt_bus_subscriber_lagged_total",
		Help: "Total number of Lagged signals delivered to bus subscribers.",
	}, []string{"subscriber"})

	// BusSubscriberSkippedEventsTotal sums the skipped-event counts carried
	// by Lagged signals.
	BusSubscriberSkippedEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quilt_bus_subscriber_skipped_events_total",
		Help: "Total number of events a lagging subscriber never observed.",
	}, []string{"subscriber"})

	// RegistryTransitionsTotal counts successful material state transitions.
	RegistryTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quilt_registry_transitions_total",
		Help: "Total number of material registry state transitions.",
	}, []string{"from", "to"})

	// RegistryTransitionErrorsTotal counts rejected/illegal transitions.
	RegistryTransitionErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quilt_registry_transition_errors_total",
		Help: "Total number of illegal material registry transitions.",
	}, []string{"event"})

	// StageProcessedTotal counts items a pipeline stage has finished processing.
	StageProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quilt_stage_processed_total",
		Help: "Total number of items processed by a pipeline stage.",
	}, []string{"stage", "result"})

	// StageQueueDepth reports the current depth of a stage's internal work queue.
	StageQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quilt_stage_queue_depth",
		Help: "Current depth of a pipeline stage's internal work queue.",
	}, []string{"stage"})

	// EmbeddingRequestsTotal counts calls made to the embedding service.
	EmbeddingRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quilt_embedding_requests_total",
		Help: "Total number of embedding service calls, by outcome.",
	}, []string{"outcome"})

	// EmbeddingRetriesTotal counts retry attempts made against the embedding service.
	EmbeddingRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quilt_embedding_retries_total",
		Help: "Total number of embedding service retry attempts.",
	})

	// CircuitBreakerStateChangesTotal counts embedding circuit breaker transitions.
	CircuitBreakerStateChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quilt_circuit_breaker_state_changes_total",
		Help: "Total number of embedding circuit breaker state changes.",
	}, []string{"to"})

	// circuitBreakerStatus reports the current numeric state (0=closed,
	// 1=open, 2=half-open) of a named circuit breaker.
	circuitBreakerStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quilt_circuit_breaker_status",
		Help: "Current state of a circuit breaker (0=closed, 1=open, 2=half-open).",
	}, []string{"name"})
)

// IncBusLag records a Lagged signal for the named subscriber.
func IncBusLag(subscriber string, skipped uint64) {
	if subscriber == "" {
		subscriber = "unknown"
	}
	BusSubscriberLaggedTotal.WithLabelValues(subscriber).Inc()
	BusSubscriberSkippedEventsTotal.WithLabelValues(subscriber).Add(float64(skipped))
}

// SetCircuitBreakerState records a breaker's named transition target.
func SetCircuitBreakerState(name, state string) {
	CircuitBreakerStateChangesTotal.WithLabelValues(state).Inc()
}

// SetCircuitBreakerStatus records a breaker's current numeric state.
func SetCircuitBreakerStatus(name string, state int) {
	circuitBreakerStatus.WithLabelValues(name).Set(float64(state))
}

// RecordCircuitBreakerTrip counts a breaker tripping open under the "open"
// state label; neither the breaker name nor the reason is recorded.
func RecordCircuitBreakerTrip(name, reason string) {
	CircuitBreakerStateChangesTotal.WithLabelValues("open").Inc()
}
