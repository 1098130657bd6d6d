// WHRelay - Telemetry Webhook Ingestion and Relay
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whrelay

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Queues

	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "whrelay_queue_depth",
			Help: "Current number of items waiting in a pipeline queue",
		},
		[]string{"queue"},
	)

	QueueMaxDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "whrelay_queue_max_depth",
			Help: "Highest depth observed for a pipeline queue since start",
		},
		[]string{"queue"},
	)

	BackpressureWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_backpressure_warnings_total",
			Help: "Backlog warnings emitted per queue",
		},
		[]string{"queue"},
	)

	// Ingress

	IngressRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_ingress_requests_total",
			Help: "Webhook POSTs by result (accepted, rejected)",
		},
		[]string{"result"},
	)

	IngressBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_ingress_bytes_total",
			Help: "Webhook body bytes by result",
		},
		[]string{"result"},
	)

	// Dispatch

	Records = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_records_total",
			Help: "Envelopes seen by kind and outcome (stored, disabled, ignored, unknown, error)",
		},
		[]string{"kind", "outcome"},
	)

	DroppedBodies = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whrelay_dropped_bodies_total",
			Help: "Request bodies that could not be decoded",
		},
	)

	// Storage

	UpsertChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_upsert_chunks_total",
			Help: "Upsert chunks by table and outcome (ok, retried, constraint, exhausted)",
		},
		[]string{"table", "outcome"},
	)

	UpsertRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_upsert_rows_total",
			Help: "Rows written by table",
		},
		[]string{"table"},
	)

	UpsertDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whrelay_upsert_duration_seconds",
			Help:    "Duration of one upsert chunk",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"table"},
	)

	CleanerRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_cleaner_rows_total",
			Help: "Rows touched by the database cleaner",
		},
		[]string{"action"},
	)

	// Delivery

	DeliveryRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_delivery_records_total",
			Help: "Records offered to the deduper by outcome (sent, suppressed, passthrough)",
		},
		[]string{"outcome"},
	)

	DeliveryFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_delivery_frames_total",
			Help: "Frames posted per sink and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whrelay_delivery_duration_seconds",
			Help:    "Time to deliver one frame to one endpoint, retries included",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	DedupCacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "whrelay_dedup_cache_size",
			Help: "Entries held in the per-kind dedup cache",
		},
		[]string{"kind"},
	)

	// 0=closed, 1=half-open, 2=open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "whrelay_circuit_breaker_state",
			Help: "Circuit breaker state per endpoint (0=closed, 1=half-open, 2=open)",
		},
		[]string{"endpoint"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions per endpoint",
		},
		[]string{"endpoint", "from", "to"},
	)

	// Side channels

	DeadLetterEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_deadletter_entries_total",
			Help: "Payloads archived after exhausting retries",
		},
		[]string{"source"},
	)

	EventBusMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_eventbus_messages_total",
			Help: "Frame entries published to the event bus by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	LiveFeedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "whrelay_livefeed_clients",
			Help: "Connected websocket live feed clients",
		},
	)

	StatsEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whrelay_stats_events_dropped_total",
			Help: "Stats events dropped because the aggregator inbox was full",
		},
	)

	// API

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whrelay_api_requests_total",
			Help: "HTTP requests by route pattern and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whrelay_api_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordQueueDepth updates the depth gauge for queue.
func RecordQueueDepth(queue string, depth int) {
	QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordQueueMax updates the max-depth gauge for queue.
func RecordQueueMax(queue string, max int) {
	QueueMaxDepth.WithLabelValues(queue).Set(float64(max))
}

// RecordRecord counts one envelope outcome.
func RecordRecord(kind, outcome string) {
	Records.WithLabelValues(kind, outcome).Inc()
}

// RecordUpsertChunk counts one chunk attempt outcome and, for ok chunks,
// the rows it wrote and its duration.
func RecordUpsertChunk(table, outcome string, rows int, duration time.Duration) {
	UpsertChunks.WithLabelValues(table, outcome).Inc()
	if outcome == "ok" {
		UpsertRows.WithLabelValues(table).Add(float64(rows))
		UpsertDuration.WithLabelValues(table).Observe(duration.Seconds())
	}
}

// RecordDeliveryFrame counts one frame delivery to one sink.
func RecordDeliveryFrame(sink, outcome string, duration time.Duration) {
	DeliveryFrames.WithLabelValues(sink, outcome).Inc()
	DeliveryDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

// RecordAPIRequest records one served HTTP request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
