// Package metrics defines the Prometheus collectors for the screening
// pipeline. Collectors register with the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "screening"

var (
	// Bus metrics
	BusPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "published_total",
			Help:      "Envelopes accepted by the transport, by topic and mode",
		},
		[]string{"topic", "mode"},
	)

	BusConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "consumed_total",
			Help:      "Envelopes handed to subscription handlers, by topic",
		},
		[]string{"topic"},
	)

	BusErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "errors_total",
			Help:      "Publish, delivery and handler errors, by operation",
		},
		[]string{"operation"},
	)

	BusSimulationMode = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "bus",
			Name:      "simulation_mode",
			Help:      "1 when the bus runs on the in-process simulated transport",
		},
	)

	// Matcher metrics
	TransactionsScreened = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "transactions_screened_total",
			Help:      "Transactions scored against a non-empty registry snapshot",
		},
	)

	TransactionsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "transactions_skipped_total",
			Help:      "Transactions skipped without scoring, by reason",
		},
		[]string{"reason"},
	)

	TransactionsFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "transactions_flagged_total",
			Help:      "Transactions whose best match reached the threshold",
		},
	)

	NearMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "near_misses_total",
			Help:      "Best scores in the near-miss band below the threshold",
		},
	)

	BestMatchScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "best_match_score",
			Help:      "Distribution of the best similarity score per transaction",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 85, 90, 95, 100},
		},
	)

	ScreeningDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "screening_duration_seconds",
			Help:      "Time to score one transaction against the snapshot",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 16),
		},
	)

	RegistrySnapshotSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "matcher",
			Name:      "registry_snapshot_entities",
			Help:      "Entities in the snapshot currently used for scoring",
		},
	)

	// Registry producer metrics
	RegistryPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "polls_total",
			Help:      "Registry poll cycles, by result",
		},
		[]string{"result"},
	)

	RegistryFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "fetch_duration_seconds",
			Help:      "Registry fetch latency",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)

	// Hub metrics
	HubRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "records_total",
			Help:      "Records appended to hub history, by category",
		},
		[]string{"category"},
	)

	HubObserverFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "observer_failures_total",
			Help:      "Observer notifications that returned an error or panicked",
		},
		[]string{"observer"},
	)

	HubObservers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "observers",
			Help:      "Currently registered observers",
		},
	)

	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "websocket_clients",
			Help:      "Connected dashboard websocket clients",
		},
	)

	// Generator metrics
	GeneratorPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "published_total",
			Help:      "Synthetic records published, by topic and trigger",
		},
		[]string{"topic", "trigger"},
	)

	GeneratorErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "generator",
			Name:      "errors_total",
			Help:      "Synthetic publishes the bus rejected, by topic",
		},
		[]string{"topic"},
	)
)

// BoolGauge converts a flag to a gauge value
func BoolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
