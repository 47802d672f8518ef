package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initMemoryMetrics initializes memory subsystem metrics.
func (m *Manager) initMemoryMetrics(cfg Config) {
	m.memoryOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_operations_total",
			Help: "Total memory store operations by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	m.recallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memory_recall_duration_seconds",
			Help:    "Semantic recall duration in seconds, embedding included",
			Buckets: cfg.RecallDurationBuckets,
		},
	)

	m.memoriesRetrieved = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "memory_recall_results",
			Help:    "Number of memories returned per recall",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	m.summaries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_summaries_total",
			Help: "Conversation summaries by outcome (ok, fallback, failed)",
		},
		[]string{"outcome"},
	)

	m.providerErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_errors_total",
			Help: "Upstream provider errors by provider and kind",
		},
		[]string{"provider", "kind"},
	)

	m.registry.MustRegister(m.memoryOps)
	m.registry.MustRegister(m.recallDuration)
	m.registry.MustRegister(m.memoriesRetrieved)
	m.registry.MustRegister(m.summaries)
	m.registry.MustRegister(m.providerErrors)
}

// RecordMemoryOp records a memory store operation.
func (m *Manager) RecordMemoryOp(operation, status string) {
	if !m.enabled {
		return
	}
	m.memoryOps.WithLabelValues(operation, status).Inc()
}

// RecordRecall records a recall round trip and its result count.
func (m *Manager) RecordRecall(duration time.Duration, results int) {
	if !m.enabled {
		return
	}
	m.recallDuration.Observe(duration.Seconds())
	m.memoriesRetrieved.Observe(float64(results))
}

// RecordSummary records a summarization outcome.
func (m *Manager) RecordSummary(outcome string) {
	if !m.enabled {
		return
	}
	m.summaries.WithLabelValues(outcome).Inc()
}

// RecordProviderError records an upstream provider failure.
func (m *Manager) RecordProviderError(provider, kind string) {
	if !m.enabled {
		return
	}
	m.providerErrors.WithLabelValues(provider, kind).Inc()
}
