package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// initHTTPMetrics initializes HTTP API metrics.
func (m *Manager) initHTTPMetrics(cfg Config) {
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: cfg.HTTPDurationBuckets,
		},
		[]string{"method", "path"},
	)

	m.httpConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Current number of active HTTP connections",
		},
	)

	m.registry.MustRegister(m.httpRequests)
	m.registry.MustRegister(m.httpDuration)
	m.registry.MustRegister(m.httpConnections)
}

// RecordHTTPRequest records an HTTP request with method, path, and status.
func (m *Manager) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordHTTPRequestWithTrace records an HTTP request and, when the
// context carries a sampled span, attaches the trace as an exemplar.
func (m *Manager) RecordHTTPRequestWithTrace(ctx context.Context, method, path, status string, duration time.Duration) {
	if !m.enabled {
		return
	}

	labels, ok := traceExemplarLabels(ctx)
	if !ok {
		m.RecordHTTPRequest(method, path, status, duration)
		return
	}

	if adder, ok := m.httpRequests.WithLabelValues(method, path, status).(prometheus.ExemplarAdder); ok {
		adder.AddWithExemplar(1, labels)
	} else {
		m.httpRequests.WithLabelValues(method, path, status).Inc()
	}
	if observer, ok := m.httpDuration.WithLabelValues(method, path).(prometheus.ExemplarObserver); ok {
		observer.ObserveWithExemplar(duration.Seconds(), labels)
	} else {
		m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	}
}

// traceExemplarLabels extracts exemplar labels from a sampled span
// context, if any.
func traceExemplarLabels(ctx context.Context) (prometheus.Labels, bool) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !sc.IsSampled() {
		return nil, false
	}
	return prometheus.Labels{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	}, true
}

// IncActiveConnections increments the active HTTP connections count.
func (m *Manager) IncActiveConnections() {
	if !m.enabled {
		return
	}
	m.httpConnections.Inc()
}

// DecActiveConnections decrements the active HTTP connections count.
func (m *Manager) DecActiveConnections() {
	if !m.enabled {
		return
	}
	m.httpConnections.Dec()
}
