package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initChatMetrics initializes chat turn metrics.
func (m *Manager) initChatMetrics(cfg Config) {
	m.chatTurns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_turns_total",
			Help: "Total number of chat turns by provider, model and outcome",
		},
		[]string{"provider", "model", "status"},
	)

	m.chatDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_turn_duration_seconds",
			Help:    "End-to-end chat turn duration in seconds",
			Buckets: cfg.ChatDurationBuckets,
		},
		[]string{"provider"},
	)

	m.chatTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_tokens_total",
			Help: "Total tokens consumed by direction (input or output)",
		},
		[]string{"provider", "direction"},
	)

	m.chatDegraded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_degraded_turns_total",
			Help: "Chat turns that fell back to a bare prompt to fit the context budget",
		},
	)

	m.registry.MustRegister(m.chatTurns)
	m.registry.MustRegister(m.chatDuration)
	m.registry.MustRegister(m.chatTokens)
	m.registry.MustRegister(m.chatDegraded)
}

// RecordChatTurn records one completed chat turn.
func (m *Manager) RecordChatTurn(provider, model, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.chatTurns.WithLabelValues(provider, model, status).Inc()
	m.chatDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordChatTokens records token usage for a turn.
func (m *Manager) RecordChatTokens(provider string, input, output int64) {
	if !m.enabled {
		return
	}
	m.chatTokens.WithLabelValues(provider, "input").Add(float64(input))
	m.chatTokens.WithLabelValues(provider, "output").Add(float64(output))
}

// RecordDegradedTurn records a turn that was reduced to a bare prompt.
func (m *Manager) RecordDegradedTurn() {
	if !m.enabled {
		return
	}
	m.chatDegraded.Inc()
}
