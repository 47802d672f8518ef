package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewManager(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if !m.Enabled() {
		t.Error("Expected metrics to be enabled")
	}
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)
	if m == nil {
		t.Fatal("NewManager returned nil")
	}

	if m.Enabled() {
		t.Error("Expected metrics to be disabled")
	}
}

func TestMetricsHandler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true

	m := NewManager(cfg)

	// Record some metrics
	m.RecordChatTurn("anthropic", "claude-sonnet-4-20250514", "ok", 2*time.Second)
	m.RecordChatTurn("anthropic", "claude-sonnet-4-20250514", "error", time.Second)
	m.RecordChatTokens("anthropic", 1200, 340)
	m.RecordRecall(15*time.Millisecond, 3)
	m.RecordSummary("ok")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	if body == "" {
		t.Error("Expected non-empty metrics output")
	}

	expectedMetrics := []string{
		"chat_turns_total",
		"chat_turn_duration_seconds",
		"chat_tokens_total",
		"memory_recall_duration_seconds",
		"memory_summaries_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Expected metric %s not found in output", metric)
		}
	}
}

func TestMetricsHandler_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false

	m := NewManager(cfg)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404 when disabled, got %d", w.Code)
	}
}

func TestStartServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Port = 19091 // Use different port for testing

	m := NewManager(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		err := m.StartServer(ctx, cfg.Port, cfg.Path)
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	// Try to fetch metrics
	resp, err := http.Get("http://localhost:19091/metrics")
	if err != nil {
		t.Fatalf("Failed to fetch metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	// Cancel context to stop server
	cancel()

	// Check for errors
	select {
	case err := <-errCh:
		t.Errorf("Server error: %v", err)
	case <-time.After(1 * time.Second):
		// Server stopped cleanly
	}
}

func TestNoOpManager(t *testing.T) {
	m := NoOpManager()

	if m.Enabled() {
		t.Error("NoOpManager should not be enabled")
	}

	// These should not panic
	m.RecordChatTurn("anthropic", "model", "ok", time.Second)
	m.RecordChatTokens("anthropic", 10, 20)
	m.RecordDegradedTurn()
	m.RecordMemoryOp("save", "ok")
	m.RecordRecall(time.Millisecond, 1)
	m.RecordSummary("fallback")
	m.RecordProviderError("openai", "rate_limited")
	m.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
	m.IncActiveConnections()
	m.DecActiveConnections()
}

func TestProviderAndMemoryMetricsRegistered(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	m := NewManager(cfg)

	m.RecordMemoryOp("save", "ok")
	m.RecordMemoryOp("forget", "error")
	m.RecordProviderError("openai", "rate_limited")
	m.RecordDegradedTurn()
	m.RecordSummary("fallback")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	expected := []string{
		"memory_operations_total",
		"memory_recall_results",
		"provider_errors_total",
		"chat_degraded_turns_total",
	}
	for _, metric := range expected {
		if !strings.Contains(body, metric) {
			t.Errorf("expected metric %s not found in output", metric)
		}
	}
}

func BenchmarkRecordChatTurn(b *testing.B) {
	m := NewManager(DefaultConfig())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordChatTurn("anthropic", "model", "ok", time.Second)
	}
}

func BenchmarkRecordHTTPRequest(b *testing.B) {
	m := NewManager(DefaultConfig())
	d := 5 * time.Millisecond
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordHTTPRequest("GET", "/api/v1/chat", "200", d)
	}
}

func BenchmarkNoOpRecording(b *testing.B) {
	m := NoOpManager()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.RecordChatTurn("anthropic", "model", "ok", time.Second)
		m.RecordMemoryOp("save", "ok")
		m.RecordRecall(time.Millisecond, 3)
	}
}
