package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mnemod/mnemod/pkg/api/response"
	"github.com/mnemod/mnemod/pkg/llm"
	"github.com/mnemod/mnemod/pkg/memory"
)

type chatLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// chatMetrics is the subset of the metrics manager the chat handler uses.
type chatMetrics interface {
	RecordChatTurn(provider, model, status string, duration time.Duration)
	RecordChatTokens(provider string, input, output int64)
	RecordDegradedTurn()
	RecordProviderError(provider, kind string)
}

type nopChatMetrics struct{}

func (nopChatMetrics) RecordChatTurn(string, string, string, time.Duration) {}
func (nopChatMetrics) RecordChatTokens(string, int64, int64)                {}
func (nopChatMetrics) RecordDegradedTurn()                                  {}
func (nopChatMetrics) RecordProviderError(string, string)                   {}

// ChatHandler handles the chat endpoint.
type ChatHandler struct {
	orchestrator *memory.Orchestrator
	provider     string
	logger       chatLogger
	metrics      chatMetrics
}

// NewChatHandler creates a new chat handler. provider names the active
// chat provider for metrics labels.
func NewChatHandler(orch *memory.Orchestrator, provider string, log chatLogger, metrics chatMetrics) *ChatHandler {
	if metrics == nil {
		metrics = nopChatMetrics{}
	}
	return &ChatHandler{
		orchestrator: orch,
		provider:     provider,
		logger:       log,
		metrics:      metrics,
	}
}

// Chat handles POST /api/v1/chat
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req memory.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	start := time.Now()
	resp, err := h.orchestrator.Chat(ctx, req)
	if err != nil {
		h.metrics.RecordChatTurn(h.provider, "", "error", time.Since(start))
		if provErr, ok := llm.AsProviderError(err); ok {
			kind := "upstream"
			if provErr.RateLimited {
				kind = "rate_limited"
			}
			h.metrics.RecordProviderError(provErr.Provider, kind)
		}
		h.logger.Error("chat turn failed", "user_id", req.UserID, "error", err)
		writeDomainError(w, r, err)
		return
	}

	h.metrics.RecordChatTurn(h.provider, resp.Model, "ok", time.Since(start))
	h.metrics.RecordChatTokens(h.provider, resp.InputTokens, resp.OutputTokens)
	if resp.Degraded {
		h.metrics.RecordDegradedTurn()
	}

	response.JSON(w, http.StatusOK, resp)
}
