package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mnemod/mnemod/pkg/api/response"
	"github.com/mnemod/mnemod/pkg/memory"
)

// ConversationsHandler handles conversation lifecycle endpoints.
type ConversationsHandler struct {
	orchestrator *memory.Orchestrator
	logger       chatLogger
}

// NewConversationsHandler creates a new conversations handler.
func NewConversationsHandler(orch *memory.Orchestrator, log chatLogger) *ConversationsHandler {
	return &ConversationsHandler{
		orchestrator: orch,
		logger:       log,
	}
}

// History handles GET /api/v1/conversations/{id}/messages
func (h *ConversationsHandler) History(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	turns, err := h.orchestrator.History(r.Context(), conversationID)
	if err != nil {
		h.logger.Error("failed to read conversation history", "conversation_id", conversationID, "error", err)
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conversationID,
		"turns":           turns,
		"total":           len(turns),
	})
}

// End handles DELETE /api/v1/conversations/{id}. The remaining window
// is flushed into a summary memory before the conversation state is
// discarded.
func (h *ConversationsHandler) End(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "user_id is required", getRequestID(r.Context()))
		return
	}

	if err := h.orchestrator.EndConversation(r.Context(), userID, conversationID); err != nil {
		h.logger.Error("failed to end conversation", "conversation_id", conversationID, "error", err)
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]string{
		"conversation_id": conversationID,
		"status":          "ended",
	})
}
