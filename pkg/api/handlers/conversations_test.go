package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemod/mnemod/pkg/memory"
)

func TestConversationsHandler_History(t *testing.T) {
	orch, _, cleanup := setupOrchestrator(t, &stubChat{reply: "ack"})
	defer cleanup()
	ch := NewChatHandler(orch, "stub", &nopLogger{}, nil)
	h := NewConversationsHandler(orch, &nopLogger{})

	w := postChat(t, ch, `{"user_id": "u1", "conversation_id": "c1", "message": "remember this"}`)
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest("GET", "/api/v1/conversations/c1/messages", nil)
	req = withChiURLParam(req, "id", "c1")
	w = httptest.NewRecorder()
	h.History(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		ConversationID string                    `json:"conversation_id"`
		Turns          []memory.ConversationTurn `json:"turns"`
		Total          int                       `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "c1", resp.ConversationID)
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "user", resp.Turns[0].Role)
	assert.Equal(t, "remember this", resp.Turns[0].Text)
	assert.Equal(t, "assistant", resp.Turns[1].Role)
}

func TestConversationsHandler_HistoryEmpty(t *testing.T) {
	orch, _, cleanup := setupOrchestrator(t, &stubChat{reply: "ack"})
	defer cleanup()
	h := NewConversationsHandler(orch, &nopLogger{})

	req := httptest.NewRequest("GET", "/api/v1/conversations/unknown/messages", nil)
	req = withChiURLParam(req, "id", "unknown")
	w := httptest.NewRecorder()
	h.History(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Total)
}

func TestConversationsHandler_End(t *testing.T) {
	orch, store, cleanup := setupOrchestrator(t, &stubChat{reply: "ack"})
	defer cleanup()
	ch := NewChatHandler(orch, "stub", &nopLogger{}, nil)
	h := NewConversationsHandler(orch, &nopLogger{})

	w := postChat(t, ch, `{"user_id": "u1", "conversation_id": "c1", "message": "hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest("DELETE", "/api/v1/conversations/c1?user_id=u1", nil)
	req = withChiURLParam(req, "id", "c1")
	w = httptest.NewRecorder()
	h.End(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ended", resp["status"])

	// The window was flushed into a summary memory before discard.
	records, err := store.List(req.Context(), "u1", memory.ListFilter{Category: memory.CategorySummary})
	require.NoError(t, err)
	assert.Len(t, records, 1)

	turns, err := orch.History(req.Context(), "c1")
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestConversationsHandler_EndRequiresUserID(t *testing.T) {
	orch, _, cleanup := setupOrchestrator(t, &stubChat{reply: "ack"})
	defer cleanup()
	h := NewConversationsHandler(orch, &nopLogger{})

	req := httptest.NewRequest("DELETE", "/api/v1/conversations/c1", nil)
	req = withChiURLParam(req, "id", "c1")
	w := httptest.NewRecorder()
	h.End(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
