package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mnemod/mnemod/pkg/api/response"
	"github.com/mnemod/mnemod/pkg/memory"
)

const defaultRecallLimit = 5

// MemoryHandler handles the structured memory API endpoints.
type MemoryHandler struct {
	store  *memory.Store
	logger chatLogger
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(store *memory.Store, log chatLogger) *MemoryHandler {
	return &MemoryHandler{
		store:  store,
		logger: log,
	}
}

// --- Request/Response types ---

type createMemoryRequest struct {
	UserID   string   `json:"user_id"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`
	Source   string   `json:"source,omitempty"`
}

type updateMemoryRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
}

type forgetResponse struct {
	Forgotten bool `json:"forgotten"`
}

type forgetAllResponse struct {
	Forgotten int `json:"forgotten"`
}

// requireUserID reads the user_id query parameter, writing a 400 when
// it is absent.
func (h *MemoryHandler) requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "user_id is required", getRequestID(r.Context()))
		return "", false
	}
	return userID, true
}

// Create handles POST /api/v1/memory
func (h *MemoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	source := req.Source
	if source == "" {
		source = "api"
	}

	record, err := h.store.Save(ctx, req.UserID, req.Content, req.Category, req.Tags, source)
	if err != nil {
		h.logger.Error("failed to save memory", "user_id", req.UserID, "error", err)
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, http.StatusCreated, record)
}

// Get handles GET /api/v1/memory/{id}
func (h *MemoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	record, err := h.store.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, record)
}

// Update handles PUT /api/v1/memory/{id}
func (h *MemoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req updateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}
	if req.UserID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "user_id is required", getRequestID(ctx))
		return
	}

	record, err := h.store.Update(ctx, req.UserID, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		h.logger.Error("failed to update memory", "user_id", req.UserID, "error", err)
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, record)
}

// Forget handles DELETE /api/v1/memory/{id}
func (h *MemoryHandler) Forget(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	forgotten, err := h.store.Forget(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("failed to forget memory", "user_id", userID, "error", err)
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, forgetResponse{Forgotten: forgotten})
}

// List handles GET /api/v1/memory
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	filter := memory.ListFilter{
		Category: r.URL.Query().Get("category"),
		Tag:      r.URL.Query().Get("tag"),
	}

	records, err := h.store.List(r.Context(), userID, filter)
	if err != nil {
		h.logger.Error("failed to list memories", "user_id", userID, "error", err)
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"memories": records,
		"total":    len(records),
	})
}

// Recall handles GET /api/v1/memory/recall
func (h *MemoryHandler) Recall(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("query")
	limit := defaultRecallLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	results, err := h.store.Recall(r.Context(), userID, query, limit)
	if err != nil {
		h.logger.Error("failed to recall memories", "user_id", userID, "error", err)
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"results": results,
		"total":   len(results),
	})
}

// Stats handles GET /api/v1/memory/stats
func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	count, err := h.store.Count(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]interface{}{
		"user_id": userID,
		"count":   count,
	})
}

// ForgetAll handles DELETE /api/v1/memory
func (h *MemoryHandler) ForgetAll(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUserID(w, r)
	if !ok {
		return
	}

	count, err := h.store.ForgetByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to forget user memories", "user_id", userID, "error", err)
		writeDomainError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, forgetAllResponse{Forgotten: count})
}
