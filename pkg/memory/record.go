// Package memory implements the memory subsystem for stateless chat
// models: a short-term turn window, durable structured memories with
// semantic retrieval, and the orchestration that assembles both into a
// budgeted prompt.
package memory

import (
	"strings"
	"time"
)

// Well-known memory categories. The set is open; these are the ones
// the service itself produces or the API documents.
const (
	CategoryPreference = "preference"
	CategoryFact       = "fact"
	CategoryGoal       = "goal"
	CategoryBackground = "background"
	CategoryTask       = "task"
	CategorySummary    = "summary"
)

// Conversation turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// MemoryRecord is a durable structured memory owned by a single user.
type MemoryRecord struct {
	// ID is the immutable record identifier.
	ID string `json:"id"`

	// UserID is the owning user. Records are never visible across users.
	UserID string `json:"user_id"`

	// Content is the memory text.
	Content string `json:"content"`

	// Category classifies the memory (preference, fact, goal, ...).
	Category string `json:"category"`

	// Tags are free-form labels for filtering.
	Tags []string `json:"tags,omitempty"`

	// Source records provenance, e.g. "api" or "conversation:<id>".
	Source string `json:"source,omitempty"`

	// EmbeddingID links the record to its vector index entry.
	EmbeddingID string `json:"embedding_id,omitempty"`

	// CreatedAt is the creation timestamp.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is bumped on every content edit.
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so cached records cannot be mutated by
// callers.
func (r *MemoryRecord) Clone() *MemoryRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Tags != nil {
		cp.Tags = make([]string, len(r.Tags))
		copy(cp.Tags, r.Tags)
	}
	return &cp
}

// HasTag reports whether the record carries the given tag.
func (r *MemoryRecord) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Validate checks the fields a caller must supply.
func (r *MemoryRecord) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(r.Content) == "" || strings.TrimSpace(r.Category) == "" {
		return ErrInvalidRecord
	}
	return nil
}

// ConversationTurn is a single message in a conversation window.
type ConversationTurn struct {
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// Summary is the structured output of conversation summarization.
// It is persisted as a MemoryRecord with Category "summary" and the
// JSON document as content.
type Summary struct {
	Topics      []string `json:"topics"`
	Facts       []string `json:"facts"`
	OpenThreads []string `json:"open_threads"`
}

// Empty reports whether the summary carries no information.
func (s *Summary) Empty() bool {
	return s == nil || (len(s.Topics) == 0 && len(s.Facts) == 0 && len(s.OpenThreads) == 0)
}

// RecallResult pairs a retrieved record with its query distance.
type RecallResult struct {
	Record   *MemoryRecord `json:"record"`
	Distance float64       `json:"distance"`
}
