// Package llm defines the chat completion and embedding capabilities
// mnemod depends on, with adapters for the supported providers.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat completion request.
type Request struct {
	// Model overrides the provider's default model when set.
	Model string

	// System is the system prompt. Kept separate from Messages because
	// providers differ in how they carry it.
	System string

	// Messages is the conversation, oldest first.
	Messages []Message

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// Response is a chat completion result.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// ChatProvider generates completions.
type ChatProvider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Name() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ProviderError describes a failed provider call.
type ProviderError struct {
	// Provider is the adapter name (anthropic, openai).
	Provider string

	// StatusCode is the HTTP status from the provider, 0 if the call
	// never reached it.
	StatusCode int

	// RateLimited is set when the provider refused the call for quota
	// reasons.
	RateLimited bool

	// Err is the underlying error.
	Err error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("llm: %s request failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("llm: %s request failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// AsProviderError unwraps err into a *ProviderError if there is one.
func AsProviderError(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRateLimited reports whether err is a rate-limited provider error.
func IsRateLimited(err error) bool {
	pe, ok := AsProviderError(err)
	return ok && pe.RateLimited
}

func newProviderError(provider string, status int, err error) *ProviderError {
	return &ProviderError{
		Provider:    provider,
		StatusCode:  status,
		RateLimited: status == http.StatusTooManyRequests,
		Err:         err,
	}
}
