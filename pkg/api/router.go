// Package api provides HTTP API server components.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/mnemod/mnemod/config"
	"github.com/mnemod/mnemod/pkg/api/handlers"
	"github.com/mnemod/mnemod/pkg/api/middleware"
	"github.com/mnemod/mnemod/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Chat handles the chat endpoint
	Chat *handlers.ChatHandler

	// Memory handles structured memory endpoints
	Memory *handlers.MemoryHandler

	// Conversations handles conversation lifecycle endpoints
	Conversations *handlers.ConversationsHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	// Register global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))

	// Add metrics middleware if provided
	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.Timeout(cfg.Server.HTTP.RequestTimeout))

	// Register routes
	RegisterRoutes(r, handlers)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Chat route
		if handlers.Chat != nil {
			r.Post("/chat", handlers.Chat.Chat)
		}

		// Memory routes
		if handlers.Memory != nil {
			r.Route("/memory", func(r chi.Router) {
				r.Post("/", handlers.Memory.Create)
				r.Get("/", handlers.Memory.List)
				r.Delete("/", handlers.Memory.ForgetAll)
				r.Get("/recall", handlers.Memory.Recall)
				r.Get("/stats", handlers.Memory.Stats)
				r.Get("/{id}", handlers.Memory.Get)
				r.Put("/{id}", handlers.Memory.Update)
				r.Delete("/{id}", handlers.Memory.Forget)
			})
		}

		// Conversation routes
		if handlers.Conversations != nil {
			r.Route("/conversations", func(r chi.Router) {
				r.Get("/{id}/messages", handlers.Conversations.History)
				r.Delete("/{id}", handlers.Conversations.End)
			})
		}
	})

	// Health check routes (not versioned)
	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}
}
