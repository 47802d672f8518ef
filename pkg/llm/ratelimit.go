package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps a provider with a client-side token bucket so a
// burst of chat traffic cannot blow through the provider's quota.
type RateLimited struct {
	chat    ChatProvider
	embed   Embedder
	limiter *rate.Limiter
}

// NewRateLimitedChat wraps a chat provider.
func NewRateLimitedChat(p ChatProvider, requestsPerSecond float64, burst int) *RateLimited {
	return &RateLimited{
		chat:    p,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// NewRateLimitedEmbedder wraps an embedder.
func NewRateLimitedEmbedder(e Embedder, requestsPerSecond float64, burst int) *RateLimited {
	return &RateLimited{
		embed:   e,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (r *RateLimited) Name() string {
	if r.chat != nil {
		return r.chat.Name()
	}
	return r.embed.Name()
}

// Complete waits for a token, then delegates.
func (r *RateLimited) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.chat.Complete(ctx, req)
}

// Embed waits for a token, then delegates.
func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.embed.Embed(ctx, text)
}
