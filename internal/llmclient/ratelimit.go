package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/uiprobe/api/schemas"
)

// RateLimitedClient spaces out completion calls to a fixed budget per minute.
type RateLimitedClient struct {
	next    schemas.LLMClient
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewRateLimitedClient wraps next. A non-positive perMinute disables limiting
// and returns next unchanged.
func NewRateLimitedClient(next schemas.LLMClient, perMinute float64, logger *zap.Logger) schemas.LLMClient {
	if perMinute <= 0 {
		return next
	}
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perMinute/60), 1),
		logger:  logger.Named("llm_ratelimit"),
	}
}

// Generate blocks until the limiter admits the call or ctx ends.
func (c *RateLimitedClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if c.limiter.Tokens() < 1 {
		c.logger.Debug("Waiting for completion rate limit")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait: %w", err)
	}
	return c.next.Generate(ctx, req)
}

// Close closes the wrapped client.
func (c *RateLimitedClient) Close() error { return c.next.Close() }
