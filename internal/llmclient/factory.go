package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/config"
)

// NewClient builds the completion port from configuration: one client per
// referenced model, a tier router over them, and the optional rate limiter
// in front.
func NewClient(ctx context.Context, cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	built := make(map[string]schemas.LLMClient, 2)
	build := func(name string) (schemas.LLMClient, error) {
		if c, ok := built[name]; ok {
			return c, nil
		}
		model, ok := cfg.Models[name]
		if !ok {
			return nil, fmt.Errorf("llm model %q is not configured", name)
		}
		c, err := newModelClient(ctx, model, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to build llm model %q: %w", name, err)
		}
		built[name] = c
		return c, nil
	}

	fast, err := build(cfg.DefaultFastModel)
	if err != nil {
		return nil, err
	}
	powerful, err := build(cfg.DefaultPowerfulModel)
	if err != nil {
		_ = fast.Close()
		return nil, err
	}

	router, err := NewLLMRouter(logger, fast, powerful)
	if err != nil {
		return nil, err
	}
	return NewRateLimitedClient(router, cfg.RequestsPerMinute, logger), nil
}

func newModelClient(ctx context.Context, model config.LLMModelConfig, cfg config.LLMRouterConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch model.Provider {
	case config.ProviderCLI:
		return NewCLIClient(model, cfg, logger)
	case config.ProviderGemini:
		return NewGeminiClient(ctx, model, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			model.Provider, config.ProviderCLI, config.ProviderGemini)
	}
}
