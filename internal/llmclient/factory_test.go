package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/uiprobe/internal/config"
)

func routerConfig() config.LLMRouterConfig {
	return config.LLMRouterConfig{
		DefaultFastModel:     "fast",
		DefaultPowerfulModel: "powerful",
		Models: map[string]config.LLMModelConfig{
			"fast":     {Provider: config.ProviderCLI, Binary: "claude", Model: "haiku"},
			"powerful": {Provider: config.ProviderGemini, APIKey: "k", Model: "gemini-2.5-pro"},
		},
		MaxResponseBytes: 1 << 20,
	}
}

func TestNewClient_BuildsRouterPerTier(t *testing.T) {
	logger, _ := setupTestLogger(t)
	client, err := NewClient(context.Background(), routerConfig(), logger)
	require.NoError(t, err)

	router, ok := client.(*LLMRouter)
	require.True(t, ok, "no rate limit configured, so the router is returned directly")
	assert.IsType(t, &CLIClient{}, router.clients["fast"])
	assert.IsType(t, &GeminiClient{}, router.clients["powerful"])
	assert.Equal(t, int64(1<<20), router.clients["fast"].(*CLIClient).opts.MaxResponseBytes)
	assert.Equal(t, 1<<20, router.clients["powerful"].(*GeminiClient).maxResponseBytes)
	assert.NoError(t, client.Close())
}

func TestNewClient_SharesModelAcrossTiersAndRateLimits(t *testing.T) {
	logger, _ := setupTestLogger(t)
	cfg := routerConfig()
	cfg.DefaultPowerfulModel = "fast"
	cfg.RequestsPerMinute = 30

	client, err := NewClient(context.Background(), cfg, logger)
	require.NoError(t, err)

	limited, ok := client.(*RateLimitedClient)
	require.True(t, ok)
	router := limited.next.(*LLMRouter)
	assert.Same(t, router.clients["fast"], router.clients["powerful"])
}

func TestNewClient_Errors(t *testing.T) {
	logger, _ := setupTestLogger(t)

	cfg := routerConfig()
	cfg.DefaultFastModel = "missing"
	_, err := NewClient(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, `llm model "missing" is not configured`)

	cfg = routerConfig()
	cfg.Models["powerful"] = config.LLMModelConfig{Provider: "openai"}
	_, err = NewClient(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "unknown or unsupported LLM provider")

	cfg = routerConfig()
	cfg.Models["fast"] = config.LLMModelConfig{Provider: config.ProviderCLI}
	_, err = NewClient(context.Background(), cfg, logger)
	assert.ErrorContains(t, err, "cli provider requires a binary")
}
