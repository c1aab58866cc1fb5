package cmd

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/config"
	"github.com/xkilldash9x/uiprobe/internal/llmclient"
	"github.com/xkilldash9x/uiprobe/internal/memory"
	"github.com/xkilldash9x/uiprobe/internal/observability"
	"github.com/xkilldash9x/uiprobe/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// llmProvider creates the completion port. Tests swap in a mock client.
type llmProvider interface {
	Create(ctx context.Context, cfg config.Interface) (schemas.LLMClient, error)
}

// memoryProvider opens the cross-run memory and returns a cleanup func that
// releases the backend.
type memoryProvider interface {
	Open(ctx context.Context, cfg config.Interface) (*memory.Store, func(), error)
}

type defaultLLMProvider struct{}

func (defaultLLMProvider) Create(ctx context.Context, cfg config.Interface) (schemas.LLMClient, error) {
	return llmclient.NewClient(ctx, cfg.Agent().LLM, observability.GetLogger())
}

type defaultMemoryProvider struct{}

func (defaultMemoryProvider) Open(ctx context.Context, cfg config.Interface) (*memory.Store, func(), error) {
	logger := observability.GetLogger()
	mcfg := cfg.Memory()
	opts := memory.Options{CacheCapacity: mcfg.CacheCapacity, LessonCapacity: mcfg.LessonCapacity}

	switch mcfg.Backend {
	case config.MemoryBackendFile:
		backend := memory.NewFileBackend(afero.NewOsFs(), mcfg.Dir)
		return memory.Open(ctx, backend, opts, logger), func() {}, nil
	case config.MemoryBackendPostgres:
		backend, closePool, err := store.Connect(ctx, mcfg.Postgres.URL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres memory: %w", err)
		}
		cleanup := func() {
			closePool()
			logger.Debug("Memory connection pool closed.")
		}
		return memory.Open(ctx, backend, opts, logger), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown memory backend %q", mcfg.Backend)
	}
}

