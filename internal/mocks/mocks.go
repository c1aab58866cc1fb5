// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/config"
	"github.com/xkilldash9x/uiprobe/internal/memory"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Agent() config.AgentConfig {
	args := m.Called()
	return args.Get(0).(config.AgentConfig)
}

func (m *MockConfig) Memory() config.MemoryConfig {
	args := m.Called()
	return args.Get(0).(config.MemoryConfig)
}

func (m *MockConfig) SetPromptVision(b bool)  { m.Called(b) }
func (m *MockConfig) SetMemoryDir(dir string) { m.Called(dir) }
func (m *MockConfig) SetCriticEnabled(b bool) { m.Called(b) }

// -- LLM Client Mock --

// MockLLMClient mocks the schemas.LLMClient interface.
type MockLLMClient struct {
	mock.Mock
}

// Generate provides a mock function for LLM calls.
func (m *MockLLMClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

// Close provides a mock function for releasing client resources.
func (m *MockLLMClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Memory Mock --

// MockMemory mocks the cross-run store consumed by the brain.
type MockMemory struct {
	mock.Mock
}

func (m *MockMemory) GetCachedHint(scenarioID string) string {
	return m.Called(scenarioID).String(0)
}

func (m *MockMemory) Lessons(scenarioID string) []string {
	args := m.Called(scenarioID)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]string)
}

func (m *MockMemory) Finalize(ctx context.Context, outcome memory.Outcome) error {
	return m.Called(ctx, outcome).Error(0)
}
