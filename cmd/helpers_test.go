package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/config"
	"github.com/xkilldash9x/uiprobe/internal/memory"
	"github.com/xkilldash9x/uiprobe/internal/observability"
)

// fakeLLMProvider hands out a prepared client.
type fakeLLMProvider struct {
	client schemas.LLMClient
	err    error
}

func (p fakeLLMProvider) Create(context.Context, config.Interface) (schemas.LLMClient, error) {
	return p.client, p.err
}

// memFsProvider opens memory over an in-memory filesystem.
type memFsProvider struct {
	fs     afero.Fs
	opened int
}

func (p *memFsProvider) Open(ctx context.Context, _ config.Interface) (*memory.Store, func(), error) {
	p.opened++
	return memory.Open(ctx, memory.NewFileBackend(p.fs, "/memory"), memory.Options{}, zap.NewNop()), func() {}, nil
}

// resetForTest isolates a test from config files in the working directory
// and from the global logger state left by other tests.
func resetForTest(t *testing.T) {
	t.Helper()
	cfgFile = ""
	t.Chdir(t.TempDir())
	t.Setenv("UIPROBE_MEMORY_DIR", t.TempDir())
	t.Setenv("UIPROBE_LOGGER_LEVEL", "error")
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
}

func executeCommand(t *testing.T, llm llmProvider, mem memoryProvider, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(llm, mem)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
