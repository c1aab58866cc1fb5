package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/config"
	"github.com/xkilldash9x/uiprobe/internal/memory"
	"github.com/xkilldash9x/uiprobe/internal/mocks"
)

const scenarioYAML = `
id: create-widget
name: Create widget
goal: Create a widget named X
successCriteria:
  - description: widget X appears in the list
maxActions: 10
persona: impatient
`

const observationJSON = `{"url":"/widgets","heading":"Widgets","interactiveElements":[{"role":"button","name":"New widget"}]}`

func TestRootCmd_VersionFlag(t *testing.T) {
	resetForTest(t)
	out, err := executeCommand(t, fakeLLMProvider{}, &memFsProvider{fs: afero.NewMemMapFs()}, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestVersionCmd(t *testing.T) {
	resetForTest(t)
	out, err := executeCommand(t, fakeLLMProvider{}, &memFsProvider{fs: afero.NewMemMapFs()}, "version")
	require.NoError(t, err)
	assert.Equal(t, "uiprobe "+Version+"\n", out)
}

func TestRootCmd_InvalidConfigFails(t *testing.T) {
	resetForTest(t)
	path := writeFile(t, "uiprobe.yaml", "memory:\n  backend: carrier-pigeon\n")

	_, err := executeCommand(t, fakeLLMProvider{}, &memFsProvider{fs: afero.NewMemMapFs()}, "--config", path, "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load or validate config")
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestCategorizeCmd(t *testing.T) {
	resetForTest(t)
	log := writeFile(t, "log.json", `[
		{"actionId":"1","step":1,"action":{"type":"click","reasoning":"r"},"result":"failed","error":"Element not found: link Home"},
		{"actionId":"2","step":2,"action":{"type":"click","reasoning":"r"},"result":"success"},
		{"actionId":"3","step":3,"action":{"type":"click","reasoning":"r"},"result":"failed","error":"button not found"}
	]`)

	out, err := executeCommand(t, fakeLLMProvider{}, &memFsProvider{fs: afero.NewMemMapFs()},
		"categorize", "--error", "Element not found: button Save", "--log", log)
	require.NoError(t, err)
	assert.Equal(t, "element_not_found\n", out)

	out, err = executeCommand(t, fakeLLMProvider{}, &memFsProvider{fs: afero.NewMemMapFs()}, "categorize")
	require.NoError(t, err)
	assert.Equal(t, "unknown\n", out)
}

func TestDecideCmd_PrintsActionsUntilDone(t *testing.T) {
	resetForTest(t)
	scenario := writeFile(t, "scenario.yaml", scenarioYAML)
	obs := writeFile(t, "obs.json", observationJSON)

	llm := new(mocks.MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"type":"click","reasoning":"open form","target":{"role":"button","name":"New widget"}}`, nil).Once()
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"type":"done","reasoning":"finished"}`, nil).Once()
	llm.On("Close").Return(nil).Once()
	mem := &memFsProvider{fs: afero.NewMemMapFs()}

	out, err := executeCommand(t, fakeLLMProvider{client: llm}, mem,
		"decide", "--scenario", scenario, "-o", obs, "-o", obs, "-o", obs, "--no-critic")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, "the third observation is skipped after done")
	var first, second schemas.AgentAction
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, schemas.ActionClick, first.Type)
	assert.Equal(t, "New widget", first.Target.Name)
	assert.Equal(t, schemas.ActionDone, second.Type)

	assert.Equal(t, 1, mem.opened)
	llm.AssertExpectations(t)
}

func TestDecideCmd_FinalizeWritesMemory(t *testing.T) {
	resetForTest(t)
	scenario := writeFile(t, "scenario.yaml", scenarioYAML)
	obs := writeFile(t, "obs.json", observationJSON)
	fs := afero.NewMemMapFs()

	llm := new(mocks.MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"type":"click","reasoning":"open form","target":{"role":"button","name":"New widget"}}`, nil).Once()
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"type":"done","reasoning":"finished"}`, nil).Once()
	llm.On("Close").Return(nil)

	_, err := executeCommand(t, fakeLLMProvider{client: llm}, &memFsProvider{fs: fs},
		"decide", "-s", scenario, "-o", obs, "-o", obs, "--no-critic", "--finalize", "success")
	require.NoError(t, err)

	out, err := executeCommand(t, fakeLLMProvider{}, &memFsProvider{fs: fs}, "memory", "show", "--scenario", "create-widget")
	require.NoError(t, err)
	assert.Contains(t, out, `1. click "New widget"`)
}

func TestDecideCmd_WithoutFinalizeLeavesMemoryUntouched(t *testing.T) {
	resetForTest(t)
	scenario := writeFile(t, "scenario.yaml", scenarioYAML)
	obs := writeFile(t, "obs.json", observationJSON)
	fs := afero.NewMemMapFs()

	llm := new(mocks.MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"type":"click","reasoning":"open form","target":{"role":"button","name":"New widget"}}`, nil).Once()
	llm.On("Close").Return(nil)

	_, err := executeCommand(t, fakeLLMProvider{client: llm}, &memFsProvider{fs: fs}, "decide", "-s", scenario, "-o", obs, "--no-critic")
	require.NoError(t, err)

	exists, err := afero.Exists(fs, "/memory/action-cache.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDecideCmd_NoMemorySkipsProvider(t *testing.T) {
	resetForTest(t)
	scenario := writeFile(t, "scenario.yaml", scenarioYAML)
	obs := writeFile(t, "obs.json", observationJSON)

	llm := new(mocks.MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return(`{"type":"done"}`, nil)
	llm.On("Close").Return(nil)
	mem := &memFsProvider{fs: afero.NewMemMapFs()}

	_, err := executeCommand(t, fakeLLMProvider{client: llm}, mem, "decide", "-s", scenario, "-o", obs, "--no-memory")
	require.NoError(t, err)
	assert.Zero(t, mem.opened)
}

func TestDecideCmd_Errors(t *testing.T) {
	obs := observationJSON
	tests := []struct {
		name     string
		scenario string
		obs      string
		provider fakeLLMProvider
		wantErr  string
	}{
		{"scenario without goal", "id: x\n", obs, fakeLLMProvider{}, "must set id and goal"},
		{"malformed scenario", "id: [unclosed", obs, fakeLLMProvider{}, "failed to parse scenario"},
		{"llm creation fails", scenarioYAML, obs, fakeLLMProvider{err: errors.New("no api key")}, "no api key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetForTest(t)
			scenario := writeFile(t, "scenario.yaml", tt.scenario)
			obsPath := writeFile(t, "obs.json", tt.obs)
			_, err := executeCommand(t, tt.provider, &memFsProvider{fs: afero.NewMemMapFs()}, "decide", "-s", scenario, "-o", obsPath)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDecideCmd_InvalidFinalize(t *testing.T) {
	resetForTest(t)
	scenario := writeFile(t, "scenario.yaml", scenarioYAML)
	obs := writeFile(t, "obs.json", observationJSON)

	_, err := executeCommand(t, fakeLLMProvider{}, &memFsProvider{fs: afero.NewMemMapFs()},
		"decide", "-s", scenario, "-o", obs, "--finalize", "maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid --finalize value "maybe"`)
}

func TestDecideCmd_RequiredFlags(t *testing.T) {
	resetForTest(t)
	_, err := executeCommand(t, fakeLLMProvider{}, &memFsProvider{fs: afero.NewMemMapFs()}, "decide")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "observation", "scenario" not set`)
}

func TestMemoryShowCmd(t *testing.T) {
	resetForTest(t)
	fs := afero.NewMemMapFs()
	ctx := context.Background()

	seed := memory.Open(ctx, memory.NewFileBackend(fs, "/memory"), memory.Options{}, zap.NewNop())
	require.NoError(t, seed.Finalize(ctx, memory.Outcome{
		ScenarioID: "create-widget",
		Success:    true,
		Steps:      2,
		Recorded:   []schemas.CachedAction{{Type: schemas.ActionClick, Target: &schemas.Target{Name: "New widget"}}},
	}))
	require.NoError(t, seed.Finalize(ctx, memory.Outcome{
		ScenarioID:    "create-widget",
		Steps:         6,
		FailedTargets: []string{"Save"},
	}))

	out, err := executeCommand(t, fakeLLMProvider{}, &memFsProvider{fs: fs}, "memory", "show", "--scenario", "create-widget")
	require.NoError(t, err)
	assert.Contains(t, out, `1. click "New widget"`)
	assert.Contains(t, out, `- Interactions that failed: "Save".`)

	out, err = executeCommand(t, fakeLLMProvider{}, &memFsProvider{fs: fs}, "memory", "show", "--scenario", "other")
	require.NoError(t, err)
	assert.Equal(t, "Scenario: other\n\nCached hint:\n(none)\n\nLessons:\n(none)\n", out)
}

func TestDefaultMemoryProvider(t *testing.T) {
	resetForTest(t)

	cfg := new(mocks.MockConfig)
	cfg.On("Memory").Return(config.MemoryConfig{Backend: config.MemoryBackendFile, Dir: t.TempDir()}).Once()
	store, cleanup, err := defaultMemoryProvider{}.Open(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()
	assert.Empty(t, store.Sequences())

	cfg = new(mocks.MockConfig)
	cfg.On("Memory").Return(config.MemoryConfig{Backend: "tape"}).Once()
	_, _, err = defaultMemoryProvider{}.Open(context.Background(), cfg)
	assert.ErrorContains(t, err, `unknown memory backend "tape"`)
}
