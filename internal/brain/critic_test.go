package brain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/mocks"
)

func tierIs(tier schemas.ModelTier) interface{} {
	return mock.MatchedBy(func(req schemas.GenerationRequest) bool { return req.Tier == tier })
}

func criticInput() CriticInput {
	l := newTestLedger(widgetScenario())
	l.AddStuck(3)
	return CriticInput{
		Goal:    "Create a widget named X",
		Ledger:  l.Snapshot(),
		URL:     "/items",
		Heading: "Items",
		RecentLog: []schemas.ActionLogEntry{
			{Action: schemas.AgentAction{Type: schemas.ActionClick, Target: &schemas.Target{Name: "A"}}, Result: schemas.ResultSuccess},
			{Action: schemas.AgentAction{Type: schemas.ActionClick, Target: &schemas.Target{Name: "B"}}, Result: schemas.ResultSuccess},
			{Action: schemas.AgentAction{Type: schemas.ActionClick, Target: &schemas.Target{Name: "C"}}, Result: schemas.ResultSuccess},
			{Action: schemas.AgentAction{Type: schemas.ActionClick, Target: &schemas.Target{Name: "D"}}, Result: schemas.ResultSuccess},
			{Action: schemas.AgentAction{Type: schemas.ActionClick, Target: &schemas.Target{Name: "E"}}, Result: schemas.ResultFailed, Error: "covered by overlay"},
			{Action: schemas.AgentAction{Type: schemas.ActionClick, Target: &schemas.Target{Name: "F"}}, Result: schemas.ResultSuccess},
		},
		Confusion: []string{"same screen 3 times, try something different"},
	}
}

func TestCritic_Due(t *testing.T) {
	c := NewCritic(new(mocks.MockLLMClient), CriticOptions{Enabled: true, Interval: 10, StartAfter: 3}, zaptest.NewLogger(t))
	for step, want := range map[int]bool{1: false, 3: false, 9: false, 10: true, 15: false, 20: true} {
		assert.Equal(t, want, c.Due(step), "step %d", step)
	}

	disabled := NewCritic(new(mocks.MockLLMClient), CriticOptions{Enabled: false, Interval: 10}, zaptest.NewLogger(t))
	assert.False(t, disabled.Due(10))
}

func TestCritic_ReviewPromptAndVerdict(t *testing.T) {
	llm := new(mocks.MockLLMClient)
	var captured schemas.GenerationRequest
	llm.On("Generate", mock.Anything, tierIs(schemas.TierFast)).
		Run(func(args mock.Arguments) { captured = args.Get(1).(schemas.GenerationRequest) }).
		Return("```json\n{\"verdict\": \"Stuck\", \"advice\": \"Open the sidebar menu.\"}\n```", nil).Once()

	c := NewCritic(llm, CriticOptions{Enabled: true, Timeout: time.Second}, zaptest.NewLogger(t))
	review, ok := c.Review(context.Background(), criticInput())
	require.True(t, ok)
	assert.Equal(t, VerdictStuck, review.Verdict)
	assert.True(t, review.Penalises())
	assert.Equal(t, "verdict stuck. Open the sidebar menu.", review.Line())

	prompt := captured.UserPrompt
	assert.Contains(t, prompt, "Goal: Create a widget named X")
	assert.Contains(t, prompt, "Outcomes met: 0 of 1")
	assert.Contains(t, prompt, "Stuck score: 3")
	assert.Contains(t, prompt, "Current page: /items (Items)")
	assert.NotContains(t, prompt, `"A"`, "only the last five actions are shown")
	assert.Contains(t, prompt, `click "E": failed (covered by overlay)`)
	assert.Contains(t, prompt, "same screen 3 times")
	llm.AssertExpectations(t)
}

func TestCritic_FailuresYieldNoSignal(t *testing.T) {
	tests := []struct {
		name  string
		setup func(llm *mocks.MockLLMClient)
	}{
		{"call error", func(llm *mocks.MockLLMClient) {
			llm.On("Generate", mock.Anything, mock.Anything).Return("", errors.New("rate limited"))
		}},
		{"unparsable", func(llm *mocks.MockLLMClient) {
			llm.On("Generate", mock.Anything, mock.Anything).Return("Looks fine to me.", nil)
		}},
		{"unknown verdict", func(llm *mocks.MockLLMClient) {
			llm.On("Generate", mock.Anything, mock.Anything).Return(`{"verdict":"confused","advice":"?"}`, nil)
		}},
		{"panic", func(llm *mocks.MockLLMClient) {
			llm.On("Generate", mock.Anything, mock.Anything).Run(func(mock.Arguments) { panic("adapter exploded") })
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := new(mocks.MockLLMClient)
			tt.setup(llm)
			c := NewCritic(llm, CriticOptions{Enabled: true}, zaptest.NewLogger(t))
			_, ok := c.Review(context.Background(), criticInput())
			assert.False(t, ok)
			llm.AssertNumberOfCalls(t, "Generate", 1)
		})
	}
}

func TestCritic_ProgressVerdictDoesNotPenalise(t *testing.T) {
	llm := new(mocks.MockLLMClient)
	llm.On("Generate", mock.Anything, mock.Anything).Return(`{"verdict":"progress"}`, nil)
	c := NewCritic(llm, CriticOptions{Enabled: true}, zaptest.NewLogger(t))

	review, ok := c.Review(context.Background(), criticInput())
	require.True(t, ok)
	assert.False(t, review.Penalises())
	assert.Equal(t, "verdict progress.", review.Line())
}
