// Package brain is the decision engine of the UI-testing agent. A Brain is
// created per scenario run and is driven one step at a time: the caller hands
// it a page observation, executes the returned action and reports the result
// back before asking for the next one.
package brain

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/config"
	"github.com/xkilldash9x/uiprobe/internal/failure"
	"github.com/xkilldash9x/uiprobe/internal/memory"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// uuidNewString is a package-level variable for mocking in tests.
var uuidNewString = uuid.NewString

// Memory is the cross-run store the brain reads hints from and reports to.
type Memory interface {
	GetCachedHint(scenarioID string) string
	Lessons(scenarioID string) []string
	Finalize(ctx context.Context, outcome memory.Outcome) error
}

// Option configures a Brain.
type Option func(*Brain)

// WithFs sets the filesystem screenshots are written to.
func WithFs(fs afero.Fs) Option {
	return func(b *Brain) { b.fs = fs }
}

// WithSeed fixes the element shuffling sequence.
func WithSeed(seed int64) Option {
	return func(b *Brain) { b.seed = seed }
}

// WithClock replaces time.Now, for log timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Brain) { b.now = now }
}

// Brain is the per-scenario session. Steps must not overlap; the reporting
// accessors may be called from other goroutines at any time.
type Brain struct {
	id     string
	logger *zap.Logger
	cfg    config.AgentConfig
	mem    Memory
	fs     afero.Fs
	seed   int64
	now    func() time.Time

	decider  *Decider
	critic   *Critic
	ledger   *Ledger
	tracker  *Tracker
	composer *Composer

	mu           sync.Mutex
	scenario     schemas.TestScenario
	systemPrompt string
	step         int
	actionLog    []schemas.ActionLogEntry
	recorded     []schemas.CachedAction
	blockers     []string
}

// New builds a brain. mem may be nil, in which case nothing is remembered
// across runs.
func New(llm schemas.LLMClient, mem Memory, cfg config.AgentConfig, logger *zap.Logger, opts ...Option) *Brain {
	b := &Brain{
		id:   uuidNewString(),
		cfg:  cfg,
		mem:  mem,
		fs:   afero.NewOsFs(),
		seed: time.Now().UnixNano(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logger.Named("brain").With(zap.String("session_id", b.id))

	b.decider = NewDecider(llm, DecisionOptions{
		MaxAttempts: cfg.Decision.MaxAttempts,
		Timeout:     cfg.Decision.Timeout,
	}, b.logger)
	b.critic = NewCritic(llm, CriticOptions{
		Enabled:    cfg.Critic.Enabled,
		Interval:   cfg.Critic.Interval,
		StartAfter: cfg.Critic.StartAfter,
		Timeout:    cfg.Critic.Timeout,
	}, b.logger)
	b.ledger = NewLedger(LedgerOptions{
		MinWordLength:  cfg.Ledger.MinWordLength,
		MinSharedWords: cfg.Ledger.MinSharedWords,
	})
	b.tracker = NewTracker(TrackerOptions{
		SameScreenLimit:   cfg.Ledger.SameScreenLimit,
		ElementDelta:      cfg.Ledger.ElementDelta,
		NoProgressSteps:   cfg.Ledger.NoProgressSteps,
		ReplanThreshold:   cfg.Ledger.ReplanThreshold,
		AutoBailThreshold: cfg.Ledger.AutoBailThreshold,
	}, b.seed)
	b.composer = NewComposer(PromptOptions{
		HistoryLimit: cfg.Prompt.HistoryLimit,
		MaxElements:  cfg.Prompt.MaxElements,
	})
	return b
}

// SessionID identifies this brain in logs.
func (b *Brain) SessionID() string { return b.id }

// InitScenario resets all run state and renders the system prompt, pulling
// lessons and the cached hint for the scenario from memory.
func (b *Brain) InitScenario(scenario schemas.TestScenario) {
	var lessons []string
	var hint string
	if b.mem != nil {
		lessons = b.mem.Lessons(scenario.ID)
		hint = b.mem.GetCachedHint(scenario.ID)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.scenario = scenario
	b.step = 0
	b.actionLog = nil
	b.recorded = nil
	b.blockers = nil
	b.ledger.Init(scenario)
	b.tracker.Reset()
	b.composer.Reset()
	b.systemPrompt = b.composer.SystemPrompt(scenario, lessons, hint)

	b.logger.Info("Scenario initialised.",
		zap.String("scenario_id", scenario.ID),
		zap.Int("criteria", len(scenario.SuccessCriteria)),
		zap.Int("lessons", len(lessons)),
		zap.Bool("cached_hint", hint != ""))
}

// DecideAction runs one step and always returns a well-formed action.
func (b *Brain) DecideAction(ctx context.Context, obs schemas.PageObservation) schemas.AgentAction {
	b.mu.Lock()
	b.step++
	step := b.step
	perception := b.tracker.Observe(step, obs, b.ledger)
	criticDue := b.critic.Due(step)
	var criticIn CriticInput
	if criticDue {
		criticIn = CriticInput{
			Goal:      b.scenario.Goal,
			Ledger:    b.ledger.Snapshot(),
			URL:       obs.URL,
			Heading:   obs.Heading,
			RecentLog: append([]schemas.ActionLogEntry{}, b.actionLog...),
			Confusion: b.tracker.RecentSignals(criticPerceptions),
		}
	}
	b.mu.Unlock()

	for _, s := range perception.Signals {
		b.logger.Debug("Perception signal.", zap.Int("step", step), zap.String("signal", s))
	}

	if criticDue {
		if review, ok := b.critic.Review(ctx, criticIn); ok {
			b.mu.Lock()
			if review.Penalises() {
				b.ledger.AddStuck(1)
			}
			b.composer.Append(schemas.RoleCritic, review.Line())
			b.mu.Unlock()
			b.logger.Info("Critic verdict.", zap.Int("step", step), zap.String("verdict", string(review.Verdict)))
		}
	}

	screenshot := b.writeScreenshot(step, obs.Screenshot)

	b.mu.Lock()
	elements := obs.InteractiveElements
	if perception.Shuffle {
		elements = b.tracker.Shuffle(elements)
	}
	stepText := b.composer.StepPrompt(StepView{
		Step:           step,
		MaxActions:     b.scenario.MaxActions,
		Observation:    obs,
		Elements:       elements,
		Signals:        perception.Signals,
		Replan:         b.tracker.ReplanBlock(b.ledger, b.actionLog),
		ScreenshotPath: screenshot,
		Ledger:         b.ledger.Snapshot(),
	})
	b.composer.Append(schemas.RoleUser, stepText)
	req := schemas.GenerationRequest{
		SystemPrompt: b.systemPrompt,
		UserPrompt:   b.composer.Conversation(),
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true, Temperature: 0.2},
	}
	scoreBeforeCall := b.ledger.StuckScore()
	b.mu.Unlock()

	action := b.decider.Decide(ctx, req)

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.afterDecision(step, action, scoreBeforeCall)
}

// afterDecision feeds the self-reports into the ledger, applies auto-bail and
// records the action. Callers hold b.mu.
func (b *Brain) afterDecision(step int, action schemas.AgentAction, scoreBeforeCall int) schemas.AgentAction {
	if n := b.ledger.ExtractProgress(action.Progress); n > 0 {
		b.logger.Info("Outcome progress recorded.", zap.Int("step", step), zap.Int("newly_completed", n))
	}
	if b.ledger.NoteBlocker(action.Blocker) {
		b.blockers = append(b.blockers, "blocker: "+action.Blocker)
	}

	if !action.IsTerminal() && (b.tracker.ShouldBail(scoreBeforeCall) || b.tracker.ShouldBail(b.ledger.StuckScore())) {
		proposed := action.Summary()
		action = b.tracker.BailAction(b.ledger)
		b.logger.Warn("Auto-bail forced a terminal action.",
			zap.Int("step", step),
			zap.Int("stuck_score", b.ledger.StuckScore()),
			zap.String("proposed", proposed))
	} else if !action.IsTerminal() {
		b.ledger.OnActionTaken(action)
		cached := schemas.CachedAction{Type: action.Type, Target: action.Target, Value: action.Value}
		if action.Type == schemas.ActionNavigate {
			cached.Value = action.URL
		}
		b.recorded = append(b.recorded, cached)
	}

	if line, err := json.Marshal(action); err == nil {
		b.composer.Append(schemas.RoleAssistant, string(line))
	} else {
		b.composer.Append(schemas.RoleAssistant, action.Summary())
	}

	b.logger.Debug("Action decided.", zap.Int("step", step), zap.String("action", action.Summary()))
	return action
}

// RecordResult logs the outcome of executing action and updates the ledger.
func (b *Brain) RecordResult(action schemas.AgentAction, result schemas.ActionResult, duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := schemas.ActionLogEntry{
		ActionID:  uuidNewString(),
		Step:      b.step,
		Timestamp: b.now().UTC(),
		Action:    action,
		Result:    schemas.ResultSuccess,
		Duration:  duration,
	}
	if !result.Success {
		entry.Result = schemas.ResultFailed
		entry.Error = result.Error
	}
	b.actionLog = append(b.actionLog, entry)
	b.ledger.OnResultRecorded(result.Success)

	if result.Success {
		b.composer.Append(schemas.RoleUser, fmt.Sprintf("Result: %s succeeded.", action.Summary()))
	} else {
		b.composer.Append(schemas.RoleUser, fmt.Sprintf("Result: %s FAILED: %s", action.Summary(), result.Error))
	}
}

// Finalize reports the run to memory: the recorded actions on success, or the
// failed targets and confusion signals on failure.
func (b *Brain) Finalize(ctx context.Context, success bool) error {
	b.mu.Lock()
	outcome := memory.Outcome{
		ScenarioID: b.scenario.ID,
		Success:    success,
		Steps:      b.step,
		Recorded:   append([]schemas.CachedAction{}, b.recorded...),
	}
	for _, e := range b.actionLog {
		if e.Failed() {
			if name := e.Action.Target.DisplayName(); name != "" {
				outcome.FailedTargets = append(outcome.FailedTargets, name)
			}
		}
	}
	for _, p := range b.tracker.Log() {
		outcome.ConfusionSignals = append(outcome.ConfusionSignals, p.ConfusionSignals...)
	}
	outcome.ConfusionSignals = append(outcome.ConfusionSignals, b.blockers...)
	b.mu.Unlock()

	b.logger.Info("Finalizing scenario.",
		zap.String("scenario_id", outcome.ScenarioID),
		zap.Bool("success", success),
		zap.Int("steps", outcome.Steps))

	if b.mem == nil {
		return nil
	}
	return b.mem.Finalize(ctx, outcome)
}

// CategorizeFailure classifies errMsg against this run's action log.
func (b *Brain) CategorizeFailure(errMsg string) failure.Category {
	return failure.Categorize(errMsg, b.ActionLog())
}

// ActionLog returns a copy of the audit trail.
func (b *Brain) ActionLog() []schemas.ActionLogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]schemas.ActionLogEntry{}, b.actionLog...)
}

// PerceptionLog returns a copy of the perception history.
func (b *Brain) PerceptionLog() []schemas.PerceptionEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tracker.Log()
}

// Ledger returns a snapshot of the goal ledger.
func (b *Brain) Ledger() schemas.GoalLedgerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ledger.Snapshot()
}

// Transcript returns the role-tagged rolling history.
func (b *Brain) Transcript() []schemas.TranscriptEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.composer.Transcript()
}

// Step returns the number of observations processed so far.
func (b *Brain) Step() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.step
}

// writeScreenshot stores img when vision is enabled and returns its path, or
// "" when nothing was written.
func (b *Brain) writeScreenshot(step int, img []byte) string {
	if !b.cfg.Prompt.Vision || len(img) == 0 {
		return ""
	}
	dir := b.cfg.Prompt.ScreenshotDir
	if err := b.fs.MkdirAll(dir, 0o755); err != nil {
		b.logger.Warn("Failed to create screenshot directory.", zap.String("dir", dir), zap.Error(err))
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("step-%04d.png", step))
	if err := afero.WriteFile(b.fs, path, img, 0o644); err != nil {
		b.logger.Warn("Failed to write screenshot.", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}
