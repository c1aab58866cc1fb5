package schemas

import "time"

// -- Inputs supplied by the driver --

// InteractiveElement is one actionable element the driver found on the page.
type InteractiveElement struct {
	Role     string `json:"role" yaml:"role"`
	Name     string `json:"name" yaml:"name"`
	Disabled bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty"`
	X        *int   `json:"x,omitempty" yaml:"x,omitempty"`
	Y        *int   `json:"y,omitempty" yaml:"y,omitempty"`
}

// PageObservation is the per-step snapshot of the page under test.
type PageObservation struct {
	URL                 string               `json:"url"`
	Heading             string               `json:"heading,omitempty"`
	InteractiveElements []InteractiveElement `json:"interactiveElements"`
	Toasts              []string             `json:"toasts,omitempty"`
	Errors              []string             `json:"errors,omitempty"`
	ConsoleErrors       []string             `json:"consoleErrors,omitempty"`
	// Screenshot holds raw image bytes. They are written to disk and only the
	// resulting path ever reaches a prompt.
	Screenshot []byte `json:"screenshot,omitempty"`
}

// Persona selects the simulated user stance injected into the system prompt.
type Persona string

const (
	PersonaDefault       Persona = ""
	PersonaImpatient     Persona = "impatient"
	PersonaConfused      Persona = "confused"
	PersonaPowerUser     Persona = "power-user"
	PersonaAccessibility Persona = "accessibility"
	PersonaMobile        Persona = "mobile"
	PersonaSlowNetwork   Persona = "slow-network"
)

// SuccessCriterion is one required outcome of a scenario.
type SuccessCriterion struct {
	Description string `json:"description" yaml:"description"`
}

// TestScenario describes what the agent is trying to achieve.
type TestScenario struct {
	ID              string             `json:"id" yaml:"id"`
	Name            string             `json:"name" yaml:"name"`
	Goal            string             `json:"goal" yaml:"goal"`
	SuccessCriteria []SuccessCriterion `json:"successCriteria" yaml:"successCriteria"`
	MaxActions      int                `json:"maxActions" yaml:"maxActions"`
	Persona         Persona            `json:"persona,omitempty" yaml:"persona,omitempty"`
	Hints           []string           `json:"hints,omitempty" yaml:"hints,omitempty"`
	ExpectedOutcome string             `json:"expectedOutcome,omitempty" yaml:"expectedOutcome,omitempty"`
}

// -- Outputs and audit records --

// ActionResultStatus is the outcome of executing an action against the page.
type ActionResultStatus string

const (
	ResultSuccess ActionResultStatus = "success"
	ResultFailed  ActionResultStatus = "failed"
)

// ActionResult is what the driver reports back after executing an action.
type ActionResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ActionLogEntry is one row of the append-only audit trail.
type ActionLogEntry struct {
	ActionID  string             `json:"actionId"`
	Step      int                `json:"step"`
	Timestamp time.Time          `json:"timestamp"`
	Action    AgentAction        `json:"action"`
	Result    ActionResultStatus `json:"result"`
	Error     string             `json:"error,omitempty"`
	Duration  time.Duration      `json:"duration"`
}

// Failed reports whether the logged action failed.
func (e ActionLogEntry) Failed() bool { return e.Result == ResultFailed }

// PerceptionEntry summarises what was visible at one step. Entries are never
// mutated after they are appended.
type PerceptionEntry struct {
	Step             int      `json:"step"`
	URL              string   `json:"url"`
	ScreenSummary    string   `json:"screenSummary"`
	VisibleCTAs      []string `json:"visibleCTAs"`
	Confidence       float64  `json:"confidence"`
	ConfusionSignals []string `json:"confusionSignals"`
	ProgressMade     bool     `json:"progressMade"`
}

// GoalLedgerSnapshot is a read-only copy of the goal ledger.
type GoalLedgerSnapshot struct {
	Goal               string   `json:"goal"`
	RequiredOutcomes   []string `json:"requiredOutcomes"`
	CompletedOutcomes  []string `json:"completedOutcomes"`
	StuckScore         int      `json:"stuckScore"`
	StepsSinceProgress int      `json:"stepsSinceProgress"`
}

// TranscriptRole tags a line of the rolling prompt history.
type TranscriptRole string

const (
	RoleUser      TranscriptRole = "user"
	RoleAssistant TranscriptRole = "assistant"
	RoleCritic    TranscriptRole = "critic"
)

// TranscriptEntry is the simplified view of one history line for external UIs.
type TranscriptEntry struct {
	Role    TranscriptRole `json:"role"`
	Content string         `json:"content"`
}
