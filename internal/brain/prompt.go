package brain

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/uiprobe/api/schemas"
)

const trailingInstruction = "Respond with exactly one JSON object for your next action and nothing else."

var rolePrefix = map[schemas.TranscriptRole]string{
	schemas.RoleUser:      "User",
	schemas.RoleAssistant: "Assistant",
	schemas.RoleCritic:    "Critic",
}

// PromptOptions bounds the rendered prompts.
type PromptOptions struct {
	HistoryLimit int
	MaxElements  int
}

// StepView is everything the per-step observation text is rendered from.
type StepView struct {
	Step           int
	MaxActions     int
	Observation    schemas.PageObservation
	Elements       []schemas.InteractiveElement
	Signals        []string
	Replan         string
	ScreenshotPath string
	Ledger         schemas.GoalLedgerSnapshot
}

type historyLine struct {
	role    schemas.TranscriptRole
	content string
}

// Composer renders prompts and owns the rolling history. Its only side effect
// is appending to that history, which drops the oldest line once full.
type Composer struct {
	opts    PromptOptions
	history []historyLine
}

// NewComposer returns a composer with an empty history.
func NewComposer(opts PromptOptions) *Composer {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.MaxElements <= 0 {
		opts.MaxElements = 25
	}
	return &Composer{opts: opts}
}

// Reset clears the history.
func (c *Composer) Reset() { c.history = nil }

// Append adds a history line, evicting the oldest when over the limit.
func (c *Composer) Append(role schemas.TranscriptRole, content string) {
	c.history = append(c.history, historyLine{role: role, content: content})
	if over := len(c.history) - c.opts.HistoryLimit; over > 0 {
		c.history = append(c.history[:0:0], c.history[over:]...)
	}
}

// Transcript returns the role-tagged history for external display.
func (c *Composer) Transcript() []schemas.TranscriptEntry {
	out := make([]schemas.TranscriptEntry, len(c.history))
	for i, h := range c.history {
		out[i] = schemas.TranscriptEntry{Role: h.role, Content: h.content}
	}
	return out
}

// Conversation renders the rolling history followed by the answer instruction.
func (c *Composer) Conversation() string {
	var b strings.Builder
	for _, h := range c.history {
		fmt.Fprintf(&b, "%s: %s\n\n", rolePrefix[h.role], h.content)
	}
	b.WriteString(trailingInstruction)
	return b.String()
}

// SystemPrompt renders the fixed instructions for a scenario.
func (c *Composer) SystemPrompt(scenario schemas.TestScenario, lessons []string, cachedHint string) string {
	var b strings.Builder

	b.WriteString("You are an autonomous QA agent testing a web application through its user interface.\n")
	b.WriteString("You see one page snapshot per step and choose exactly one action at a time.\n\n")

	b.WriteString("## Persona\n")
	b.WriteString(PersonaStance(scenario.Persona))
	b.WriteString("\n\n")

	b.WriteString("## Goal\n")
	b.WriteString(scenario.Goal)
	b.WriteString("\n")
	if scenario.ExpectedOutcome != "" {
		fmt.Fprintf(&b, "Expected outcome: %s\n", scenario.ExpectedOutcome)
	}

	if len(scenario.Hints) > 0 {
		b.WriteString("\n## Hints\n")
		for i, h := range scenario.Hints {
			fmt.Fprintf(&b, "%d. %s\n", i+1, h)
		}
	}

	if len(lessons) > 0 {
		b.WriteString("\n## Lessons from previous attempts\n")
		for _, l := range lessons {
			fmt.Fprintf(&b, "- %s\n", l)
		}
	}

	if cachedHint != "" {
		b.WriteString("\n## A previously successful path (optional, the page may have changed)\n")
		b.WriteString(cachedHint)
		b.WriteString("\nYou are not required to follow it.\n")
	}

	b.WriteString("\n## Success criteria\n")
	for i, sc := range scenario.SuccessCriteria {
		fmt.Fprintf(&b, "%d. %s\n", i+1, sc.Description)
	}

	b.WriteString(responseSchemaSection)
	b.WriteString(selectorSection)
	b.WriteString(examplesSection)

	fmt.Fprintf(&b, "\n## Budget\nYou have at most %d actions. Use \"done\" as soon as every criterion is met or the goal is clearly impossible.\n",
		scenario.MaxActions)
	return b.String()
}

// StepPrompt renders the per-step observation text.
func (c *Composer) StepPrompt(v StepView) string {
	var b strings.Builder
	obs := v.Observation

	fmt.Fprintf(&b, "Step %d of %d\n", v.Step, v.MaxActions)
	fmt.Fprintf(&b, "URL: %s\n", obs.URL)
	if obs.Heading != "" {
		fmt.Fprintf(&b, "Heading: %s\n", obs.Heading)
	}

	if len(v.Signals) > 0 {
		b.WriteString("\n!! WARNING SIGNALS\n")
		for _, s := range v.Signals {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	if v.Replan != "" {
		b.WriteString("\n!! ")
		b.WriteString(v.Replan)
		b.WriteString("\n")
	}

	if v.ScreenshotPath != "" {
		fmt.Fprintf(&b, "\nScreenshot: %s\n", v.ScreenshotPath)
	}

	fmt.Fprintf(&b, "\nInteractive elements (%d):\n", len(v.Elements))
	for i, e := range v.Elements {
		if i == c.opts.MaxElements {
			fmt.Fprintf(&b, "...and %d more\n", len(v.Elements)-c.opts.MaxElements)
			break
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, renderElement(e))
	}

	writeList(&b, "Toasts", obs.Toasts)
	writeList(&b, "Page errors", obs.Errors)
	writeList(&b, "Console errors", obs.ConsoleErrors)

	remaining := len(v.Ledger.RequiredOutcomes) - len(v.Ledger.CompletedOutcomes)
	fmt.Fprintf(&b, "\nGoal progress: %d of %d outcomes met, %d remaining.\n",
		len(v.Ledger.CompletedOutcomes), len(v.Ledger.RequiredOutcomes), remaining)
	if remaining > 0 {
		b.WriteString("Still needed:\n")
		done := make(map[string]bool, len(v.Ledger.CompletedOutcomes))
		for _, o := range v.Ledger.CompletedOutcomes {
			done[o] = true
		}
		for _, o := range v.Ledger.RequiredOutcomes {
			if !done[o] {
				fmt.Fprintf(&b, "- %s\n", o)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderElement(e schemas.InteractiveElement) string {
	s := fmt.Sprintf("%s %q", e.Role, e.Name)
	if e.Disabled {
		s += " (disabled)"
	}
	if e.Value != "" {
		s += fmt.Sprintf(" value=%q", e.Value)
	}
	if e.X != nil && e.Y != nil {
		s += fmt.Sprintf(" at (%d,%d)", *e.X, *e.Y)
	}
	return s
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

const responseSchemaSection = `
## Response format
Answer with one JSON object:
{
  "progress": "what changed toward the goal since the last step, or \"none\"",
  "blocker": "what is stopping you right now, or \"none\"",
  "type": "click | type | navigate | scroll | select | wait | key | hover | screenshot | done",
  "reasoning": "one or two sentences on why this action",
  "target": { ... },        // click, type, select, hover, optional for scroll and key
  "value": "text",          // type and select; "up" or "down" for scroll
  "key": "Enter",           // key
  "url": "https://...",     // navigate
  "ms": 1000                // wait
}
Only include the optional fields the chosen type needs.
`

const selectorSection = `
## Targeting elements
Describe the target with exactly one of these, in order of preference:
1. {"role": "button", "name": "Save"}      accessible role and name from the element list
2. {"label": "Email"}                      the form field's label
3. {"placeholder": "Search..."}            the input's placeholder
4. {"text": "Forgot password?"}            visible text
5. add "nth": 1 to any of the above when several elements match (0-based)
6. {"x": 120, "y": 340}                    pixel coordinates, only as a last resort
Never invent CSS selectors, XPath, ids or test attributes. Use only what the element list shows.
`

const examplesSection = `
## Examples
{"progress": "none", "blocker": "none", "type": "click", "reasoning": "The New widget button starts the creation flow.", "target": {"role": "button", "name": "New widget"}}
{"progress": "The create form is open", "blocker": "none", "type": "type", "reasoning": "Fill in the name field.", "target": {"label": "Name"}, "value": "X"}
{"progress": "Widget X is listed on the widgets page", "blocker": "none", "type": "done", "reasoning": "All success criteria are met."}
`
