package schemas

import (
	"fmt"
	"strings"
)

// ActionType enumerates every interaction the brain can ask the driver to perform.
type ActionType string

const (
	ActionClick      ActionType = "click"      // Clicks an element resolved from Target.
	ActionTypeText   ActionType = "type"       // Types Value into the element resolved from Target.
	ActionNavigate   ActionType = "navigate"   // Loads URL.
	ActionScroll     ActionType = "scroll"     // Scrolls the page; Value is "up" or "down".
	ActionSelect     ActionType = "select"     // Picks Value from a select-like element.
	ActionWait       ActionType = "wait"       // Pauses for Ms milliseconds.
	ActionKey        ActionType = "key"        // Presses Key (e.g. "Enter", "Escape").
	ActionHover      ActionType = "hover"      // Moves the pointer over Target.
	ActionScreenshot ActionType = "screenshot" // Requests a fresh screenshot.
	ActionDone       ActionType = "done"       // Terminal: the agent believes the run is over.
)

// AllActionTypes lists the closed set of action variants in prompt order.
var AllActionTypes = []ActionType{
	ActionClick, ActionTypeText, ActionNavigate, ActionScroll, ActionSelect,
	ActionWait, ActionKey, ActionHover, ActionScreenshot, ActionDone,
}

// Valid reports whether t is one of the known action variants.
func (t ActionType) Valid() bool {
	switch t {
	case ActionClick, ActionTypeText, ActionNavigate, ActionScroll, ActionSelect,
		ActionWait, ActionKey, ActionHover, ActionScreenshot, ActionDone:
		return true
	default:
		return false
	}
}

// Target is a selector descriptor. Exactly one strategy is expected to be set,
// with Nth as an optional disambiguator when several elements match.
type Target struct {
	Role        string `json:"role,omitempty"`
	Name        string `json:"name,omitempty"`
	Label       string `json:"label,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Text        string `json:"text,omitempty"`
	X           *int   `json:"x,omitempty"`
	Y           *int   `json:"y,omitempty"`
	Nth         *int   `json:"nth,omitempty"`
}

// DisplayName returns the most human-meaningful identifier for the target,
// used in logs, commit-verb matching, cache hints and lessons.
func (t *Target) DisplayName() string {
	if t == nil {
		return ""
	}
	switch {
	case t.Name != "":
		return t.Name
	case t.Label != "":
		return t.Label
	case t.Placeholder != "":
		return t.Placeholder
	case t.Text != "":
		return t.Text
	case t.X != nil && t.Y != nil:
		return fmt.Sprintf("(%d,%d)", *t.X, *t.Y)
	}
	return ""
}

// AgentAction is the decision produced for one step. Type discriminates the
// variant; Normalize strips the fields that do not belong to it.
type AgentAction struct {
	// Progress and Blocker are self-reports from the model. They feed the goal
	// ledger and are never forwarded to the driver.
	Progress string `json:"progress,omitempty"`
	Blocker  string `json:"blocker,omitempty"`

	Type      ActionType `json:"type"`
	Reasoning string     `json:"reasoning"`

	Target *Target `json:"target,omitempty"`
	Value  string  `json:"value,omitempty"`
	Key    string  `json:"key,omitempty"`
	URL    string  `json:"url,omitempty"`
	Ms     int     `json:"ms,omitempty"`
}

// IsTerminal reports whether the action ends the run.
func (a AgentAction) IsTerminal() bool { return a.Type == ActionDone }

// Normalize returns a copy carrying only the payload fields relevant to the variant.
func (a AgentAction) Normalize() AgentAction {
	out := AgentAction{
		Progress:  a.Progress,
		Blocker:   a.Blocker,
		Type:      a.Type,
		Reasoning: a.Reasoning,
	}
	switch a.Type {
	case ActionClick, ActionHover:
		out.Target = a.Target
	case ActionTypeText, ActionSelect:
		out.Target = a.Target
		out.Value = a.Value
	case ActionNavigate:
		out.URL = a.URL
	case ActionScroll:
		out.Target = a.Target
		out.Value = a.Value
	case ActionWait:
		out.Ms = a.Ms
	case ActionKey:
		out.Key = a.Key
		out.Target = a.Target
	case ActionScreenshot, ActionDone:
	}
	return out
}

// Summary renders a compact one-line description for logs and critic prompts.
func (a AgentAction) Summary() string {
	var b strings.Builder
	b.WriteString(string(a.Type))
	if name := a.Target.DisplayName(); name != "" {
		fmt.Fprintf(&b, " %q", name)
	}
	switch {
	case a.URL != "":
		fmt.Fprintf(&b, " -> %s", a.URL)
	case a.Key != "":
		fmt.Fprintf(&b, " [%s]", a.Key)
	case a.Value != "":
		fmt.Fprintf(&b, " = %q", a.Value)
	}
	return b.String()
}

// NewDoneAction builds the terminal action used for exhaustion and auto-bail.
func NewDoneAction(reasoning string) AgentAction {
	return AgentAction{Type: ActionDone, Reasoning: reasoning}
}
