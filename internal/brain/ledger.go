package brain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xkilldash9x/uiprobe/api/schemas"
)

// commitVerbs mark clicks that usually move a flow forward.
var commitVerbs = []string{
	"save", "submit", "add", "create", "generate", "run",
	"confirm", "ok", "test", "next", "continue", "send",
}

const (
	minProgressTextLen = 10
	minBlockerTextLen  = 3
)

// LedgerOptions tunes the keyword-overlap outcome matcher.
type LedgerOptions struct {
	// MinWordLength is the shortest outcome word that counts as a keyword.
	MinWordLength int
	// MinSharedWords is how many keywords a progress report must mention.
	MinSharedWords int
}

// Ledger tracks which success criteria are met and how stuck the run is.
// It never fails; counters are clamped at zero.
type Ledger struct {
	opts LedgerOptions

	goal               string
	required           []string
	completed          []bool
	stuckScore         int
	stepsSinceProgress int
}

// NewLedger returns an empty ledger. Call Init before use.
func NewLedger(opts LedgerOptions) *Ledger {
	if opts.MinWordLength <= 0 {
		opts.MinWordLength = 5
	}
	if opts.MinSharedWords <= 0 {
		opts.MinSharedWords = 2
	}
	return &Ledger{opts: opts}
}

// Init resets all counters and loads the outcomes from the scenario's criteria.
func (l *Ledger) Init(scenario schemas.TestScenario) {
	l.goal = scenario.Goal
	l.required = make([]string, 0, len(scenario.SuccessCriteria))
	for _, c := range scenario.SuccessCriteria {
		l.required = append(l.required, c.Description)
	}
	l.completed = make([]bool, len(l.required))
	l.stuckScore = 0
	l.stepsSinceProgress = 0
}

// OnActionTaken counts a step and resets the progress clock for actions that
// usually change the page: navigation, typing and commit-verb clicks.
// Navigation and typing also relieve one point of stuck score.
func (l *Ledger) OnActionTaken(action schemas.AgentAction) {
	if action.IsTerminal() {
		return
	}
	l.stepsSinceProgress++

	switch action.Type {
	case schemas.ActionNavigate, schemas.ActionTypeText:
		l.stepsSinceProgress = 0
		l.AddStuck(-1)
	case schemas.ActionClick:
		if hasCommitVerb(action.Target.DisplayName()) {
			l.stepsSinceProgress = 0
		}
	}
}

// OnResultRecorded penalises failed executions. Success is not progress by itself.
func (l *Ledger) OnResultRecorded(success bool) {
	if success {
		return
	}
	l.stepsSinceProgress++
	l.AddStuck(1)
}

// ExtractProgress marks every open outcome that shares enough keywords with
// the model's progress report, relieving two points of stuck score for each.
// It returns the number of outcomes newly completed.
func (l *Ledger) ExtractProgress(progress string) int {
	text := strings.ToLower(strings.TrimSpace(progress))
	if utf8.RuneCountInString(text) <= minProgressTextLen || text == "none" {
		return 0
	}

	newly := 0
	for i, outcome := range l.required {
		if l.completed[i] {
			continue
		}
		shared := 0
		for _, word := range l.keywords(outcome) {
			if strings.Contains(text, word) {
				shared++
			}
		}
		if shared >= l.opts.MinSharedWords {
			l.completed[i] = true
			l.AddStuck(-2)
			newly++
		}
	}
	return newly
}

// NoteBlocker adds one point of stuck score for a meaningful blocker report
// and reports whether it counted.
func (l *Ledger) NoteBlocker(blocker string) bool {
	text := strings.TrimSpace(blocker)
	if utf8.RuneCountInString(text) <= minBlockerTextLen || strings.EqualFold(text, "none") {
		return false
	}
	l.AddStuck(1)
	return true
}

// AddStuck adjusts the stuck score by delta, flooring at zero.
func (l *Ledger) AddStuck(delta int) {
	l.stuckScore += delta
	if l.stuckScore < 0 {
		l.stuckScore = 0
	}
}

func (l *Ledger) StuckScore() int         { return l.stuckScore }
func (l *Ledger) StepsSinceProgress() int { return l.stepsSinceProgress }

// Remaining returns the outcome descriptions not yet completed, in order.
func (l *Ledger) Remaining() []string {
	var out []string
	for i, outcome := range l.required {
		if !l.completed[i] {
			out = append(out, outcome)
		}
	}
	return out
}

// Snapshot returns a copy safe to hand to callers.
func (l *Ledger) Snapshot() schemas.GoalLedgerSnapshot {
	snap := schemas.GoalLedgerSnapshot{
		Goal:               l.goal,
		RequiredOutcomes:   append([]string{}, l.required...),
		CompletedOutcomes:  []string{},
		StuckScore:         l.stuckScore,
		StepsSinceProgress: l.stepsSinceProgress,
	}
	for i, outcome := range l.required {
		if l.completed[i] {
			snap.CompletedOutcomes = append(snap.CompletedOutcomes, outcome)
		}
	}
	return snap
}

// keywords returns the distinct lower-cased words of s at least MinWordLength long.
func (l *Ledger) keywords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if utf8.RuneCountInString(f) < l.opts.MinWordLength || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func hasCommitVerb(name string) bool {
	name = strings.ToLower(name)
	if name == "" {
		return false
	}
	for _, verb := range commitVerbs {
		if strings.Contains(name, verb) {
			return true
		}
	}
	return false
}
