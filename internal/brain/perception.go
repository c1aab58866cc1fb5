package brain

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/llmutil"
)

const (
	maxVisibleCTAs      = 5
	maxConsoleErrors    = 3
	maxReplanFailures   = 3
	replanErrorRunes    = 120
	consoleErrorRunes   = 160
	sameScreenPenalty   = 2
	noProgressPenalty   = 1
	baseConfidence      = 0.9
	confidencePerSignal = 0.3
	minConfidence       = 0.2
)

// TrackerOptions holds the stagnation thresholds.
type TrackerOptions struct {
	SameScreenLimit   int
	ElementDelta      int
	NoProgressSteps   int
	ReplanThreshold   int
	AutoBailThreshold int
}

// Perception is what the tracker concluded about one observation.
type Perception struct {
	Entry   schemas.PerceptionEntry
	Signals []string
	// Shuffle asks the prompt to present the elements in a new order this step.
	Shuffle bool
}

type screenKey struct {
	url      string
	heading  string
	elements int
}

// Tracker compares consecutive observations and appends one perception entry
// per step.
type Tracker struct {
	opts TrackerOptions
	rng  *rand.Rand

	prev       *screenKey
	sameScreen int
	log        []schemas.PerceptionEntry
}

// NewTracker builds a tracker whose element shuffling is driven by seed.
func NewTracker(opts TrackerOptions, seed int64) *Tracker {
	if opts.SameScreenLimit <= 0 {
		opts.SameScreenLimit = 3
	}
	if opts.ElementDelta <= 0 {
		opts.ElementDelta = 3
	}
	if opts.NoProgressSteps <= 0 {
		opts.NoProgressSteps = 4
	}
	if opts.ReplanThreshold <= 0 {
		opts.ReplanThreshold = 4
	}
	if opts.AutoBailThreshold <= 0 {
		opts.AutoBailThreshold = 8
	}
	return &Tracker{opts: opts, rng: rand.New(rand.NewSource(seed))}
}

// Reset forgets all previous observations.
func (t *Tracker) Reset() {
	t.prev = nil
	t.sameScreen = 0
	t.log = nil
}

// Observe raises stagnation signals for obs, nudges the ledger and records
// the perception entry. sameScreen counts consecutive sightings of the same
// screen, so the first sighting is 1.
func (t *Tracker) Observe(step int, obs schemas.PageObservation, ledger *Ledger) Perception {
	var p Perception

	cur := screenKey{url: obs.URL, heading: obs.Heading, elements: len(obs.InteractiveElements)}
	if t.prev != nil && t.prev.url == cur.url && t.prev.heading == cur.heading &&
		absInt(t.prev.elements-cur.elements) < t.opts.ElementDelta {
		t.sameScreen++
	} else {
		t.sameScreen = 1
	}
	t.prev = &cur

	if t.sameScreen >= t.opts.SameScreenLimit {
		p.Signals = append(p.Signals, fmt.Sprintf("same screen %d times, try something different", t.sameScreen))
		ledger.AddStuck(sameScreenPenalty)
		p.Shuffle = true
	}

	if n := ledger.StepsSinceProgress(); n >= t.opts.NoProgressSteps {
		p.Signals = append(p.Signals, fmt.Sprintf("no progress for %d steps", n))
		ledger.AddStuck(noProgressPenalty)
	}

	if len(obs.ConsoleErrors) > 0 {
		shown := obs.ConsoleErrors
		if len(shown) > maxConsoleErrors {
			shown = shown[:maxConsoleErrors]
		}
		quoted := make([]string, len(shown))
		for i, e := range shown {
			quoted[i] = fmt.Sprintf("%q", llmutil.Truncate(e, consoleErrorRunes))
		}
		p.Signals = append(p.Signals, "console errors: "+strings.Join(quoted, ", "))
	}

	p.Entry = schemas.PerceptionEntry{
		Step:             step,
		URL:              obs.URL,
		ScreenSummary:    screenSummary(obs),
		VisibleCTAs:      visibleCTAs(obs.InteractiveElements),
		Confidence:       confidence(len(p.Signals)),
		ConfusionSignals: append([]string{}, p.Signals...),
		ProgressMade:     ledger.StepsSinceProgress() == 0,
	}
	t.log = append(t.log, p.Entry)
	return p
}

// SameScreenCount returns the current run of identical screens.
func (t *Tracker) SameScreenCount() int { return t.sameScreen }

// Log returns a copy of the perception history.
func (t *Tracker) Log() []schemas.PerceptionEntry {
	return append([]schemas.PerceptionEntry{}, t.log...)
}

// RecentSignals returns the confusion signals of the last n entries, oldest first.
func (t *Tracker) RecentSignals(n int) []string {
	start := len(t.log) - n
	if start < 0 {
		start = 0
	}
	var out []string
	for _, e := range t.log[start:] {
		out = append(out, e.ConfusionSignals...)
	}
	return out
}

// ReplanBlock returns the re-plan instruction once the stuck score reaches
// the threshold, or "" below it.
func (t *Tracker) ReplanBlock(ledger *Ledger, actionLog []schemas.ActionLogEntry) string {
	if ledger.StuckScore() < t.opts.ReplanThreshold {
		return ""
	}
	var failed []schemas.ActionLogEntry
	for i := len(actionLog) - 1; i >= 0 && len(failed) < maxReplanFailures; i-- {
		if actionLog[i].Failed() {
			failed = append(failed, actionLog[i])
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "RE-PLAN REQUIRED (stuck score %d).\n", ledger.StuckScore())
	if len(failed) > 0 {
		b.WriteString("Recent failed actions:\n")
		for i := len(failed) - 1; i >= 0; i-- {
			e := failed[i]
			name := e.Action.Target.DisplayName()
			if name == "" {
				name = "(no target)"
			}
			fmt.Fprintf(&b, "- %s %q: %s\n", e.Action.Type, name, llmutil.Truncate(e.Error, replanErrorRunes))
		}
	}
	b.WriteString("Abandon the current approach. Do not repeat the actions above. " +
		"Look for a different path to the goal, such as a navigation menu or sidebar link visible on the page.")
	return b.String()
}

// ShouldBail reports whether score has reached the auto-bail ceiling.
func (t *Tracker) ShouldBail(score int) bool {
	return score >= t.opts.AutoBailThreshold
}

// BailAction is the forced terminal action used once the run is hopelessly stuck.
func (t *Tracker) BailAction(ledger *Ledger) schemas.AgentAction {
	return schemas.NewDoneAction(fmt.Sprintf(
		"Auto-bail: stuck score %d reached the limit with no progress for %d steps and the same screen seen %d times in a row.",
		ledger.StuckScore(), ledger.StepsSinceProgress(), t.sameScreen))
}

// Shuffle returns a pseudo-random permutation of elems. The input is not modified.
func (t *Tracker) Shuffle(elems []schemas.InteractiveElement) []schemas.InteractiveElement {
	out := append([]schemas.InteractiveElement{}, elems...)
	t.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func confidence(signals int) float64 {
	return math.Max(minConfidence, baseConfidence-confidencePerSignal*float64(signals))
}

func screenSummary(obs schemas.PageObservation) string {
	title := obs.Heading
	if title == "" {
		title = obs.URL
	}
	return fmt.Sprintf("%s (%d interactive elements)", title, len(obs.InteractiveElements))
}

func visibleCTAs(elems []schemas.InteractiveElement) []string {
	out := []string{}
	for _, e := range elems {
		if len(out) == maxVisibleCTAs {
			break
		}
		if e.Disabled || strings.TrimSpace(e.Name) == "" {
			continue
		}
		out = append(out, e.Name)
	}
	return out
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
