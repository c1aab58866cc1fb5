package brain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/llmutil"
)

// Verdict is the critic's one-word assessment.
type Verdict string

const (
	VerdictProgress Verdict = "progress"
	VerdictStuck    Verdict = "stuck"
	VerdictLost     Verdict = "lost"
)

const (
	criticActions        = 5
	criticPerceptions    = 3
	criticErrorRunes     = 100
	criticAdviceRunes    = 300
	criticDefaultTimeout = 60 * time.Second
)

// CriticOptions schedules and bounds the critic.
type CriticOptions struct {
	Enabled    bool
	Interval   int
	StartAfter int
	Timeout    time.Duration
}

// CriticInput is the compact state the critic reviews.
type CriticInput struct {
	Goal      string
	Ledger    schemas.GoalLedgerSnapshot
	URL       string
	Heading   string
	RecentLog []schemas.ActionLogEntry
	Confusion []string
}

// Review is a parsed critic reply.
type Review struct {
	Verdict Verdict `json:"verdict"`
	Advice  string  `json:"advice"`
}

// Line renders the review as a history line.
func (r Review) Line() string {
	if r.Advice == "" {
		return fmt.Sprintf("verdict %s.", r.Verdict)
	}
	return fmt.Sprintf("verdict %s. %s", r.Verdict, r.Advice)
}

// Critic asks the fast model tier for a periodic second opinion. It is
// best-effort: every failure is logged and dropped.
type Critic struct {
	llm    schemas.LLMClient
	logger *zap.Logger
	opts   CriticOptions
}

// NewCritic builds a critic over llm.
func NewCritic(llm schemas.LLMClient, opts CriticOptions, logger *zap.Logger) *Critic {
	if opts.Interval <= 0 {
		opts.Interval = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = criticDefaultTimeout
	}
	return &Critic{llm: llm, logger: logger.Named("critic"), opts: opts}
}

// Due reports whether the critic runs on step.
func (c *Critic) Due(step int) bool {
	return c.opts.Enabled && step > c.opts.StartAfter && step%c.opts.Interval == 0
}

// Review makes one call with no retries. ok is false when the call, the
// parse or the verdict was unusable.
func (c *Critic) Review(ctx context.Context, in CriticInput) (review Review, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Debug("Critic panicked, ignoring.", zap.Any("panic_value", r))
			review, ok = Review{}, false
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	resp, err := c.llm.Generate(callCtx, schemas.GenerationRequest{
		SystemPrompt: "You review the progress of an automated UI test. Be terse.",
		UserPrompt:   c.prompt(in),
		Tier:         schemas.TierFast,
		Options:      schemas.GenerationOptions{ForceJSONFormat: true, Temperature: 0.1},
	})
	if err != nil {
		c.logger.Debug("Critic call failed.", zap.Error(err))
		return Review{}, false
	}

	parsed, err := llmutil.ParseJSONResponse[Review](resp)
	if err != nil {
		c.logger.Debug("Critic reply unparsable.", zap.Error(err), zap.String("reply", llmutil.Truncate(resp, 200)))
		return Review{}, false
	}
	parsed.Verdict = Verdict(strings.ToLower(strings.TrimSpace(string(parsed.Verdict))))
	switch parsed.Verdict {
	case VerdictProgress, VerdictStuck, VerdictLost:
	default:
		c.logger.Debug("Critic returned an unknown verdict.", zap.String("verdict", string(parsed.Verdict)))
		return Review{}, false
	}
	parsed.Advice = llmutil.Truncate(strings.TrimSpace(parsed.Advice), criticAdviceRunes)
	return *parsed, true
}

// Penalises reports whether the verdict should raise the stuck score.
func (r Review) Penalises() bool {
	return r.Verdict == VerdictStuck || r.Verdict == VerdictLost
}

func (c *Critic) prompt(in CriticInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", in.Goal)
	fmt.Fprintf(&b, "Outcomes met: %d of %d\n", len(in.Ledger.CompletedOutcomes), len(in.Ledger.RequiredOutcomes))
	fmt.Fprintf(&b, "Stuck score: %d\n", in.Ledger.StuckScore)
	fmt.Fprintf(&b, "Current page: %s", in.URL)
	if in.Heading != "" {
		fmt.Fprintf(&b, " (%s)", in.Heading)
	}
	b.WriteString("\n")

	recent := in.RecentLog
	if len(recent) > criticActions {
		recent = recent[len(recent)-criticActions:]
	}
	if len(recent) > 0 {
		b.WriteString("\nLast actions:\n")
		for _, e := range recent {
			fmt.Fprintf(&b, "- %s %q: %s", e.Action.Type, e.Action.Target.DisplayName(), e.Result)
			if e.Error != "" {
				fmt.Fprintf(&b, " (%s)", llmutil.Truncate(e.Error, criticErrorRunes))
			}
			b.WriteString("\n")
		}
	}

	if len(in.Confusion) > 0 {
		b.WriteString("\nRecent confusion signals:\n")
		for _, s := range in.Confusion {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	b.WriteString("\nIs the agent making progress, stuck, or lost? Answer with only " +
		`{"verdict": "progress" | "stuck" | "lost", "advice": "one short sentence"}`)
	return b.String()
}
