package brain

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/llmutil"
)

const exhaustionErrorRunes = 200

// DecisionOptions bounds the main decision call.
type DecisionOptions struct {
	MaxAttempts int
	Timeout     time.Duration
}

// Decider turns a composed request into a validated action. It never returns
// an error: exhaustion becomes a terminal action that explains itself.
type Decider struct {
	llm    schemas.LLMClient
	logger *zap.Logger
	opts   DecisionOptions
}

// NewDecider builds a decider over llm.
func NewDecider(llm schemas.LLMClient, opts DecisionOptions, logger *zap.Logger) *Decider {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 600 * time.Second
	}
	return &Decider{llm: llm, logger: logger.Named("decider"), opts: opts}
}

// Decide makes up to MaxAttempts independent attempts. Each attempt gets its
// own timeout; a cancelled ctx ends the loop early.
func (d *Decider) Decide(ctx context.Context, req schemas.GenerationRequest) schemas.AgentAction {
	var lastErr error
	attempts := 0
	for attempts < d.opts.MaxAttempts {
		attempts++
		action, err := d.attempt(ctx, req)
		if err == nil {
			return action
		}
		lastErr = err
		d.logger.Debug("Decision attempt failed.",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", d.opts.MaxAttempts),
			zap.Error(err))
		if ctx.Err() != nil {
			break
		}
	}

	d.logger.Warn("Decision attempts exhausted, ending run.", zap.Int("attempts", attempts), zap.Error(lastErr))
	return schemas.NewDoneAction(fmt.Sprintf("Decision call failed after %d attempts: %s",
		attempts, llmutil.Truncate(lastErr.Error(), exhaustionErrorRunes)))
}

func (d *Decider) attempt(ctx context.Context, req schemas.GenerationRequest) (action schemas.AgentAction, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Panic recovered during decision attempt", zap.Any("panic_value", r), zap.Stack("stack"))
			err = fmt.Errorf("decision attempt panicked: %v", r)
		}
	}()

	attemptCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	resp, err := d.llm.Generate(attemptCtx, req)
	if err != nil {
		return schemas.AgentAction{}, fmt.Errorf("llm generation failed: %w", err)
	}
	action, err = ParseAction(resp)
	if err != nil {
		return schemas.AgentAction{}, fmt.Errorf("failed to parse llm response: %w", err)
	}
	return action, nil
}
