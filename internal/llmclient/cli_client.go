package llmclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/config"
	"github.com/xkilldash9x/uiprobe/internal/llmutil"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultMaxResponseBytes = 2 << 20
	DefaultKillGracePeriod  = 2 * time.Second

	stderrLimit      = 64 << 10
	stderrInErrorLen = 500
)

var (
	// ErrResponseTooLarge is returned when the CLI writes more than the
	// configured ceiling to stdout.
	ErrResponseTooLarge = errors.New("completion response exceeds size limit")
	// ErrCompletionTimeout is returned when ctx ends before the CLI exits.
	ErrCompletionTimeout = errors.New("completion timed out")
	// ErrCompletionFailed covers non-zero exits, malformed envelopes and
	// envelopes flagged is_error.
	ErrCompletionFailed = errors.New("completion failed")
)

// cliEnvelope is the JSON document the CLI prints in --output-format json mode.
type cliEnvelope struct {
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
}

// CLIOptions configures a CLIClient.
type CLIOptions struct {
	Binary           string
	Model            string
	MaxResponseBytes int64
	KillGracePeriod  time.Duration
}

// CLIClient runs a local completion CLI once per request. The combined prompt
// goes to stdin and the result envelope is read from stdout. When ctx ends the
// whole process tree gets a termination signal, then a forced kill after the
// grace period.
type CLIClient struct {
	opts   CLIOptions
	logger *zap.Logger
}

// NewCLIClient builds a CLIClient for one configured model.
func NewCLIClient(model config.LLMModelConfig, router config.LLMRouterConfig, logger *zap.Logger) (*CLIClient, error) {
	if model.Binary == "" {
		return nil, fmt.Errorf("cli provider requires a binary")
	}
	return newCLIClient(CLIOptions{
		Binary:           model.Binary,
		Model:            model.Model,
		MaxResponseBytes: router.MaxResponseBytes,
		KillGracePeriod:  router.KillGracePeriod,
	}, logger), nil
}

func newCLIClient(opts CLIOptions, logger *zap.Logger) *CLIClient {
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if opts.KillGracePeriod <= 0 {
		opts.KillGracePeriod = DefaultKillGracePeriod
	}
	return &CLIClient{opts: opts, logger: logger.Named("llm_client.cli")}
}

func (c *CLIClient) args() []string {
	args := []string{"-p", "--output-format", "json"}
	if c.opts.Model != "" {
		args = append(args, "--model", c.opts.Model)
	}
	return args
}

// Generate runs the CLI and returns the envelope's result text.
func (c *CLIClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionTimeout, err)
	}

	cmd := exec.Command(c.opts.Binary, c.args()...)
	cmd.Stdin = strings.NewReader(req.CombinedPrompt())
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: failed to start %s: %v", ErrCompletionFailed, c.opts.Binary, err)
	}

	var timedOut atomic.Bool
	done := make(chan struct{})
	ladderDone := make(chan struct{})
	go func() {
		defer close(ladderDone)
		c.killOnCancel(ctx, cmd, done, &timedOut)
	}()

	out := &limitedBuffer{limit: c.opts.MaxResponseBytes}
	errOut := &limitedBuffer{limit: stderrLimit, truncate: true}

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(out, stdout)
		if err != nil {
			// Nothing reads stdout any more, so the process could block forever.
			_ = killTree(cmd)
			_, _ = io.Copy(io.Discard, stdout)
		}
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(errOut, stderr)
		return err
	})
	copyErr := g.Wait()
	waitErr := cmd.Wait()
	close(done)
	<-ladderDone

	duration := time.Since(startTime)

	switch {
	case timedOut.Load():
		c.logger.Debug("CLI completion timed out", zap.Duration("duration", duration))
		return "", fmt.Errorf("%w after %s: %v", ErrCompletionTimeout, duration.Round(time.Millisecond), ctx.Err())
	case errors.Is(copyErr, ErrResponseTooLarge):
		return "", fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, c.opts.MaxResponseBytes)
	case copyErr != nil:
		return "", fmt.Errorf("%w: reading output: %v", ErrCompletionFailed, copyErr)
	case waitErr != nil:
		return "", fmt.Errorf("%w: %s exited: %v: %s", ErrCompletionFailed, c.opts.Binary, waitErr,
			llmutil.Truncate(strings.TrimSpace(errOut.String()), stderrInErrorLen))
	}

	var env cliEnvelope
	if err := json.Unmarshal(out.Bytes(), &env); err != nil {
		return "", fmt.Errorf("%w: malformed result envelope: %v", ErrCompletionFailed, err)
	}
	if env.IsError {
		return "", fmt.Errorf("%w: %s", ErrCompletionFailed, llmutil.Truncate(env.Result, stderrInErrorLen))
	}

	c.logger.Debug("CLI completion finished",
		zap.Duration("duration", duration),
		zap.Int("result_bytes", len(env.Result)))
	return env.Result, nil
}

// killOnCancel sends the termination signal once ctx ends, escalating to a
// forced kill when the process outlives the grace period.
func (c *CLIClient) killOnCancel(ctx context.Context, cmd *exec.Cmd, done <-chan struct{}, timedOut *atomic.Bool) {
	select {
	case <-done:
		return
	case <-ctx.Done():
	}
	timedOut.Store(true)

	if err := terminateTree(cmd); err != nil {
		c.logger.Debug("Termination signal failed", zap.Error(err))
	}
	grace := time.NewTimer(c.opts.KillGracePeriod)
	defer grace.Stop()
	select {
	case <-done:
	case <-grace.C:
		c.logger.Warn("CLI ignored termination, killing process tree", zap.Int("pid", cmd.Process.Pid))
		if err := killTree(cmd); err != nil {
			c.logger.Debug("Forced kill failed", zap.Error(err))
		}
	}
}

// Close is a no-op; every request runs its own process.
func (c *CLIClient) Close() error { return nil }

// limitedBuffer is a bytes.Buffer with a ceiling. Past the ceiling it either
// fails with ErrResponseTooLarge or silently drops bytes when truncate is set.
type limitedBuffer struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	limit    int64
	truncate bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - int64(b.buf.Len())
	if int64(len(p)) <= room {
		return b.buf.Write(p)
	}
	if !b.truncate {
		return 0, ErrResponseTooLarge
	}
	if room > 0 {
		b.buf.Write(p[:room])
	}
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Bytes()
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
