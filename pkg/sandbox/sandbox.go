// Package sandbox executes model-emitted code snippets against a closed
// capability table. Snippets run in an embedded Starlark interpreter with
// no filesystem, network, or module-loading access; the only host functions
// visible to a snippet are the ones the caller injects.
package sandbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	apperrors "github.com/deepdrone/deepdrone/pkg/errors"
	"github.com/deepdrone/deepdrone/pkg/logging"
)

// SuccessSentinel is returned as a snippet's output when it printed nothing.
const SuccessSentinel = "Code executed successfully"

// ThreadContextKey is the thread-local slot holding the snippet's
// context.Context, so capability functions can honor the deadline.
const ThreadContextKey = "deepdrone.context"

// ThreadContext returns the context attached to a snippet's thread.
func ThreadContext(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(ThreadContextKey).(context.Context); ok {
		return ctx
	}
	return context.Background()
}

const (
	DefaultTimeout        = 45 * time.Second
	DefaultMaxOutputBytes = 64 * 1024
)

// Config controls per-snippet execution limits.
type Config struct {
	// Timeout bounds a single snippet's wall-clock execution.
	Timeout time.Duration
	// MaxOutputBytes caps captured print output; excess is truncated.
	MaxOutputBytes int
}

// DefaultConfig returns the limits used by the reference deployment.
func DefaultConfig() Config {
	return Config{
		Timeout:        DefaultTimeout,
		MaxOutputBytes: DefaultMaxOutputBytes,
	}
}

// Result is the outcome of one snippet. A snippet failure is data, not a
// propagated error: the coordinator reports it and moves on.
type Result struct {
	Output   string        `json:"output"`
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
}

// OK reports whether the snippet completed without error.
func (r Result) OK() bool { return r.Err == nil }

// Executor runs snippets against a fixed capability table.
type Executor struct {
	cfg          Config
	capabilities starlark.StringDict
	log          *logging.Logger
	opts         *syntax.FileOptions
}

// NewExecutor builds an executor bound to the given capability table.
// The table is fixed for the executor's lifetime; snippets cannot grow it.
func NewExecutor(cfg Config, capabilities starlark.StringDict, log *logging.Logger) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if log == nil {
		log = logging.NewDiscardLogger()
	}
	return &Executor{
		cfg:          cfg,
		capabilities: capabilities,
		log:          log,
		// Model-emitted snippets use imperative top-level code.
		opts: &syntax.FileOptions{
			While:           true,
			TopLevelControl: true,
			GlobalReassign:  true,
			Set:             true,
		},
	}
}

// Execute runs a single snippet and captures its printed output. The snippet
// is cancelled when ctx is done or the configured timeout elapses, whichever
// comes first; a timeout is reported in the Result, never as a panic.
func (e *Executor) Execute(ctx context.Context, snippet string) Result {
	start := time.Now()

	buf := &outputBuffer{limit: e.cfg.MaxOutputBytes}
	thread := &starlark.Thread{
		Name: "snippet",
		Print: func(_ *starlark.Thread, msg string) {
			buf.append(msg)
		},
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	thread.SetLocal(ThreadContextKey, ctx)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel("execution deadline exceeded")
		case <-done:
		}
	}()

	_, err := starlark.ExecFileOptions(e.opts, thread, "snippet.star", snippet, e.capabilities)
	close(done)

	res := Result{
		Output:   buf.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		timedOut := ctx.Err() != nil
		code := apperrors.ErrCodeSandboxExecution
		if timedOut {
			code = apperrors.ErrCodeSandboxTimeout
		}
		res.TimedOut = timedOut
		res.Err = apperrors.Wrap(err, code, "snippet execution failed").
			WithContext("elapsed", res.Duration.String())
		res.Error = snippetErrorText(err, timedOut)
		e.log.Warn(logging.CategorySandbox, "snippet_failed", "snippet execution failed", map[string]any{
			"error":     err.Error(),
			"timed_out": timedOut,
			"elapsed":   res.Duration.String(),
		})
		return res
	}

	if res.Output == "" {
		res.Output = SuccessSentinel
	}
	e.log.Debug(logging.CategorySandbox, "snippet_executed", "snippet executed", map[string]any{
		"elapsed":      res.Duration.String(),
		"output_bytes": len(res.Output),
	})
	return res
}

// ExecuteAll runs snippets sequentially in the order given. Each snippet is
// an independent unit of work: a failure or timeout in one does not stop the
// rest. Cancelling ctx stops the sequence after the current snippet.
func (e *Executor) ExecuteAll(ctx context.Context, snippets []string) []Result {
	results := make([]Result, 0, len(snippets))
	for _, code := range snippets {
		if ctx.Err() != nil {
			results = append(results, Result{
				Err:   apperrors.Wrap(ctx.Err(), apperrors.ErrCodeSandboxExecution, "execution cancelled"),
				Error: "Execution cancelled before snippet ran",
			})
			continue
		}
		results = append(results, e.Execute(ctx, code))
	}
	return results
}

func snippetErrorText(err error, timedOut bool) string {
	if timedOut {
		return "Error executing drone command: execution timed out"
	}
	msg := err.Error()
	var evalErr *starlark.EvalError
	if errors.As(err, &evalErr) {
		msg = evalErr.Msg
	}
	return "Error executing drone command: " + msg
}

type outputBuffer struct {
	lines     []string
	size      int
	limit     int
	truncated bool
}

func (b *outputBuffer) append(msg string) {
	if b.truncated {
		return
	}
	if b.size+len(msg) > b.limit {
		remain := b.limit - b.size
		if remain > 0 {
			b.lines = append(b.lines, msg[:remain])
			b.size = b.limit
		}
		b.lines = append(b.lines, "[output truncated]")
		b.truncated = true
		return
	}
	b.lines = append(b.lines, msg)
	b.size += len(msg)
}

func (b *outputBuffer) String() string {
	return strings.Join(b.lines, "\n")
}
