// Package chat runs the conversation loop: it carries the message history,
// asks the configured model for a reply, extracts action snippets from the
// reply, and hands them to the sandbox against the vehicle session.
package chat

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/deepdrone/deepdrone/pkg/drone"
	"github.com/deepdrone/deepdrone/pkg/extract"
	"github.com/deepdrone/deepdrone/pkg/logging"
	"github.com/deepdrone/deepdrone/pkg/model"
	"github.com/deepdrone/deepdrone/pkg/sandbox"
	"github.com/deepdrone/deepdrone/pkg/telemetry"
)

const (
	defaultHistoryWindow   = 10
	defaultMonitorInterval = 5 * time.Second
	// snippetWorkers bounds concurrent sandbox executions across all
	// inbound requests so a slow vehicle command cannot pile up goroutines.
	snippetWorkers = 4
)

// Completer produces the assistant reply for an ordered message history.
// model.Adapter satisfies this; tests substitute a scripted fake.
type Completer interface {
	Chat(ctx context.Context, messages []model.Message) string
}

// ExecutionResult pairs one extracted snippet with its sandbox outcome.
type ExecutionResult struct {
	Snippet string         `json:"snippet"`
	Result  sandbox.Result `json:"result"`
}

// TurnResult is everything one user turn produced.
type TurnResult struct {
	TurnID        string            `json:"turn_id"`
	AssistantText string            `json:"assistant_text"`
	Executions    []ExecutionResult `json:"executions,omitempty"`
}

// Config tunes the coordinator.
type Config struct {
	HistoryWindow    int
	MonitorInterval  time.Duration
	ConnectionString string
}

// Coordinator owns the conversation state for one session. Turns serialize
// on the history; snippet execution is bounded by a shared worker semaphore.
type Coordinator struct {
	cfg       Config
	completer Completer
	sess      *drone.Session
	exec      *sandbox.Executor
	log       *logging.Logger
	hub       *telemetry.Hub
	workers   *semaphore.Weighted

	mu      sync.Mutex
	history []model.Message

	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
}

// NewCoordinator wires the conversation loop together. The sandbox executor
// is expected to carry the session's capability table already.
func NewCoordinator(cfg Config, completer Completer, sess *drone.Session, exec *sandbox.Executor, log *logging.Logger, hub *telemetry.Hub) *Coordinator {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = defaultMonitorInterval
	}
	if log == nil {
		log = logging.NewDiscardLogger()
	}
	if hub == nil {
		hub = telemetry.NewHub()
	}
	return &Coordinator{
		cfg:       cfg,
		completer: completer,
		sess:      sess,
		exec:      exec,
		log:       log,
		hub:       hub,
		workers:   semaphore.NewWeighted(snippetWorkers),
	}
}

// HandleTurn processes one user message end-to-end: history append, model
// call, snippet extraction, sandbox execution, history append of the raw
// reply. The reply stored in history is never rewritten with execution
// output; execution results ride alongside in the TurnResult.
func (c *Coordinator) HandleTurn(ctx context.Context, userText string) TurnResult {
	turnID := ulid.Make().String()
	c.hub.Publish(telemetry.Event{Type: telemetry.EventTurnStarted, Data: map[string]any{"turn_id": turnID}})
	c.log.Info(logging.CategoryChat, "turn_started", "processing user message", map[string]any{
		"turn_id": turnID,
		"length":  len(userText),
	})

	messages := c.appendUserAndWindow(userText)
	reply := c.completer.Chat(ctx, messages)

	snippets := extract.Snippets(reply)
	var executions []ExecutionResult
	if len(snippets) > 0 {
		executions = c.runSnippets(ctx, turnID, snippets)
	}

	c.mu.Lock()
	c.history = append(c.history, model.Message{Role: model.RoleAssistant, Content: reply})
	c.mu.Unlock()

	telemetry.MetricChatTurns.WithLabelValues("ok").Inc()
	c.hub.Publish(telemetry.Event{Type: telemetry.EventTurnCompleted, Data: map[string]any{
		"turn_id":  turnID,
		"snippets": len(snippets),
	}})
	return TurnResult{TurnID: turnID, AssistantText: reply, Executions: executions}
}

// appendUserAndWindow records the user message and assembles the provider
// request: system prompt reflecting the live vehicle status, then the
// trailing window of history including the new message.
func (c *Coordinator) appendUserAndWindow(userText string) []model.Message {
	status := c.sess.Status()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, model.Message{Role: model.RoleUser, Content: userText})

	window := c.history
	if len(window) > c.cfg.HistoryWindow {
		window = window[len(window)-c.cfg.HistoryWindow:]
	}

	messages := make([]model.Message, 0, len(window)+1)
	messages = append(messages, model.Message{
		Role:    model.RoleSystem,
		Content: SystemPrompt(status, c.cfg.ConnectionString),
	})
	return append(messages, window...)
}

func (c *Coordinator) runSnippets(ctx context.Context, turnID string, snippets []string) []ExecutionResult {
	executions := make([]ExecutionResult, 0, len(snippets))
	for i, code := range snippets {
		c.hub.Publish(telemetry.Event{Type: telemetry.EventSnippetStarted, Data: map[string]any{
			"turn_id": turnID,
			"index":   i,
		}})

		res := c.runOne(ctx, code)
		executions = append(executions, ExecutionResult{Snippet: code, Result: res})

		eventType := telemetry.EventSnippetCompleted
		if !res.OK() {
			eventType = telemetry.EventSnippetFailed
		}
		telemetry.MetricSnippets.WithLabelValues(telemetry.CommandOutcome(res.OK())).Inc()
		c.hub.Publish(telemetry.Event{Type: eventType, Data: map[string]any{
			"turn_id": turnID,
			"index":   i,
		}})
	}
	return executions
}

// runOne executes a single snippet on the bounded worker pool. The snippet's
// own timeout is enforced by the executor; acquisition honors ctx so a
// cancelled request does not queue dead work.
func (c *Coordinator) runOne(ctx context.Context, code string) sandbox.Result {
	if err := c.workers.Acquire(ctx, 1); err != nil {
		return sandbox.Result{
			Err:   err,
			Error: "Execution cancelled before snippet ran",
		}
	}
	defer c.workers.Release(1)
	return c.exec.Execute(ctx, code)
}

// Execute runs one snippet outside a conversation turn, on the same bounded
// worker pool and capability table the turn pipeline uses. It backs the
// operator's direct code-execution surface.
func (c *Coordinator) Execute(ctx context.Context, code string) sandbox.Result {
	res := c.runOne(ctx, code)
	telemetry.MetricSnippets.WithLabelValues(telemetry.CommandOutcome(res.OK())).Inc()
	return res
}

// Interrupt is the operator's out-of-band abort: set the cooperative flag,
// bring the vehicle home, and drop the connection. In-flight sandbox code
// sees the flag at its next capability checkpoint.
func (c *Coordinator) Interrupt(ctx context.Context) {
	c.sess.RequestInterrupt()
	c.sess.ReturnHome(ctx)
	c.sess.Disconnect()
	c.log.Warn(logging.CategoryChat, "interrupted", "operator interrupt issued", nil)
}

// History returns a copy of the full retained conversation.
func (c *Coordinator) History() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Message(nil), c.history...)
}

// Reset clears the conversation history. Vehicle state is untouched.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// StartMonitor launches the background heartbeat loop. It only reads
// status and publishes; it never mutates session state.
func (c *Coordinator) StartMonitor(ctx context.Context) {
	if c.monitorDone != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.monitorCancel = cancel
	c.monitorDone = make(chan struct{})

	go func() {
		defer close(c.monitorDone)
		ticker := time.NewTicker(c.cfg.MonitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.hub.Publish(telemetry.Event{Type: telemetry.EventHeartbeat, Data: map[string]any{
					"state":     string(c.sess.State()),
					"connected": c.sess.Connected(),
				}})
			}
		}
	}()
}

// StopMonitor stops the heartbeat loop and waits for it to exit.
func (c *Coordinator) StopMonitor() {
	if c.monitorCancel == nil {
		return
	}
	c.monitorCancel()
	<-c.monitorDone
	c.monitorCancel = nil
	c.monitorDone = nil
}
