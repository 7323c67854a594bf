// ABOUTME: Agent holds a transcript and tool catalog and runs the reasoning loop.
// ABOUTME: Rounds are bounded by a depth limit; tool failures become observations.

package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/2389/coven-librarian/internal/llm"
)

// DefaultMaxDepth is the depth bound used when none is configured.
const DefaultMaxDepth = 10

// ErrAlreadyRun is yielded when a Run sequence is iterated a second time.
var ErrAlreadyRun = errors.New("agent run already consumed")

// depthObservation is recorded for tool calls skipped by the depth bound.
const depthObservation = "depth bound reached; tool not executed"

// Config describes a new Agent.
type Config struct {
	Kind         Kind
	Completer    llm.Completer
	Tools        *Catalog
	MaxDepth     int
	SystemPrompt string
	Logger       *slog.Logger
}

// Agent is a stateful reasoning session bound to one conversation thread.
type Agent struct {
	id        string
	kind      Kind
	completer llm.Completer
	tools     *Catalog
	maxDepth  int
	logger    *slog.Logger

	// turn is held for the whole of a Run sequence.
	turn chan struct{}

	mu         sync.Mutex
	transcript []llm.Message
}

// New creates an Agent with a fresh transcript.
func New(cfg Config) *Agent {
	depth := cfg.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	tools := cfg.Tools
	if tools == nil {
		tools, _ = NewCatalog()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.New().String()
	a := &Agent{
		id:        id,
		kind:      cfg.Kind,
		completer: cfg.Completer,
		tools:     tools,
		maxDepth:  depth,
		logger:    logger.With("agent_id", id),
		turn:      make(chan struct{}, 1),
	}
	if cfg.SystemPrompt != "" {
		a.transcript = append(a.transcript, llm.System(cfg.SystemPrompt))
	}
	return a
}

// ID returns the agent's unique identifier.
func (a *Agent) ID() string { return a.id }

// Kind returns the kind the agent was created for.
func (a *Agent) Kind() Kind { return a.kind }

// MaxDepth returns the depth bound.
func (a *Agent) MaxDepth() int { return a.maxDepth }

// Transcript returns a copy of the conversation so far.
func (a *Agent) Transcript() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]llm.Message, len(a.transcript))
	copy(out, a.transcript)
	return out
}

func (a *Agent) appendMessages(msgs ...llm.Message) {
	a.mu.Lock()
	a.transcript = append(a.transcript, msgs...)
	a.mu.Unlock()
}

// Run appends utterance to the transcript and returns the lazy sequence of
// round responses. Nothing happens until the sequence is ranged over.
func (a *Agent) Run(ctx context.Context, utterance string) iter.Seq2[*Response, error] {
	var consumed atomic.Bool
	return func(yield func(*Response, error) bool) {
		if !consumed.CompareAndSwap(false, true) {
			yield(nil, ErrAlreadyRun)
			return
		}

		select {
		case a.turn <- struct{}{}:
		case <-ctx.Done():
			yield(nil, ctx.Err())
			return
		}
		defer func() { <-a.turn }()

		a.appendMessages(llm.User(utterance))
		a.loop(ctx, yield)
	}
}

func (a *Agent) loop(ctx context.Context, yield func(*Response, error) bool) {
	schemas := a.tools.Schemas()

	for round := 1; round <= a.maxDepth; round++ {
		completion, err := a.completer.Complete(ctx, a.Transcript(), schemas)
		if err != nil {
			a.logger.Error("completion failed", "round", round, "error", err)
			yield(nil, fmt.Errorf("completing round %d: %w", round, err))
			return
		}

		a.appendMessages(llm.Assistant(completion.Content, completion.ToolCalls...))
		resp := &Response{
			Content:    completion.Content,
			StopReason: string(completion.StopReason),
			Round:      round,
		}

		if len(completion.ToolCalls) == 0 {
			yield(resp, nil)
			return
		}

		if round == a.maxDepth {
			a.logger.Warn("depth bound reached", "max_depth", a.maxDepth, "pending_tools", len(completion.ToolCalls))
			for _, call := range completion.ToolCalls {
				rec := ToolCallRecord{ID: call.ID, Name: call.Name, Arguments: call.Arguments, Error: depthObservation}
				resp.ToolCalls = append(resp.ToolCalls, rec)
				a.appendMessages(llm.ToolResult(call.ID, call.Name, rec.Observation()))
			}
			resp.DepthExhausted = true
			resp.StopReason = StopDepthExhausted
			yield(resp, nil)
			return
		}

		for _, call := range completion.ToolCalls {
			rec := a.invoke(ctx, call)
			resp.ToolCalls = append(resp.ToolCalls, rec)
			a.appendMessages(llm.ToolResult(call.ID, call.Name, rec.Observation()))
		}

		if !yield(resp, nil) {
			return
		}
	}
}

// invoke runs one tool call. Every failure is captured in the record.
func (a *Agent) invoke(ctx context.Context, call llm.ToolCall) (rec ToolCallRecord) {
	rec = ToolCallRecord{ID: call.ID, Name: call.Name, Arguments: call.Arguments}

	tool, ok := a.tools.Lookup(call.Name)
	if !ok {
		rec.Error = fmt.Sprintf("unknown tool %q", call.Name)
		a.logger.Warn("model requested unknown tool", "tool", call.Name)
		return rec
	}

	defer func() {
		if r := recover(); r != nil {
			rec.Result = nil
			rec.Error = fmt.Sprintf("tool panicked: %v", r)
			a.logger.Error("tool panicked", "tool", call.Name, "panic", r)
		}
	}()

	result, err := tool.Run(ctx, call.Arguments)
	if err != nil {
		rec.Error = err.Error()
		a.logger.Warn("tool failed", "tool", call.Name, "error", err)
		return rec
	}
	rec.Result = result
	a.logger.Debug("tool succeeded", "tool", call.Name)
	return rec
}
