// ABOUTME: Chat dispatcher routing inbound prompts to agents and replies back to chat.
// ABOUTME: Each prompt becomes a queued unit of work; replies are correlated for threading.

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-librarian/internal/agent"
	"github.com/2389/coven-librarian/internal/chat"
	"github.com/2389/coven-librarian/internal/store"
	"github.com/2389/coven-librarian/internal/ttlcache"
)

// Defaults applied by New.
const (
	DefaultWorkers    = 4
	DefaultBufferSize = 1000

	seenTTL     = 30 * time.Minute
	seenMaxSize = 10000
)

// TurnRecorder persists delivered responses.
type TurnRecorder interface {
	SaveTurn(ctx context.Context, turn *store.Turn) error
}

// Config holds the dispatcher's collaborators.
type Config struct {
	Transport chat.Transport
	Registry  *agent.Registry
	// Kind is the agent kind resolved for every prompt. Defaults to KindDownload.
	Kind agent.Kind
	// Ledger is optional.
	Ledger     TurnRecorder
	Workers    int
	BufferSize int
	Logger     *slog.Logger
}

// Dispatcher reads prompts from a chat transport and runs them through agents.
type Dispatcher struct {
	transport  chat.Transport
	registry   *agent.Registry
	kind       agent.Kind
	ledger     TurnRecorder
	queue      *TaskQueue
	workers    int
	bufferSize int
	seen       *ttlcache.Cache[struct{}]
	logger     *slog.Logger

	// busy holds, per agent ID with a run in progress, the prompts waiting
	// for that run to finish. Waiting prompts hold no worker.
	busyMu sync.Mutex
	busy   map[string][]chat.Prompt
}

// New creates a dispatcher. Transport and Registry are required.
func New(cfg Config) (*Dispatcher, error) {
	if cfg.Transport == nil {
		return nil, errors.New("dispatcher requires a chat transport")
	}
	if cfg.Registry == nil {
		return nil, errors.New("dispatcher requires an agent registry")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	kind := cfg.Kind
	if kind == "" {
		kind = agent.KindDownload
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	return &Dispatcher{
		transport:  cfg.Transport,
		registry:   cfg.Registry,
		kind:       kind,
		ledger:     cfg.Ledger,
		queue:      NewTaskQueue(logger),
		workers:    workers,
		bufferSize: bufferSize,
		seen:       ttlcache.New[struct{}](seenTTL, seenMaxSize),
		logger:     logger.With("component", "dispatch"),
		busy:       make(map[string][]chat.Prompt),
	}, nil
}

// Serve runs the worker pool and the prompt monitor until ctx is done or
// monitoring fails.
func (d *Dispatcher) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return d.queue.Run(gctx, d.workers)
	})
	g.Go(func() error {
		return d.Monitor(gctx)
	})

	d.logger.Info("dispatcher started", "workers", d.workers, "buffer_size", d.bufferSize)
	err := g.Wait()
	d.logger.Info("dispatcher stopped")
	return err
}

// Monitor consumes the transport's prompt stream and enqueues one unit of
// work per prompt. It returns nil when ctx is cancelled and the stream's
// error when the subscription fails.
func (d *Dispatcher) Monitor(ctx context.Context) error {
	for prompt, err := range d.transport.ReadPrompts(ctx, d.bufferSize) {
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error("prompt stream failed", "error", err)
			return fmt.Errorf("monitoring chat: %w", err)
		}

		if prompt.MessageID != "" {
			if _, fresh, _ := d.seen.GetOrCreate(prompt.MessageID, func() (struct{}, error) {
				return struct{}{}, nil
			}); !fresh {
				d.logger.Debug("dropping redelivered prompt", "message_id", prompt.MessageID)
				continue
			}
		}

		d.logger.Debug("prompt received",
			"chat_id", prompt.ChatID,
			"message_id", prompt.MessageID,
			"sender", prompt.Sender,
			"reply", prompt.IsReply(),
		)
		d.queue.Enqueue(func(ctx context.Context) {
			d.Handle(ctx, prompt)
		})
	}
	return nil
}

// Handle runs one prompt: it resolves the agent for the prompt's thread,
// streams the agent's responses back into the chat and correlates every
// sent reply with the agent. If the agent is already running, the prompt
// waits behind that run and Handle returns at once; the run that finishes
// re-enqueues it.
func (d *Dispatcher) Handle(ctx context.Context, prompt chat.Prompt) {
	logger := promptLogger(d.logger, prompt)

	var source agent.CorrelationKey
	if prompt.IsReply() {
		source = agent.Correlate(prompt.ReplyToMessageID, prompt.Sender)
	}

	a, err := d.registry.Resolve(d.kind, source)
	if err != nil {
		logger.Error("resolving agent", "error", err)
		return
	}

	if !d.claim(a, prompt) {
		logger.Debug("agent busy, prompt waiting", "agent_id", a.ID())
		return
	}
	d.runClaimed(ctx, a, prompt)
}

// claim marks a as running. When a is already running, prompt is parked
// behind the current run and claim reports false.
func (d *Dispatcher) claim(a *agent.Agent, prompt chat.Prompt) bool {
	d.busyMu.Lock()
	defer d.busyMu.Unlock()
	if waiting, running := d.busy[a.ID()]; running {
		d.busy[a.ID()] = append(waiting, prompt)
		return false
	}
	d.busy[a.ID()] = nil
	return true
}

// runClaimed runs prompt on a, which the caller has claimed, then hands the
// claim to the next waiting prompt or releases it.
func (d *Dispatcher) runClaimed(ctx context.Context, a *agent.Agent, prompt chat.Prompt) {
	defer d.release(a)

	logger := promptLogger(d.logger, prompt).With("agent_id", a.ID())
	for resp, err := range a.Run(ctx, prompt.Text) {
		if err != nil {
			logger.Error("agent run failed", "error", err)
			return
		}
		d.deliver(ctx, logger, prompt, a, resp)
	}
}

// release passes a's claim to its oldest waiting prompt through the queue,
// or marks a idle when nothing waits.
func (d *Dispatcher) release(a *agent.Agent) {
	d.busyMu.Lock()
	waiting := d.busy[a.ID()]
	if len(waiting) == 0 {
		delete(d.busy, a.ID())
		d.busyMu.Unlock()
		return
	}
	next := waiting[0]
	d.busy[a.ID()] = waiting[1:]
	d.busyMu.Unlock()

	d.queue.Enqueue(func(ctx context.Context) {
		d.runClaimed(ctx, a, next)
	})
}

func promptLogger(logger *slog.Logger, prompt chat.Prompt) *slog.Logger {
	return logger.With(
		"chat_id", prompt.ChatID,
		"message_id", prompt.MessageID,
		"sender", prompt.Sender,
	)
}

func (d *Dispatcher) deliver(ctx context.Context, logger *slog.Logger, prompt chat.Prompt, a *agent.Agent, resp *agent.Response) {
	html := chat.FormatResponse(resp)

	sentID, err := d.transport.SendResponse(ctx, prompt.ChatID, html, prompt.MessageID)
	if err != nil {
		logger.Error("sending response", "round", resp.Round, "error", err)
		return
	}
	d.registry.Associate(agent.Correlate(sentID, prompt.Sender), a)

	logger.Info("response delivered",
		"round", resp.Round,
		"stop_reason", resp.StopReason,
		"tool_calls", len(resp.ToolCalls),
		"reply_id", sentID,
	)

	if d.ledger == nil {
		return
	}
	toolCalls := "[]"
	if len(resp.ToolCalls) > 0 {
		data, err := json.Marshal(resp.ToolCalls)
		if err != nil {
			logger.Warn("encoding tool calls for ledger", "error", err)
		} else {
			toolCalls = string(data)
		}
	}
	turn := &store.Turn{
		AgentID:         a.ID(),
		ChatID:          prompt.ChatID,
		PromptMessageID: prompt.MessageID,
		ReplyMessageID:  sentID,
		Sender:          prompt.Sender,
		Prompt:          prompt.Text,
		Content:         resp.Content,
		StopReason:      resp.StopReason,
		ToolCallsJSON:   toolCalls,
		DepthExhausted:  resp.DepthExhausted,
		Round:           resp.Round,
	}
	if err := d.ledger.SaveTurn(ctx, turn); err != nil {
		logger.Warn("recording turn", "round", resp.Round, "error", err)
	}
}
