// ABOUTME: Unbounded FIFO work queue drained by a fixed pool of workers.
// ABOUTME: Enqueue never blocks; panics in a task are recovered and logged.

package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Task is one unit of work. It receives the queue's run context.
type Task func(ctx context.Context)

// TaskQueue is an unbounded FIFO of tasks.
type TaskQueue struct {
	mu      sync.Mutex
	pending []Task
	notify  chan struct{}
	logger  *slog.Logger
}

// NewTaskQueue creates an empty queue.
func NewTaskQueue(logger *slog.Logger) *TaskQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskQueue{
		notify: make(chan struct{}, 1),
		logger: logger.With("component", "taskqueue"),
	}
}

// Enqueue appends task to the queue. It never blocks.
func (q *TaskQueue) Enqueue(task Task) {
	q.mu.Lock()
	q.pending = append(q.pending, task)
	q.mu.Unlock()
	q.signal()
}

// Len returns the number of tasks waiting for a worker.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Run starts workers goroutines and blocks until ctx is done and every
// running task has returned. Tasks still queued at that point are dropped.
func (q *TaskQueue) Run(ctx context.Context, workers int) error {
	if workers <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", workers)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range workers {
		g.Go(func() error {
			q.work(gctx, i)
			return nil
		})
	}
	q.logger.Debug("task queue started", "workers", workers)

	err := g.Wait()

	q.mu.Lock()
	dropped := len(q.pending)
	q.pending = nil
	q.mu.Unlock()
	if dropped > 0 {
		q.logger.Warn("task queue stopped with pending work", "dropped", dropped)
	} else {
		q.logger.Debug("task queue stopped")
	}
	return err
}

func (q *TaskQueue) work(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		if task, ok := q.pop(); ok {
			q.runTask(ctx, worker, task)
			continue
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return
		}
	}
}

// pop removes the oldest task. When more remain it wakes another worker.
func (q *TaskQueue) pop() (Task, bool) {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return nil, false
	}
	task := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	more := len(q.pending) > 0
	q.mu.Unlock()

	if more {
		q.signal()
	}
	return task, true
}

func (q *TaskQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *TaskQueue) runTask(ctx context.Context, worker int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("task panicked",
				"worker", worker,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	task(ctx)
}
