// Package triggers connects application events to the analysis scheduler.
//
// Event hooks are fire-and-forget for the caller: the work is queued on a
// supervised TaskRunner so a slow or failing analysis never blocks the
// application path that raised the event. One worker drains the queue, so
// trigger-driven analyses stay sequential like everything else that reaches
// the classifier.
package triggers

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// taskQueueSize bounds the pending-task queue. Tasks arriving at a full queue
// are dropped with a warning rather than blocking the event path.
const taskQueueSize = 64

// TaskFunc is the work executed for one named task.
type TaskFunc func(ctx context.Context) error

type task struct {
	name string
	ctx  context.Context
	fn   TaskFunc
}

// TaskRunner executes named tasks one at a time from a bounded queue, with
// panic recovery and structured completion logging.
type TaskRunner struct {
	mu     sync.Mutex
	tasks  chan task
	wg     sync.WaitGroup
	closed bool
	done   chan struct{}
}

// NewTaskRunner creates a task runner and starts its worker.
func NewTaskRunner() *TaskRunner {
	r := &TaskRunner{
		tasks: make(chan task, taskQueueSize),
		done:  make(chan struct{}),
	}
	go r.work()
	return r
}

func (r *TaskRunner) work() {
	defer close(r.done)
	for t := range r.tasks {
		r.runOne(t)
	}
}

func (r *TaskRunner) runOne(t task) {
	defer r.wg.Done()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("TaskRunner: recovered from task panic", "task", t.name, "panic", rec)
		}
	}()

	start := time.Now()
	slog.Debug("TaskRunner: task starting", "task", t.name)
	if err := t.fn(t.ctx); err != nil {
		slog.Error("TaskRunner: task failed", "task", t.name, "error", err, "duration", time.Since(start))
		return
	}
	slog.Debug("TaskRunner: task completed", "task", t.name, "duration", time.Since(start))
}

// Go queues fn to run under the given name. The task keeps running even if
// the caller's request context is canceled; the event handler returns
// immediately. Queuing on a closed runner is a no-op.
func (r *TaskRunner) Go(ctx context.Context, name string, fn TaskFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		slog.Warn("TaskRunner.Go: runner closed, dropping task", "task", name)
		return
	}
	r.wg.Add(1)
	// Detach from the caller's cancellation before the queue, not inside the
	// worker: the request that raised the event may be long gone by then.
	r.push(task{name: name, ctx: context.WithoutCancel(ctx), fn: fn})
}

// GoAfter queues fn like Go, but only after the delay elapses. Wait covers
// the delayed task from the moment GoAfter returns.
func (r *TaskRunner) GoAfter(ctx context.Context, delay time.Duration, name string, fn TaskFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		slog.Warn("TaskRunner.GoAfter: runner closed, dropping task", "task", name)
		return
	}
	r.wg.Add(1)
	t := task{name: name, ctx: context.WithoutCancel(ctx), fn: fn}
	if delay <= 0 {
		r.push(t)
		return
	}
	time.AfterFunc(delay, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			r.wg.Done()
			slog.Warn("TaskRunner.GoAfter: runner closed before delayed task fired", "task", name)
			return
		}
		r.push(t)
	})
}

// push requires r.mu held and the wg count already taken.
func (r *TaskRunner) push(t task) {
	select {
	case r.tasks <- t:
	default:
		r.wg.Done()
		slog.Warn("TaskRunner: queue full, dropping task", "task", t.name)
	}
}

// Wait blocks until all queued and delayed tasks have finished. Used by tests
// and graceful shutdown.
func (r *TaskRunner) Wait() {
	r.wg.Wait()
}

// Close stops accepting new tasks, lets the worker drain the queue, and waits
// for any still-pending delayed tasks to resolve.
func (r *TaskRunner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.tasks)
	r.mu.Unlock()

	<-r.done
	r.wg.Wait()
	slog.Debug("TaskRunner.Close: all tasks drained")
}
