package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SmillingSword/news-reynra/internal/clock"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// Handler runs one task. A returned error triggers redelivery under the
// pool's Policy.
type Handler func(ctx context.Context, t *Task) error

// GiveUpFunc is called once a task has exhausted its retries.
type GiveUpFunc func(ctx context.Context, t *Task, err error)

// Recorder observes task outcomes.
type Recorder interface {
	ObserveTask(queue, outcome string)
}

// Task outcomes reported to a Recorder.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetried   = "retried"
	OutcomeGaveUp    = "gave_up"
	OutcomeDropped   = "dropped"
)

// PoolStats is a point-in-time copy of pool counters.
type PoolStats struct {
	Processed int64
	Succeeded int64
	Retried   int64
	GaveUp    int64
	Dropped   int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithPollInterval sets how long an idle worker waits between polls.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.poll = d
		}
	}
}

// WithTaskTimeout bounds each handler call.
func WithTaskTimeout(d time.Duration) PoolOption {
	return func(p *Pool) { p.timeout = d }
}

// WithGiveUp registers the callback for exhausted tasks.
func WithGiveUp(fn GiveUpFunc) PoolOption {
	return func(p *Pool) { p.onGiveUp = fn }
}

// WithTaskRecorder reports task outcomes to r.
func WithTaskRecorder(r Recorder) PoolOption {
	return func(p *Pool) { p.recorder = r }
}

// Pool runs worker goroutines that poll a Backend and dispatch due tasks.
type Pool struct {
	backend  Backend
	handler  Handler
	policy   Policy
	clk      clock.Clock
	logger   *slog.Logger
	workers  int
	poll     time.Duration
	idleTick time.Duration
	timeout  time.Duration
	onGiveUp GiveUpFunc
	recorder Recorder

	wg          sync.WaitGroup
	idleWorkers atomic.Int32
	done        chan struct{}
	doneOnce    sync.Once

	processed atomic.Int64
	succeeded atomic.Int64
	retried   atomic.Int64
	gaveUp    atomic.Int64
	dropped   atomic.Int64
}

// NewPool creates a Pool. Call Start to launch workers.
func NewPool(backend Backend, handler Handler, policy Policy, clk clock.Clock, logger *slog.Logger, opts ...PoolOption) *Pool {
	p := &Pool{
		backend:  backend,
		handler:  handler,
		policy:   policy,
		clk:      clk,
		logger:   logger.With("component", "queue", "backend", backend.Name()),
		workers:  2,
		poll:     time.Second,
		idleTick: 200 * time.Millisecond,
		timeout:  300 * time.Second,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue stores a new task.
func (p *Pool) Enqueue(ctx context.Context, t *Task) error {
	if err := p.backend.Enqueue(ctx, t); err != nil {
		return err
	}
	p.logger.Debug("task enqueued", "task_id", t.ID, "source_id", t.SourceID, "queue", t.Queue)
	return nil
}

// Start launches the worker goroutines. Workers stop when ctx is done or
// Stop is called.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("starting worker pool", "workers", p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals workers to exit after their current task.
func (p *Pool) Stop() {
	p.doneOnce.Do(func() { close(p.done) })
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// RunUntilIdle starts the workers and returns once every worker is idle and
// the backend is empty, including tasks waiting out a backoff.
func (p *Pool) RunUntilIdle(ctx context.Context) {
	p.Start(ctx)
	go p.idleMonitor(ctx)
	p.Wait()
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Processed: p.processed.Load(),
		Succeeded: p.succeeded.Load(),
		Retried:   p.retried.Load(),
		GaveUp:    p.gaveUp.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// idleMonitor stops the pool once it has been idle with an empty backend
// for three consecutive checks.
func (p *Pool) idleMonitor(ctx context.Context) {
	ticker := time.NewTicker(p.idleTick)
	defer ticker.Stop()
	idleStreak := 0

	for {
		select {
		case <-ctx.Done():
			p.Stop()
			return
		case <-p.done:
			return
		case <-ticker.C:
			n, err := p.backend.Len(ctx)
			if err != nil {
				p.logger.Warn("queue length check failed", "error", err)
				idleStreak = 0
				continue
			}
			if int(p.idleWorkers.Load()) >= p.workers && n == 0 {
				idleStreak++
				if idleStreak >= 3 {
					p.logger.Info("all workers idle, queue empty")
					p.Stop()
					return
				}
			} else {
				idleStreak = 0
			}
		}
	}
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := p.logger.With("worker_id", id)

	for {
		if p.stopping(ctx) {
			return
		}
		p.idleWorkers.Add(1)
		var t *Task
		for {
			var err error
			t, err = p.backend.Dequeue(ctx, p.clk.Now())
			if err != nil {
				if errors.Is(err, ErrClosed) {
					p.idleWorkers.Add(-1)
					return
				}
				logger.Warn("dequeue failed", "error", err)
			}
			if t != nil {
				break
			}
			if !p.wait(ctx) {
				p.idleWorkers.Add(-1)
				return
			}
		}
		p.idleWorkers.Add(-1)

		p.process(ctx, logger, t)
	}
}

func (p *Pool) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-p.done:
		return true
	default:
		return false
	}
}

// wait sleeps one poll interval. It reports false when the worker should exit.
func (p *Pool) wait(ctx context.Context) bool {
	timer := time.NewTimer(p.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-p.done:
		return false
	case <-timer.C:
		return true
	}
}

func (p *Pool) process(ctx context.Context, logger *slog.Logger, t *Task) {
	t.Attempt++
	p.processed.Add(1)
	logger = logger.With("task_id", t.ID, "source_id", t.SourceID, "queue", t.Queue, "attempt", t.Attempt)

	err := p.run(ctx, t)
	if err == nil {
		p.succeeded.Add(1)
		p.observe(t, OutcomeSucceeded)
		logger.Debug("task succeeded")
		return
	}

	// Keep the task when the pool itself is shutting down.
	bg := context.WithoutCancel(ctx)
	if ctx.Err() != nil {
		t.Attempt--
		if qerr := p.backend.Enqueue(bg, t); qerr != nil {
			logger.Error("requeue on shutdown failed", "error", qerr)
		}
		return
	}

	if errors.Is(err, types.ErrSourceDisabled) || errors.Is(err, types.ErrNotFound) {
		p.dropped.Add(1)
		p.observe(t, OutcomeDropped)
		logger.Warn("task dropped", "error", err)
		return
	}

	t.LastError = err.Error()
	if at, ok := p.policy.Next(t, p.clk.Now()); ok {
		t.AvailableAt = at
		if qerr := p.backend.Enqueue(bg, t); qerr != nil {
			logger.Error("requeue failed", "error", qerr)
		} else {
			p.retried.Add(1)
			p.observe(t, OutcomeRetried)
			logger.Warn("retrying task", "error", err, "retry_at", at)
			return
		}
	}

	p.gaveUp.Add(1)
	p.observe(t, OutcomeGaveUp)
	logger.Error("task failed permanently", "error", err)
	if p.onGiveUp != nil {
		p.onGiveUp(bg, t, err)
	}
}

// run calls the handler under the task timeout and reports a panic as an
// error.
func (p *Pool) run(ctx context.Context, t *Task) (err error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return p.handler(ctx, t)
}

func (p *Pool) observe(t *Task, outcome string) {
	if p.recorder != nil {
		p.recorder.ObserveTask(t.Queue, outcome)
	}
}
