package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SmillingSword/news-reynra/internal/clock"
	"github.com/SmillingSword/news-reynra/internal/types"
)

type outcomeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *outcomeRecorder) ObserveTask(queue, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, queue+":"+outcome)
}

func newTestPool(handler Handler, policy Policy, opts ...PoolOption) (*Pool, *MemoryBackend) {
	b := NewMemoryBackend()
	opts = append([]PoolOption{WithPollInterval(5 * time.Millisecond)}, opts...)
	p := NewPool(b, handler, policy, clock.Real{}, testLogger, opts...)
	p.idleTick = 10 * time.Millisecond
	return p, b
}

func runWithDeadline(t *testing.T, p *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.RunUntilIdle(ctx)
	require.NoError(t, ctx.Err(), "pool did not go idle")
}

func enqueue(t *testing.T, p *Pool, sourceID int64, queue string) *Task {
	t.Helper()
	now := time.Now()
	task := &Task{ID: fmt.Sprint("task-", sourceID), SourceID: sourceID, Queue: queue, EnqueuedAt: now, AvailableAt: now}
	require.NoError(t, p.Enqueue(context.Background(), task))
	return task
}

func TestPoolRunsEveryTask(t *testing.T) {
	var seen sync.Map
	p, _ := newTestPool(func(ctx context.Context, task *Task) error {
		seen.Store(task.SourceID, task.Attempt)
		return nil
	}, defaultPolicy(), WithWorkers(3))

	for i := int64(1); i <= 5; i++ {
		enqueue(t, p, i, QueueDefault)
	}
	runWithDeadline(t, p)

	for i := int64(1); i <= 5; i++ {
		attempt, ok := seen.Load(i)
		require.True(t, ok, "source %d not processed", i)
		assert.Equal(t, 1, attempt)
	}
	assert.Equal(t, PoolStats{Processed: 5, Succeeded: 5}, p.Stats())
}

func TestPoolRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	policy := Policy{MaxAttempts: 3, Backoff: []time.Duration{0}}
	p, _ := newTestPool(func(ctx context.Context, task *Task) error {
		if calls.Add(1) < 3 {
			return errors.New("feed unreachable")
		}
		return nil
	}, policy)

	enqueue(t, p, 1, QueueDefault)
	runWithDeadline(t, p)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, PoolStats{Processed: 3, Succeeded: 1, Retried: 2}, p.Stats())
}

func TestPoolGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	var gaveUp []*Task
	var mu sync.Mutex
	rec := &outcomeRecorder{}

	policy := Policy{MaxAttempts: 3, Backoff: []time.Duration{0}}
	p, _ := newTestPool(func(ctx context.Context, task *Task) error {
		calls.Add(1)
		return errors.New("always broken")
	}, policy, WithTaskRecorder(rec), WithGiveUp(func(ctx context.Context, task *Task, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, ctx.Err())
		assert.EqualError(t, err, "always broken")
		gaveUp = append(gaveUp, task)
	}))

	enqueue(t, p, 1, QueueHigh)
	runWithDeadline(t, p)

	assert.Equal(t, int32(3), calls.Load())
	require.Len(t, gaveUp, 1)
	assert.Equal(t, 3, gaveUp[0].Attempt)
	assert.Equal(t, "always broken", gaveUp[0].LastError)
	assert.Equal(t, []string{"high:retried", "high:retried", "high:gave_up"}, rec.outcomes)
}

func TestPoolDropsDisabledSource(t *testing.T) {
	var gaveUp atomic.Bool
	p, _ := newTestPool(func(ctx context.Context, task *Task) error {
		return fmt.Errorf("source 1: %w", types.ErrSourceDisabled)
	}, defaultPolicy(), WithGiveUp(func(context.Context, *Task, error) { gaveUp.Store(true) }))

	enqueue(t, p, 1, QueueDefault)
	runWithDeadline(t, p)

	assert.False(t, gaveUp.Load())
	assert.Equal(t, int64(1), p.Stats().Dropped)
}

func TestPoolTaskTimeout(t *testing.T) {
	policy := Policy{MaxAttempts: 1}
	var gotErr error
	p, _ := newTestPool(func(ctx context.Context, task *Task) error {
		<-ctx.Done()
		return ctx.Err()
	}, policy, WithTaskTimeout(20*time.Millisecond), WithGiveUp(func(_ context.Context, _ *Task, err error) {
		gotErr = err
	}))

	enqueue(t, p, 1, QueueDefault)
	runWithDeadline(t, p)

	assert.ErrorIs(t, gotErr, context.DeadlineExceeded)
}

func TestPoolRecoversPanic(t *testing.T) {
	policy := Policy{MaxAttempts: 1}
	var gotErr error
	p, _ := newTestPool(func(ctx context.Context, task *Task) error {
		panic("nil selector")
	}, policy, WithGiveUp(func(_ context.Context, _ *Task, err error) { gotErr = err }))

	enqueue(t, p, 1, QueueDefault)
	runWithDeadline(t, p)

	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "nil selector")
}

func TestPoolRequeuesOnShutdown(t *testing.T) {
	started := make(chan struct{})
	p, b := newTestPool(func(ctx context.Context, task *Task) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, defaultPolicy())

	enqueue(t, p, 1, QueueDefault)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	<-started
	cancel()
	p.Wait()

	n, err := b.Len(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task, err := b.Dequeue(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, task.Attempt)
}
