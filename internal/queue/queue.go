package queue

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by a closed backend.
var ErrClosed = errors.New("queue closed")

// Backend stores tasks until they are due.
type Backend interface {
	// Enqueue stores t in t.Queue, deliverable from t.AvailableAt.
	Enqueue(ctx context.Context, t *Task) error
	// Dequeue removes and returns the first task due at now, draining queues
	// in Queues order. It returns nil when nothing is due.
	Dequeue(ctx context.Context, now time.Time) (*Task, error)
	// Len returns the number of stored tasks, due or not.
	Len(ctx context.Context) (int, error)
	Close() error
	Name() string
}
