package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps one min-heap per queue ordered by availability.
type MemoryBackend struct {
	mu     sync.Mutex
	queues map[string]*taskHeap
	closed bool
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	b := &MemoryBackend{queues: make(map[string]*taskHeap, len(Queues))}
	for _, q := range Queues {
		h := make(taskHeap, 0, 64)
		b.queues[q] = &h
	}
	return b
}

func (b *MemoryBackend) Name() string { return "memory" }

func (b *MemoryBackend) Enqueue(ctx context.Context, t *Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	h, ok := b.queues[t.Queue]
	if !ok {
		h = b.queues[QueueDefault]
		t.Queue = QueueDefault
	}
	clone := *t
	heap.Push(h, &clone)
	return nil
}

func (b *MemoryBackend) Dequeue(ctx context.Context, now time.Time) (*Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	for _, q := range Queues {
		h := b.queues[q]
		if h.Len() == 0 || (*h)[0].AvailableAt.After(now) {
			continue
		}
		return heap.Pop(h).(*Task), nil
	}
	return nil, nil
}

func (b *MemoryBackend) Len(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, h := range b.queues {
		n += h.Len()
	}
	return n, nil
}

// Close drops queued tasks.
func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// --- Priority Queue Implementation ---

type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].AvailableAt.Equal(h[j].AvailableAt) {
		return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
	}
	return h[i].AvailableAt.Before(h[j].AvailableAt)
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*Task))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // GC
	*h = old[:n-1]
	return item
}
