// Package queue dispatches per-source scrape tasks to a worker pool with
// bounded retries.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// Queue names, in dequeue order.
const (
	QueueHigh    = "high"
	QueueDefault = "default"
)

// Queues lists the queue names in the order workers drain them.
var Queues = []string{QueueHigh, QueueDefault}

// Task asks a worker to scrape one source.
type Task struct {
	ID       string        `json:"id"`
	SourceID int64         `json:"source_id"`
	JobType  types.JobType `json:"job_type"`
	// RetryOfJobID is set when the task retries a failed ScrapingJob.
	RetryOfJobID int64  `json:"retry_of_job_id,omitempty"`
	Queue        string `json:"queue"`
	// Attempt counts deliveries, starting at 1 on first delivery.
	Attempt     int       `json:"attempt"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	AvailableAt time.Time `json:"available_at"`
	LastError   string    `json:"last_error,omitempty"`
}

// NewTask creates a task for source, routed by its trust score.
func NewTask(source *types.NewsSource, jobType types.JobType, highTrust int, now time.Time) *Task {
	return &Task{
		ID:          uuid.NewString(),
		SourceID:    source.ID,
		JobType:     jobType,
		Queue:       Route(source.TrustScore, highTrust),
		EnqueuedAt:  now,
		AvailableAt: now,
	}
}

// Route picks the queue for a source trust score.
func Route(trustScore, highTrust int) string {
	if highTrust > 0 && trustScore >= highTrust {
		return QueueHigh
	}
	return QueueDefault
}

// Policy bounds redelivery of failed tasks.
type Policy struct {
	MaxAttempts int
	// Backoff is indexed by attempt-1; the last entry repeats.
	Backoff []time.Duration
	// RetryUntil caps the time from first enqueue to the last redelivery.
	RetryUntil time.Duration
}

// PolicyFrom builds a Policy from the queue configuration.
func PolicyFrom(cfg config.QueueConfig) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     cfg.Backoff,
		RetryUntil:  cfg.RetryUntil,
	}
}

// Next returns when a task that just failed its attempt may run again. ok is
// false when the task has exhausted its attempts or its retry window.
func (p Policy) Next(t *Task, now time.Time) (at time.Time, ok bool) {
	if p.MaxAttempts > 0 && t.Attempt >= p.MaxAttempts {
		return time.Time{}, false
	}
	var delay time.Duration
	if n := len(p.Backoff); n > 0 {
		i := t.Attempt - 1
		if i < 0 {
			i = 0
		}
		if i >= n {
			i = n - 1
		}
		delay = p.Backoff[i]
	}
	at = now.Add(delay)
	if p.RetryUntil > 0 && at.After(t.EnqueuedAt.Add(p.RetryUntil)) {
		return time.Time{}, false
	}
	return at, true
}
