package types

import (
	"fmt"
	"math"
	"time"
)

// JobStatus is the lifecycle state of a ScrapingJob.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobType records what triggered a ScrapingJob.
type JobType string

const (
	JobManual    JobType = "manual"
	JobScheduled JobType = "scheduled"
	JobRetry     JobType = "retry"
)

// MaxJobRetries is the retry count at which a failed job stops scheduling
// further retries.
const MaxJobRetries = 3

// retryBackoff is indexed by retry count.
var retryBackoff = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	45 * time.Minute,
}

// RetryDelay returns the wait before retrying a job that failed with the
// given retry count. ok is false once retries are exhausted.
func RetryDelay(retryCount int) (delay time.Duration, ok bool) {
	if retryCount < 0 || retryCount >= MaxJobRetries || retryCount >= len(retryBackoff) {
		return 0, false
	}
	return retryBackoff[retryCount], true
}

// JobCounts aggregates per-candidate outcomes of one scrape.
type JobCounts struct {
	Found     int `json:"found"`
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
}

// ScrapingJob is the record of one attempt to scrape a single source.
//
// RetryCount is the number of failed attempts that preceded this one in its
// retry chain. It never changes on a job row; a retry job is created with the
// failed job's count plus one.
type ScrapingJob struct {
	ID                int64          `db:"id"                 json:"id"                      bson:"_id"`
	NewsSourceID      int64          `db:"news_source_id"     json:"news_source_id"          bson:"news_source_id"`
	Status            JobStatus      `db:"status"             json:"status"                  bson:"status"`
	Type              JobType        `db:"type"               json:"type"                    bson:"type"`
	StartedAt         *time.Time     `db:"started_at"         json:"started_at,omitempty"    bson:"started_at,omitempty"`
	CompletedAt       *time.Time     `db:"completed_at"       json:"completed_at,omitempty"  bson:"completed_at,omitempty"`
	DurationSeconds   *int           `db:"duration_seconds"   json:"duration_seconds"        bson:"duration_seconds,omitempty"`
	ArticlesFound     int            `db:"articles_found"     json:"articles_found"          bson:"articles_found"`
	ArticlesProcessed int            `db:"articles_processed" json:"articles_processed"      bson:"articles_processed"`
	ArticlesCreated   int            `db:"articles_created"   json:"articles_created"        bson:"articles_created"`
	ArticlesUpdated   int            `db:"articles_updated"   json:"articles_updated"        bson:"articles_updated"`
	ArticlesSkipped   int            `db:"articles_skipped"   json:"articles_skipped"        bson:"articles_skipped"`
	ErrorMessage      string         `db:"error_message"      json:"error_message,omitempty" bson:"error_message,omitempty"`
	ErrorDetails      map[string]any `db:"-"                  json:"error_details,omitempty" bson:"error_details,omitempty"`
	RetryCount        int            `db:"retry_count"        json:"retry_count"             bson:"retry_count"`
	NextRetryAt       *time.Time     `db:"next_retry_at"      json:"next_retry_at,omitempty" bson:"next_retry_at,omitempty"`
	ParentJobID       *int64         `db:"parent_job_id"      json:"parent_job_id,omitempty" bson:"parent_job_id,omitempty"`
	Metadata          map[string]any `db:"-"                  json:"metadata,omitempty"      bson:"metadata,omitempty"`
	Performance       map[string]any `db:"-"                  json:"performance,omitempty"   bson:"performance,omitempty"`
	CreatedAt         time.Time      `db:"created_at"         json:"created_at"              bson:"created_at"`
}

// NewScrapingJob creates a pending job for a source.
func NewScrapingJob(sourceID int64, jobType JobType, now time.Time) *ScrapingJob {
	return &ScrapingJob{
		NewsSourceID: sourceID,
		Status:       JobPending,
		Type:         jobType,
		Metadata:     make(map[string]any),
		Performance:  make(map[string]any),
		CreatedAt:    now,
	}
}

// NewRetryJob creates the follow-up job for a failed one.
func NewRetryJob(failed *ScrapingJob, now time.Time) *ScrapingJob {
	j := NewScrapingJob(failed.NewsSourceID, JobRetry, now)
	j.RetryCount = failed.RetryCount + 1
	parent := failed.ID
	j.ParentJobID = &parent
	j.Metadata["retry_of"] = failed.ID
	return j
}

// MarkRunning moves a pending job to running.
func (j *ScrapingJob) MarkRunning(now time.Time) error {
	if j.Status != JobPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobRunning)
	}
	j.Status = JobRunning
	t := now
	j.StartedAt = &t
	return nil
}

// MarkCompleted moves a running job to completed and records its counts.
func (j *ScrapingJob) MarkCompleted(now time.Time, counts JobCounts) error {
	if j.Status != JobRunning {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobCompleted)
	}
	j.Status = JobCompleted
	j.ArticlesFound = counts.Found
	j.ArticlesProcessed = counts.Processed
	j.ArticlesCreated = counts.Created
	j.ArticlesUpdated = counts.Updated
	j.ArticlesSkipped = counts.Skipped
	j.finish(now)
	return nil
}

// MarkFailed moves a pending or running job to failed and computes when it
// may be retried. RetryCount is left as is; NewRetryJob carries it plus one.
func (j *ScrapingJob) MarkFailed(now time.Time, cause error, details map[string]any) error {
	if j.Status != JobRunning && j.Status != JobPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobFailed)
	}
	j.Status = JobFailed
	if cause != nil {
		j.ErrorMessage = cause.Error()
	}
	if details == nil {
		details = make(map[string]any)
	}
	if cause != nil {
		details["error_type"] = fmt.Sprintf("%T", cause)
	}
	j.ErrorDetails = details
	j.finish(now)
	j.NextRetryAt = j.NextRetryTime(now)
	return nil
}

// NextRetryTime returns when a failure at now may be retried, or nil when the
// job's retries are exhausted.
func (j *ScrapingJob) NextRetryTime(now time.Time) *time.Time {
	delay, ok := RetryDelay(j.RetryCount)
	if !ok {
		return nil
	}
	t := now.Add(delay)
	return &t
}

// CanRetry reports whether a failed job is due for a retry at now.
func (j *ScrapingJob) CanRetry(now time.Time) bool {
	return j.Status == JobFailed && j.NextRetryAt != nil && !j.NextRetryAt.After(now)
}

// Counts returns the job's aggregated counters.
func (j *ScrapingJob) Counts() JobCounts {
	return JobCounts{
		Found:     j.ArticlesFound,
		Processed: j.ArticlesProcessed,
		Created:   j.ArticlesCreated,
		Updated:   j.ArticlesUpdated,
		Skipped:   j.ArticlesSkipped,
	}
}

// SuccessRate is created articles over found articles, in percent.
func (j *ScrapingJob) SuccessRate() float64 {
	if j.ArticlesFound == 0 {
		return 0
	}
	return math.Round(float64(j.ArticlesCreated)/float64(j.ArticlesFound)*10000) / 100
}

func (j *ScrapingJob) finish(now time.Time) {
	t := now
	j.CompletedAt = &t
	if j.StartedAt != nil {
		secs := int(now.Sub(*j.StartedAt) / time.Second)
		j.DurationSeconds = &secs
	}
}
