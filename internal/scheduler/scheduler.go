// Package scheduler decides which sources to scrape and dispatches the
// scrapes, either inline or through a task queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/SmillingSword/news-reynra/internal/clock"
	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/queue"
	"github.com/SmillingSword/news-reynra/internal/storage"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// Scraper runs scrapes of a single source.
type Scraper interface {
	ScrapeSource(ctx context.Context, source *types.NewsSource, jobType types.JobType) (*types.ScrapingJob, error)
	RetryJob(ctx context.Context, source *types.NewsSource, failed *types.ScrapingJob) (*types.ScrapingJob, error)
}

// Store is the persistence the scheduler needs.
type Store interface {
	storage.SourceStore
	storage.JobStore
}

// Filter narrows source selection.
type Filter struct {
	// Sources holds IDs or slugs; empty selects every source.
	Sources    []string
	GamingOnly bool
	// Force ignores next_scrape_at and auto_scraping_enabled. Inactive
	// sources are still skipped.
	Force bool
}

func (f Filter) matches(s *types.NewsSource) bool {
	if f.GamingOnly && !s.IsGamingSource {
		return false
	}
	if len(f.Sources) == 0 {
		return true
	}
	id := strconv.FormatInt(s.ID, 10)
	return slices.ContainsFunc(f.Sources, func(v string) bool {
		return v == id || v == s.Slug
	})
}

// Result describes the dispatch of one source.
type Result struct {
	Source *types.NewsSource
	// Job is set for inline scrapes.
	Job *types.ScrapingJob
	// TaskID is set when the scrape was queued.
	TaskID string
	Err    error
}

// Scheduler selects ready sources and dispatches scrapes.
type Scheduler struct {
	store   Store
	scraper Scraper
	clock   clock.Clock
	cfg     config.QueueConfig
	pool    *queue.Pool
	base    *slog.Logger
	logger  *slog.Logger
}

// New creates a Scheduler that scrapes inline until UseQueue is called.
func New(store Store, scraper Scraper, clk clock.Clock, cfg config.QueueConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:   store,
		scraper: scraper,
		clock:   clk,
		cfg:     cfg,
		base:    logger,
		logger:  logger.With("component", "scheduler"),
	}
}

// UseQueue builds a worker pool over backend whose tasks run through this
// scheduler, and switches dispatch to enqueueing. The caller starts the pool.
func (s *Scheduler) UseQueue(backend queue.Backend, opts ...queue.PoolOption) *queue.Pool {
	opts = append([]queue.PoolOption{
		queue.WithWorkers(s.cfg.Workers),
		queue.WithPollInterval(s.cfg.PollInterval),
		queue.WithGiveUp(s.GiveUp),
	}, opts...)
	s.pool = queue.NewPool(backend, s.HandleTask, queue.PolicyFrom(s.cfg), s.clock, s.base, opts...)
	return s.pool
}

// Async reports whether dispatch goes through the queue.
func (s *Scheduler) Async() bool {
	return s.pool != nil
}

// SelectSources returns the active sources matching f that are due now, or
// every matching active source when f.Force is set.
func (s *Scheduler) SelectSources(ctx context.Context, f Filter) ([]*types.NewsSource, error) {
	all, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	now := s.clock.Now()
	var ready []*types.NewsSource
	for _, src := range all {
		if !src.Active || !f.matches(src) {
			continue
		}
		if !f.Force && !src.IsReady(now) {
			continue
		}
		ready = append(ready, src)
	}
	return ready, nil
}

// Run selects sources with f and dispatches a scrape for each.
func (s *Scheduler) Run(ctx context.Context, f Filter, jobType types.JobType) ([]Result, error) {
	sources, err := s.SelectSources(ctx, f)
	if err != nil {
		return nil, err
	}
	s.logger.Info("dispatching scrapes", "sources", len(sources), "async", s.Async(), "force", f.Force)
	return s.Dispatch(ctx, sources, jobType), nil
}

// Dispatch scrapes each source inline, or enqueues one task per source when
// a queue is attached. Inline scrapes run one source at a time.
func (s *Scheduler) Dispatch(ctx context.Context, sources []*types.NewsSource, jobType types.JobType) []Result {
	results := make([]Result, 0, len(sources))
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		if s.pool != nil {
			t := queue.NewTask(src, jobType, s.cfg.HighPriorityTrust, s.clock.Now())
			err := s.pool.Enqueue(ctx, t)
			results = append(results, Result{Source: src, TaskID: t.ID, Err: err})
			continue
		}
		job, err := s.scraper.ScrapeSource(ctx, src, jobType)
		results = append(results, Result{Source: src, Job: job, Err: err})
	}
	return results
}

// RetryFailed re-runs failed jobs whose next_retry_at has passed and whose
// source has not been scraped since.
func (s *Scheduler) RetryFailed(ctx context.Context) ([]Result, error) {
	jobs, err := s.store.ListRetryableJobs(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list retryable jobs: %w", err)
	}
	s.logger.Info("retrying failed jobs", "jobs", len(jobs))

	results := make([]Result, 0, len(jobs))
	for _, failed := range jobs {
		if ctx.Err() != nil {
			break
		}
		src, err := s.store.GetSource(ctx, failed.NewsSourceID)
		if err != nil {
			s.logger.Warn("retry skipped, source missing", "job_id", failed.ID, "error", err)
			continue
		}
		if !src.Active {
			continue
		}
		if s.pool != nil {
			t := queue.NewTask(src, types.JobRetry, s.cfg.HighPriorityTrust, s.clock.Now())
			t.RetryOfJobID = failed.ID
			err := s.pool.Enqueue(ctx, t)
			results = append(results, Result{Source: src, TaskID: t.ID, Err: err})
			continue
		}
		job, err := s.scraper.RetryJob(ctx, src, failed)
		results = append(results, Result{Source: src, Job: job, Err: err})
	}
	return results, nil
}

// HandleTask runs a queued scrape. The source is reloaded so that counters
// written by earlier attempts are not lost.
func (s *Scheduler) HandleTask(ctx context.Context, t *queue.Task) error {
	src, err := s.store.GetSource(ctx, t.SourceID)
	if err != nil {
		return fmt.Errorf("load source %d: %w", t.SourceID, err)
	}
	if t.RetryOfJobID != 0 {
		failed, err := s.store.GetJob(ctx, t.RetryOfJobID)
		if err != nil {
			return fmt.Errorf("load job %d: %w", t.RetryOfJobID, err)
		}
		_, err = s.scraper.RetryJob(ctx, src, failed)
		return err
	}
	_, err = s.scraper.ScrapeSource(ctx, src, t.JobType)
	return err
}

// GiveUp records a permanent queue failure against the task's source and
// turns off automatic scraping once failures reach the configured threshold.
func (s *Scheduler) GiveUp(ctx context.Context, t *queue.Task, cause error) {
	logger := s.logger.With("source_id", t.SourceID, "task_id", t.ID)
	src, err := s.store.GetSource(ctx, t.SourceID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			logger.Error("load source after give-up failed", "error", err)
		}
		return
	}
	src.RecordFailure(s.clock.Now())
	if src.DisableIfFailing(s.cfg.DisableAfterFailed) {
		logger.Warn("auto scraping disabled", "source", src.Slug, "failed_scrapes", src.FailedScrapes, "cause", cause)
	}
	if err := s.store.UpdateSourceState(ctx, src); err != nil {
		logger.Error("update source state failed", "error", err)
	}
}
