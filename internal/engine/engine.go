// Package engine runs a scrape of one news source end to end: extract,
// filter, rewrite and persist, recorded as a ScrapingJob.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/SmillingSword/news-reynra/internal/catalog"
	"github.com/SmillingSword/news-reynra/internal/clock"
	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/pipeline"
	"github.com/SmillingSword/news-reynra/internal/rewriter"
	"github.com/SmillingSword/news-reynra/internal/storage"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// Extractor produces candidates for a source.
type Extractor interface {
	Extract(ctx context.Context, source *types.NewsSource) ([]types.Candidate, error)
}

// Rewriter turns raw article text into an original article.
type Rewriter interface {
	Rewrite(ctx context.Context, raw, title, category string) types.RewriteResult
}

// Store is the persistence the engine needs.
type Store interface {
	storage.JobStore
	storage.ArticleStore
	UpdateSourceState(ctx context.Context, source *types.NewsSource) error
}

// Sink receives dry-run records instead of persisting articles.
type Sink interface {
	Write(rec storage.DryRunRecord) error
}

// Recorder observes job and candidate outcomes.
type Recorder interface {
	ObserveJob(status types.JobStatus, d time.Duration)
	ObserveArticle(action types.Action, reason string)
}

// Stats tracks engine totals across scrapes.
type Stats struct {
	JobsCompleted   atomic.Int64
	JobsFailed      atomic.Int64
	ArticlesCreated atomic.Int64
	ArticlesSkipped atomic.Int64
}

// Snapshot returns a copy of stats safe for reading.
func (s *Stats) Snapshot() map[string]int64 {
	return map[string]int64{
		"jobs_completed":   s.JobsCompleted.Load(),
		"jobs_failed":      s.JobsFailed.Load(),
		"articles_created": s.ArticlesCreated.Load(),
		"articles_skipped": s.ArticlesSkipped.Load(),
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink switches the engine to dry-run mode: nothing is persisted and
// every article that would have been created is written to sink.
func WithSink(sink Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithRecorder registers a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// Engine is the scraping orchestrator.
type Engine struct {
	extractor     Extractor
	rewriter      Rewriter
	store         Store
	clock         clock.Clock
	defaults      types.ScrapeDefaults
	defaultAuthor string
	sink          Sink
	recorder      Recorder
	stats         Stats
	logger        *slog.Logger
}

// New creates an Engine.
func New(cfg config.ScraperConfig, ex Extractor, rw Rewriter, store Store, clk clock.Clock, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		extractor: ex,
		rewriter:  rw,
		store:     store,
		clock:     clk,
		defaults: types.ScrapeDefaults{
			MaxArticlesPerScrape: cfg.MaxArticlesPerScrape,
			RequestDelay:         cfg.RequestDelay,
			MinContentLength:     cfg.MinContentLength,
		},
		defaultAuthor: cfg.DefaultAuthor,
		logger:        logger.With("component", "engine"),
	}
	if e.defaultAuthor == "" {
		e.defaultAuthor = "Redaksi"
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats returns the engine totals.
func (e *Engine) Stats() *Stats {
	return &e.stats
}

// DryRun reports whether the engine writes to a sink instead of storage.
func (e *Engine) DryRun() bool {
	return e.sink != nil
}

// ScrapeSource runs one scrape of source and returns its job. The job is
// returned even when the scrape fails; the error is the failure cause.
func (e *Engine) ScrapeSource(ctx context.Context, source *types.NewsSource, jobType types.JobType) (*types.ScrapingJob, error) {
	return e.run(ctx, source, types.NewScrapingJob(source.ID, jobType, e.clock.Now()))
}

// RetryJob runs a retry scrape of the failed job's source.
func (e *Engine) RetryJob(ctx context.Context, source *types.NewsSource, failed *types.ScrapingJob) (*types.ScrapingJob, error) {
	if failed.NewsSourceID != source.ID {
		return nil, fmt.Errorf("job %d belongs to source %d, not %d", failed.ID, failed.NewsSourceID, source.ID)
	}
	return e.run(ctx, source, types.NewRetryJob(failed, e.clock.Now()))
}

func (e *Engine) run(ctx context.Context, source *types.NewsSource, job *types.ScrapingJob) (*types.ScrapingJob, error) {
	if !source.Active {
		return nil, fmt.Errorf("%w: %s", types.ErrSourceDisabled, source.Slug)
	}
	logger := e.logger.With("source", source.Slug, "job_type", job.Type)

	job.Metadata["source_slug"] = source.Slug
	if e.DryRun() {
		job.Metadata["dry_run"] = true
	} else if err := e.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	logger = logger.With("job_id", job.ID)

	if err := job.MarkRunning(e.clock.Now()); err != nil {
		return job, err
	}
	e.saveJob(ctx, job, logger)
	logger.Info("scrape started")

	counts, perf, err := e.process(ctx, source, logger)
	now := e.clock.Now()

	if err != nil {
		details := map[string]any{"source": source.Slug, "counts": counts}
		_ = job.MarkFailed(now, err, details)
		job.Performance = perf
		source.RecordFailure(now)
		e.stats.JobsFailed.Add(1)
		logger.Error("scrape failed", "error", err, "retry_count", job.RetryCount, "next_retry_at", job.NextRetryAt)
	} else {
		_ = job.MarkCompleted(now, counts)
		job.Performance = perf
		source.RecordSuccess(now)
		e.stats.JobsCompleted.Add(1)
		logger.Info("scrape completed",
			"found", counts.Found,
			"processed", counts.Processed,
			"created", counts.Created,
			"skipped", counts.Skipped,
			"duration", now.Sub(*job.StartedAt),
		)
	}

	if e.recorder != nil {
		e.recorder.ObserveJob(job.Status, now.Sub(*job.StartedAt))
	}

	// Bookkeeping must survive a cancelled scrape.
	persistCtx := context.WithoutCancel(ctx)
	e.saveJob(persistCtx, job, logger)
	if !e.DryRun() {
		if serr := e.store.UpdateSourceState(persistCtx, source); serr != nil {
			logger.Error("update source state failed", "error", serr)
		}
	}
	return job, err
}

func (e *Engine) saveJob(ctx context.Context, job *types.ScrapingJob, logger *slog.Logger) {
	if e.DryRun() {
		return
	}
	if err := e.store.UpdateJob(ctx, job); err != nil {
		logger.Error("update job failed", "status", job.Status, "error", err)
	}
}

// process extracts, filters and caps the candidates, then handles each in
// order. Extraction failures and cancellation fail the job; per-candidate
// failures are skips.
func (e *Engine) process(ctx context.Context, source *types.NewsSource, logger *slog.Logger) (types.JobCounts, map[string]any, error) {
	var counts types.JobCounts
	perf := make(map[string]any)
	cfg := source.ScrapingConfig.WithDefaults(e.defaults)

	start := e.clock.Now()
	candidates, err := e.extractor.Extract(ctx, source)
	perf["extract_ms"] = e.clock.Now().Sub(start).Milliseconds()
	if err != nil {
		return counts, perf, fmt.Errorf("extract: %w", err)
	}
	perf["extracted"] = len(candidates)

	candidates = pipeline.NewFilter(cfg.Filters, logger).Run(candidates)
	if limit := cfg.Limits.MaxArticlesPerScrape; limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	counts.Found = len(candidates)

	seen := NewDeduplicator(len(candidates))
	delay := cfg.Delay()
	for i := range candidates {
		if i > 0 {
			if err := e.clock.Sleep(ctx, delay); err != nil {
				return counts, perf, err
			}
		}
		if err := ctx.Err(); err != nil {
			return counts, perf, err
		}

		c := &candidates[i]
		counts.Processed++
		res, err := e.processCandidate(ctx, source, c, seen, logger)
		if err != nil {
			if ctx.Err() != nil {
				return counts, perf, ctx.Err()
			}
			res = types.CandidateResult{Action: types.ActionSkipped, Reason: types.ReasonError, Title: c.Title, URL: c.URL}
			logger.Warn("candidate failed", "url", c.URL, "title", c.Title, "error", err)
		}

		switch res.Action {
		case types.ActionCreated:
			counts.Created++
			e.stats.ArticlesCreated.Add(1)
		case types.ActionUpdated:
			counts.Updated++
		default:
			counts.Skipped++
			e.stats.ArticlesSkipped.Add(1)
		}
		if e.recorder != nil {
			e.recorder.ObserveArticle(res.Action, res.Reason)
		}
		logger.Debug("candidate handled", "url", c.URL, "action", res.Action, "reason", res.Reason, "article_id", res.ArticleID)
	}

	perf["unique_candidates"] = seen.Count()
	perf["total_ms"] = e.clock.Now().Sub(start).Milliseconds()
	return counts, perf, nil
}

func (e *Engine) processCandidate(ctx context.Context, source *types.NewsSource, c *types.Candidate, seen *Deduplicator, logger *slog.Logger) (types.CandidateResult, error) {
	result := types.CandidateResult{Title: c.Title, URL: c.URL}
	skipDuplicate := func() (types.CandidateResult, error) {
		result.Action = types.ActionSkipped
		result.Reason = types.ReasonDuplicate
		return result, nil
	}

	if seen.Seen(c) {
		return skipDuplicate()
	}
	seen.Mark(c)

	titleKey := types.NormalizeTitle(c.Title)
	sourceSlug := types.Slugify(c.Title)
	_, err := e.store.FindDuplicate(ctx, titleKey, sourceSlug)
	switch {
	case err == nil:
		return skipDuplicate()
	case !errors.Is(err, types.ErrNotFound):
		return result, fmt.Errorf("duplicate lookup: %w", err)
	}

	var categories []catalog.Category
	if source.IsGamingSource {
		categories = catalog.Categorize(c.Text())
	}
	hint := ""
	if len(categories) > 0 {
		hint = categories[0].Name
	}

	rw := e.rewriter.Rewrite(ctx, c.Content, c.Title, hint)

	if e.DryRun() {
		rec := storage.DryRunRecord{
			Source:     source.Slug,
			Slug:       types.Slugify(rw.Title),
			Candidate:  *c,
			Rewrite:    rw,
			Categories: categorySlugs(categories),
			Timestamp:  e.clock.Now(),
		}
		if err := e.sink.Write(rec); err != nil {
			return result, fmt.Errorf("dry-run sink: %w", err)
		}
		result.Action = types.ActionCreated
		return result, nil
	}

	authorName := c.AuthorName
	if authorName == "" || types.Slugify(authorName) == "" {
		authorName = e.defaultAuthor
	}
	author, err := e.store.ResolveAuthor(ctx, authorName)
	if err != nil {
		return result, fmt.Errorf("resolve author: %w", err)
	}

	slug, err := uniqueSlug(ctx, e.store, rw.Title, c.URL)
	if err != nil {
		if errors.Is(err, types.ErrDuplicate) {
			return skipDuplicate()
		}
		return result, fmt.Errorf("slug: %w", err)
	}

	article := &types.Article{
		Title:        rw.Title,
		Slug:         slug,
		TitleKey:     titleKey,
		SourceSlug:   sourceSlug,
		Content:      rw.Content,
		Excerpt:      rw.Excerpt,
		ImageURL:     c.ImageURL,
		AuthorID:     author.ID,
		NewsSourceID: source.ID,
		SourceURL:    c.URL,
		Status:       types.ArticleDraft,
		Meta:         provenance(source, c, rw),
		CreatedAt:    e.clock.Now(),
	}
	if err := e.store.CreateArticle(ctx, article); err != nil {
		if errors.Is(err, types.ErrDuplicate) {
			return skipDuplicate()
		}
		return result, fmt.Errorf("create article: %w", err)
	}
	result.Action = types.ActionCreated
	result.ArticleID = article.ID

	if len(categories) > 0 {
		cats := make([]types.Category, len(categories))
		for i, cat := range categories {
			cats[i] = types.Category{Name: cat.Name, Slug: cat.Slug}
		}
		if err := e.store.AttachCategories(ctx, article.ID, cats); err != nil {
			logger.Warn("attach categories failed", "article_id", article.ID, "error", err)
		}
	}
	return result, nil
}

// provenance is the meta map stored with every article.
func provenance(source *types.NewsSource, c *types.Candidate, rw types.RewriteResult) map[string]any {
	meta := map[string]any{
		"source_url":       c.URL,
		"source_name":      source.Name,
		"original_title":   c.Title,
		"origin":           c.Origin,
		"rewritten_by":     rw.RewrittenBy,
		"original_length":  rw.OriginalLength,
		"rewritten_length": rw.RewriteLength,
		"meta_description": rewriter.MetaDescription(rw),
	}
	if !c.PublishedAt.IsZero() {
		meta["original_published_at"] = c.PublishedAt.UTC().Format(time.RFC3339)
	}
	if c.AuthorName != "" {
		meta["original_author"] = c.AuthorName
	}
	return meta
}

func categorySlugs(cats []catalog.Category) []string {
	if len(cats) == 0 {
		return nil
	}
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.Slug
	}
	return out
}
