package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SmillingSword/news-reynra/internal/ai"
	"github.com/SmillingSword/news-reynra/internal/clock"
	"github.com/SmillingSword/news-reynra/internal/config"
	"github.com/SmillingSword/news-reynra/internal/engine"
	"github.com/SmillingSword/news-reynra/internal/extractor"
	"github.com/SmillingSword/news-reynra/internal/fetcher"
	"github.com/SmillingSword/news-reynra/internal/observability"
	"github.com/SmillingSword/news-reynra/internal/parser"
	"github.com/SmillingSword/news-reynra/internal/publisher"
	"github.com/SmillingSword/news-reynra/internal/queue"
	"github.com/SmillingSword/news-reynra/internal/rewriter"
	"github.com/SmillingSword/news-reynra/internal/scheduler"
	"github.com/SmillingSword/news-reynra/internal/storage"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// wib is Western Indonesian Time, used for source dates without a zone.
var wib = time.FixedZone("WIB", 7*60*60)

// app holds the wired pipeline shared by the subcommands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	clock   clock.Clock
	store   storage.Store
	metrics *observability.Metrics
	engine  *engine.Engine
	sink    *storage.JSONLSink
	closers []func() error
}

type appOptions struct {
	dryRun bool
	// withEngine builds the fetch/extract/rewrite stack.
	withEngine bool
}

// newApp loads configuration, opens storage and syncs the configured
// sources into it.
func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := setupLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		clock:   clock.Real{},
		metrics: observability.NewMetrics(logger),
		closers: []func() error{closeLog},
	}

	p := parser.New(logger)
	sources, err := config.LoadSources(cfg.SourcesPath, cfg.Scraper, p)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load sources: %w", err)
	}

	store, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	ptrs := make([]*types.NewsSource, len(sources))
	for i := range sources {
		ptrs[i] = &sources[i]
	}
	if err := store.SyncSources(ctx, ptrs); err != nil {
		a.Close()
		return nil, fmt.Errorf("sync sources: %w", err)
	}
	logger.Debug("sources synced", "count", len(ptrs), "storage", store.Name())

	if opts.withEngine {
		if err := a.buildEngine(p, opts.dryRun); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) buildEngine(p *parser.Parser, dryRun bool) error {
	cfg, logger := a.cfg, a.logger

	fetchers := []fetcher.Fetcher{
		observability.InstrumentFetcher(fetcher.NewHTTPFetcher(cfg.Fetcher, logger), a.metrics),
	}
	if cfg.Fetcher.BrowserEnabled {
		bf, err := fetcher.NewBrowserFetcher(cfg.Fetcher, logger)
		if err != nil {
			logger.Warn("browser fetcher unavailable, using HTTP only", "error", err)
		} else {
			fetchers = append(fetchers, observability.InstrumentFetcher(bf, a.metrics))
		}
	}
	router := fetcher.NewRouter(fetchers...)
	a.closers = append(a.closers, router.Close)

	ex := extractor.New(router, p, extractor.NewDateParser(wib, a.clock, logger), a.clock, logger)

	var gen rewriter.Generator
	if cfg.AI.Enabled {
		gen = ai.NewLLMClient(ai.ConfigFrom(cfg.AI), logger)
	}
	rw := rewriter.New(gen, rewriter.NewFallback(cfg.AI.Seed), cfg.AI, logger,
		rewriter.WithObserver(a.metrics.ObserveRewrite))

	opts := []engine.Option{engine.WithRecorder(a.metrics)}
	if dryRun {
		sink, err := storage.NewJSONLSink(cfg.Scraper.DryRunPath, logger)
		if err != nil {
			return fmt.Errorf("create dry-run sink: %w", err)
		}
		a.sink = sink
		a.closers = append(a.closers, sink.Close)
		opts = append(opts, engine.WithSink(sink))
	}

	a.engine = engine.New(cfg.Scraper, ex, rw, a.store, a.clock, logger, opts...)
	return nil
}

// newScheduler returns a scheduler that scrapes inline.
func (a *app) newScheduler() *scheduler.Scheduler {
	return scheduler.New(a.store, a.engine, a.clock, a.cfg.Queue, a.logger)
}

// attachQueue switches sched to the configured queue backend.
func (a *app) attachQueue(ctx context.Context, sched *scheduler.Scheduler) (*queue.Pool, queue.Backend, error) {
	var backend queue.Backend
	switch a.cfg.Queue.Backend {
	case "", "memory":
		backend = queue.NewMemoryBackend()
	case "redis":
		rb, err := queue.NewRedisBackend(ctx, a.cfg.Queue)
		if err != nil {
			return nil, nil, err
		}
		backend = rb
	default:
		return nil, nil, fmt.Errorf("unsupported queue backend: %s", a.cfg.Queue.Backend)
	}
	a.closers = append(a.closers, backend.Close)

	pool := sched.UseQueue(backend,
		queue.WithTaskTimeout(a.cfg.Scraper.JobTimeout),
		queue.WithTaskRecorder(a.metrics),
	)
	return pool, backend, nil
}

func (a *app) newPublisher() *publisher.Publisher {
	p := publisher.New(a.store, a.clock, a.cfg.Publisher, a.logger)
	p.SetRecorder(a.metrics)
	return p
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown", "error", err)
	}
}
