package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SmillingSword/news-reynra/internal/api"
	"github.com/SmillingSword/news-reynra/internal/queue"
	"github.com/SmillingSword/news-reynra/internal/scheduler"
	"github.com/SmillingSword/news-reynra/internal/types"
)

// serveCmd creates the "serve" subcommand.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run queue workers and the periodic scrape, retry and publish triggers",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{withEngine: true})
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	if a.cfg.Metrics.Enabled {
		if err := a.metrics.StartServer(ctx, a.cfg.Metrics.Port, a.cfg.Metrics.Path); err != nil {
			logger.Warn("failed to start metrics server", "error", err)
		}
	}

	sched := a.newScheduler()
	var pool *queue.Pool
	if a.cfg.Scheduler.Async {
		pool, _, err = a.attachQueue(ctx, sched)
		if err != nil {
			return err
		}
		pool.Start(ctx)
	}

	c := scheduler.NewCron(logger)
	if err := c.Add("scrape", a.cfg.Scheduler.ScrapeCron, func(ctx context.Context) {
		if _, err := sched.Run(ctx, scheduler.Filter{}, types.JobScheduled); err != nil {
			logger.Error("scheduled scrape failed", "error", err)
		}
	}); err != nil {
		return err
	}
	if err := c.Add("retry", a.cfg.Scheduler.RetryCron, func(ctx context.Context) {
		if _, err := sched.RetryFailed(ctx); err != nil {
			logger.Error("retry run failed", "error", err)
		}
	}); err != nil {
		return err
	}
	pub := a.newPublisher()
	if a.cfg.Publisher.AutoPublish {
		if err := c.Add("publish", a.cfg.Publisher.PublishCron, func(ctx context.Context) {
			if _, err := pub.PublishReady(ctx, pub.Defaults()); err != nil {
				logger.Error("publish run failed", "error", err)
			}
		}); err != nil {
			return err
		}
	}

	if a.cfg.API.Enabled {
		stats := func() map[string]any {
			out := map[string]any{"engine": a.engine.Stats().Snapshot()}
			if pool != nil {
				out["queue"] = pool.Stats()
			}
			return out
		}
		srv := api.NewServer(a.cfg.API.Port, sched, a.store, pub, stats, logger)
		if err := srv.Start(ctx); err != nil {
			logger.Warn("failed to start API server", "error", err)
		}
	}

	c.Start(ctx)
	logger.Info("serving", "entries", c.Len(), "async", sched.Async())

	<-ctx.Done()
	logger.Info("shutting down")
	c.Stop()
	if pool != nil {
		pool.Stop()
		pool.Wait()
	}
	return nil
}
