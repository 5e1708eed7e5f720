package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmillingSword/news-reynra/internal/scheduler"
	"github.com/SmillingSword/news-reynra/internal/types"
)

var (
	scrapeSources    []string
	scrapeGamingOnly bool
	scrapeForce      bool
	scrapeSync       bool
	scrapeDryRun     bool
)

// scrapeCmd creates the "scrape" subcommand.
func scrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Scrape news sources now",
		Long: `Scrape every ready source, or the sources named with --source.

By default scrapes are dispatched through the configured queue. With the
memory backend the queue is drained in-process before the command returns;
with redis the tasks are left for "reynra serve" workers.`,
		RunE: runScrape,
	}

	cmd.Flags().StringSliceVarP(&scrapeSources, "source", "s", nil, "source IDs or slugs (repeatable)")
	cmd.Flags().BoolVar(&scrapeGamingOnly, "gaming-only", false, "only scrape gaming sources")
	cmd.Flags().BoolVarP(&scrapeForce, "force", "f", false, "scrape sources even if they are not due")
	cmd.Flags().BoolVar(&scrapeSync, "sync", false, "scrape inline, one source at a time, without the queue")
	cmd.Flags().BoolVar(&scrapeDryRun, "dry-run", false, "write results to the dry-run file instead of storage")

	return cmd
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{dryRun: scrapeDryRun, withEngine: true})
	if err != nil {
		return err
	}
	defer a.Close()

	sched := a.newScheduler()
	filter := scheduler.Filter{Sources: scrapeSources, GamingOnly: scrapeGamingOnly, Force: scrapeForce}
	inline := scrapeSync || scrapeDryRun

	start := time.Now()
	if inline {
		results, err := sched.Run(ctx, filter, types.JobManual)
		if err != nil {
			return err
		}
		printResults(results)
	} else {
		pool, backend, err := a.attachQueue(ctx, sched)
		if err != nil {
			return err
		}
		results, err := sched.Run(ctx, filter, types.JobManual)
		if err != nil {
			return err
		}
		if backend.Name() != "memory" {
			fmt.Printf("\nQueued %d scrape(s) on %s\n", len(results), backend.Name())
			for _, r := range results {
				fmt.Printf("   %-20s task %s\n", r.Source.Slug, r.TaskID)
			}
			return nil
		}
		pool.RunUntilIdle(ctx)
		ps := pool.Stats()
		fmt.Printf("\nQueue drained: %d task run(s), %d succeeded, %d retried, %d gave up\n",
			ps.Processed, ps.Succeeded, ps.Retried, ps.GaveUp)
	}

	stats := a.engine.Stats().Snapshot()
	fmt.Printf("\n✅ Scrape complete in %s\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("   Jobs:      %v completed, %v failed\n", stats["jobs_completed"], stats["jobs_failed"])
	fmt.Printf("   Articles:  %v created, %v skipped\n", stats["articles_created"], stats["articles_skipped"])
	if a.sink != nil {
		fmt.Printf("   Dry run:   %d record(s) written to %s\n", a.sink.Count(), a.cfg.Scraper.DryRunPath)
	}
	return nil
}

func printResults(results []scheduler.Result) {
	if len(results) == 0 {
		fmt.Println("No sources ready. Use --force to scrape sources that are not due.")
		return
	}
	for _, r := range results {
		switch {
		case r.Job == nil:
			fmt.Printf("   %-20s error: %v\n", r.Source.Slug, r.Err)
		case r.Err != nil:
			fmt.Printf("   %-20s %s: %v (retry %d)\n", r.Source.Slug, r.Job.Status, r.Err, r.Job.RetryCount)
		default:
			fmt.Printf("   %-20s %s: found %d, created %d, skipped %d\n",
				r.Source.Slug, r.Job.Status, r.Job.ArticlesFound, r.Job.ArticlesCreated, r.Job.ArticlesSkipped)
		}
	}
}
