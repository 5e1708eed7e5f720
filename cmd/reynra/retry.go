package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// retryCmd creates the "retry" subcommand.
func retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Retry failed scraping jobs that are due",
		Long:  "Run a retry job for every failed job whose next_retry_at has passed and whose source has no newer job.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, appOptions{withEngine: true})
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.newScheduler().RetryFailed(ctx)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Println("No failed jobs are due for retry.")
				return nil
			}
			printResults(results)
			return nil
		},
	}
}
