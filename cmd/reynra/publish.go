package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	publishMinAge    time.Duration
	publishMinLength int
	publishLimit     int
)

// publishCmd creates the "publish" subcommand.
func publishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish drafts that are old and long enough",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			p := a.newPublisher()
			opts := p.Defaults()
			if cmd.Flags().Changed("min-age") {
				opts.MinAge = publishMinAge
			}
			if cmd.Flags().Changed("min-length") {
				opts.MinLength = publishMinLength
			}
			if cmd.Flags().Changed("limit") {
				opts.Limit = publishLimit
			}

			res, err := p.PublishReady(ctx, opts)
			if err != nil {
				return err
			}
			fmt.Printf("Published %d of %d draft(s) older than %s (%d too short, %d failed)\n",
				len(res.Published), res.Considered, opts.MinAge, res.TooShort, res.Failed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&publishMinAge, "min-age", time.Hour, "minimum draft age")
	cmd.Flags().IntVar(&publishMinLength, "min-length", 500, "minimum content length in characters")
	cmd.Flags().IntVar(&publishLimit, "limit", 50, "maximum drafts per run")

	return cmd
}
