package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// sourcesCmd creates the "sources" subcommand.
func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List news sources with readiness and counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := newApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			sources, err := a.store.ListSources(ctx)
			if err != nil {
				return err
			}
			now := a.clock.Now()

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSLUG\tTRUST\tACTIVE\tAUTO\tREADY\tSCRAPES\tFAILED\tSUCCESS\tNEXT")
			for _, s := range sources {
				next := "-"
				if s.NextScrapeAt != nil {
					next = s.NextScrapeAt.Local().Format(time.DateTime)
				}
				fmt.Fprintf(w, "%d\t%s\t%d\t%v\t%v\t%v\t%d\t%d\t%.0f%%\t%s\n",
					s.ID, s.Slug, s.TrustScore, s.Active, s.AutoScrapingEnabled, s.IsReady(now),
					s.TotalScrapes, s.FailedScrapes, s.SuccessRate(), next)
			}
			return w.Flush()
		},
	}
}
