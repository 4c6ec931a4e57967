package main

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/FranksOps/leadfinder/internal/metrics"
	"github.com/FranksOps/leadfinder/internal/pipeline"
	"github.com/FranksOps/leadfinder/internal/report"
)

func newScrapeCmd(c *cli) *cobra.Command {
	var (
		maxResults int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "scrape QUERY",
		Short: "Discover, audit and score businesses for a query",
		Example: `  leadfinder scrape "coffee shops in Seattle" --max-results 20
  leadfinder scrape "plumbers in Tacoma, WA" --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.load(cmd, map[string]string{
				"metrics_addr":     "metrics-addr",
				"pipeline.workers": "workers",
			}); err != nil {
				return err
			}
			ctx := cmd.Context()

			if c.cfg.MetricsAddr != "" {
				ms, err := metrics.Start(c.cfg.MetricsAddr, c.logger)
				if err != nil {
					return err
				}
				c.logger.Info("serving metrics", "addr", ms.Addr())
				defer ms.Stop(context.WithoutCancel(ctx))
			}

			a, err := newApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.pipeline.Run(ctx, pipeline.Request{Query: strings.Join(args, " "), MaxResults: maxResults})
			if res == nil {
				return err
			}
			if asJSON {
				if werr := report.WriteJSON(cmd.OutOrStdout(), res); werr != nil {
					return errors.Join(err, werr)
				}
				return err
			}
			if werr := report.WriteJob(cmd.OutOrStdout(), res); werr != nil {
				return errors.Join(err, werr)
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 20, "maximum businesses to discover")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the job result as JSON")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address while the job runs")
	cmd.Flags().Int("workers", 0, "businesses processed concurrently")
	return cmd
}
