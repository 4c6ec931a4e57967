package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/leadfinder/pkg/client"
)

func newDemoCmd(c *cli) *cobra.Command {
	var (
		server     string
		query      string
		maxResults int
		minScore   int
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Exercise a running server through the API client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.load(cmd, nil); err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			api, err := client.New(server, 0)
			if err != nil {
				return err
			}
			if err := api.Health(ctx); err != nil {
				return fmt.Errorf("server not healthy: %w", err)
			}

			fmt.Fprintf(out, "Scraping %q (max %d)...\n", query, maxResults)
			start := time.Now()
			res, err := api.Scrape(ctx, query, maxResults)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Job %s %s in %s: %d businesses, %d errors\n",
				res.JobID, res.State, time.Since(start).Round(time.Millisecond), res.Count, len(res.Errors))

			leads, err := api.Leads(ctx, client.Filter{MinScore: minScore, Limit: 10})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\nTop leads scoring %d or more:\n", minScore)
			for _, b := range leads {
				score := 0
				if b.LeadScore != nil {
					score = *b.LeadScore
				}
				issues := ""
				if b.Audit != nil {
					issues = strings.Join(b.Audit.Issues, "; ")
				}
				fmt.Fprintf(out, "  %3d  %-40s %s\n", score, b.Name, issues)
			}

			if len(leads) > 0 {
				b, err := api.Business(ctx, leads[0].ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\nBest lead: %s (%s) %s\n", b.Name, b.Phone, b.Website)
			}

			fmt.Fprintln(out, "\nCSV export:")
			return api.Export(ctx, client.Filter{MinScore: minScore}, "csv", out)
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "leadfinder server URL")
	cmd.Flags().StringVar(&query, "query", "coffee shops in Seattle", "search query")
	cmd.Flags().IntVar(&maxResults, "max-results", 5, "maximum businesses to discover")
	cmd.Flags().IntVar(&minScore, "min-score", 50, "minimum score for listed leads")
	return cmd
}
