package main

import (
	"github.com/spf13/cobra"

	"github.com/FranksOps/leadfinder/internal/report"
	"github.com/FranksOps/leadfinder/internal/storage"
)

func addFilterFlags(cmd *cobra.Command, f *storage.Filter) {
	cmd.Flags().IntVar(&f.MinScore, "min-score", 0, "only leads scoring at least this much")
	cmd.Flags().StringVar(&f.Category, "category", "", "only leads in this category (case-insensitive)")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "maximum leads to return (0 = all)")
}

// withRepo loads configuration, opens the repository and runs fn.
func withRepo(c *cli, cmd *cobra.Command, fn func(repo storage.Repository) error) error {
	if err := c.load(cmd, nil); err != nil {
		return err
	}
	repo, err := storage.Open(cmd.Context(), c.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer repo.Close()
	return fn(repo)
}

func newLeadsCmd(c *cli) *cobra.Command {
	var (
		filter storage.Filter
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "List stored leads, best first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepo(c, cmd, func(repo storage.Repository) error {
				businesses, err := repo.Query(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					if businesses == nil {
						businesses = []*storage.Business{}
					}
					return report.WriteJSON(cmd.OutOrStdout(), businesses)
				}
				return report.WriteLeads(cmd.OutOrStdout(), businesses)
			})
		},
	}
	addFilterFlags(cmd, &filter)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print leads as JSON")
	return cmd
}

func newReportCmd(c *cli) *cobra.Command {
	var (
		filter storage.Filter
		format string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize stored leads by score band, issue and category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRepo(c, cmd, func(repo storage.Repository) error {
				businesses, err := repo.Query(cmd.Context(), filter)
				if err != nil {
					return err
				}
				summary := report.GenerateSummary(businesses)
				switch format {
				case "json":
					return report.WriteJSON(cmd.OutOrStdout(), summary)
				case "html":
					return report.WriteHTML(cmd.OutOrStdout(), summary)
				}
				return report.WriteText(cmd.OutOrStdout(), summary)
			})
		},
	}
	addFilterFlags(cmd, &filter)
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json or html")
	return cmd
}
