package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/FranksOps/leadfinder/internal/export"
	"github.com/FranksOps/leadfinder/internal/storage"
)

func newExportCmd(c *cli) *cobra.Command {
	var (
		filter storage.Filter
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export leads as CSV or NDJSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return withRepo(c, cmd, func(repo storage.Repository) error {
				var w io.Writer = cmd.OutOrStdout()
				if output != "" && output != "-" {
					file, err := os.Create(output)
					if err != nil {
						return fmt.Errorf("export: %w", err)
					}
					defer file.Close()
					w = file
				}
				n, err := export.Write(cmd.Context(), repo, filter, f, w)
				if err != nil {
					return err
				}
				c.logger.Info("export complete", "records", n, "format", f, "output", output)
				return nil
			})
		},
	}
	addFilterFlags(cmd, &filter)
	cmd.Flags().StringVar(&format, "format", "csv", "csv or json (newline-delimited)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}
