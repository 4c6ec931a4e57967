package main

import (
	"github.com/spf13/cobra"

	"github.com/FranksOps/leadfinder/internal/api"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.load(cmd, map[string]string{
				"http_addr":        "addr",
				"pipeline.workers": "workers",
			}); err != nil {
				return err
			}
			ctx := cmd.Context()

			a, err := newApp(ctx, c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			srv := api.New(a.pipeline, a.repo, c.logger)
			return api.ListenAndServe(ctx, c.cfg.HTTPAddr, srv.Routes(), c.logger, nil)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8080)")
	cmd.Flags().Int("workers", 0, "businesses processed concurrently per job")
	return cmd
}
