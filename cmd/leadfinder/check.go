package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/leadfinder/internal/discovery"
	"github.com/FranksOps/leadfinder/internal/fingerprint"
	"github.com/FranksOps/leadfinder/internal/storage"
)

func newCheckCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and test the database connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			cfg, err := c.resolve(cmd, nil)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintln(out, "config:   FAIL")
				return err
			}
			if err := c.init(cfg); err != nil {
				return err
			}
			fmt.Fprintln(out, "config:   ok")

			profile, _ := fingerprint.ParseProfile(cfg.Fetch.TLSProfile)
			if _, err := fingerprint.Transport(profile, fingerprint.Options{}); err != nil {
				fmt.Fprintln(out, "tls:      FAIL")
				return err
			}
			fmt.Fprintf(out, "tls:      ok (%s)\n", profile)

			if _, err := discovery.NewHTMLProvider(nil, cfg.Discovery.SearchURL, selectors(cfg.Discovery.Selectors), c.logger); err != nil {
				fmt.Fprintln(out, "search:   FAIL")
				return err
			}
			fmt.Fprintln(out, "search:   ok")

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			repo, err := storage.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				fmt.Fprintf(out, "database: FAIL (backends: %s)\n", strings.Join(storage.Schemes(), ", "))
				return err
			}
			defer repo.Close()
			if err := repo.Ping(ctx); err != nil {
				fmt.Fprintln(out, "database: FAIL")
				return err
			}
			fmt.Fprintf(out, "database: ok (%s)\n", storage.Scheme(cfg.DatabaseURL))
			return nil
		},
	}
}
