package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/FranksOps/leadfinder/internal/config"
	"github.com/FranksOps/leadfinder/internal/logger"
)

// cli carries state shared by all subcommands.
type cli struct {
	configFile string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "leadfinder",
		Short:         "Find local businesses with weak web presence and rank them as leads",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "config file (default ./leadfinder.yaml when present)")
	pf.String("database-url", "", "database DSN (postgres://... or sqlite://path)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")

	root.AddCommand(
		newServeCmd(c),
		newScrapeCmd(c),
		newLeadsCmd(c),
		newReportCmd(c),
		newExportCmd(c),
		newDeleteCmd(c),
		newCheckCmd(c),
		newDemoCmd(c),
	)
	return root
}

// load resolves configuration for cmd. bindings maps config keys to the
// names of cmd's own flags; flags only override when set explicitly.
func (c *cli) load(cmd *cobra.Command, bindings map[string]string) error {
	cfg, err := c.resolve(cmd, bindings)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	return c.init(cfg)
}

func (c *cli) resolve(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	v, err := config.NewViper(c.configFile)
	if err != nil {
		return nil, err
	}

	all := map[string]string{
		"database_url": "database-url",
		"log_level":    "log-level",
		"log_format":   "log-format",
	}
	for k, f := range bindings {
		all[k] = f
	}
	for key, name := range all {
		if err := bindChanged(v, key, cmd.Flags().Lookup(name)); err != nil {
			return nil, err
		}
	}
	return config.FromViper(v)
}

func bindChanged(v *viper.Viper, key string, f *pflag.Flag) error {
	if f == nil || !f.Changed {
		return nil
	}
	if err := v.BindPFlag(key, f); err != nil {
		return fmt.Errorf("bind flag %s: %w", f.Name, err)
	}
	return nil
}

func (c *cli) init(cfg *config.Config) error {
	l, err := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(l)
	c.cfg = cfg
	c.logger = l
	return nil
}
