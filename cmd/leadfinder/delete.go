package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/FranksOps/leadfinder/internal/storage"
)

func newDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Delete stored leads by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(c, cmd, func(repo storage.Repository) error {
				var errs []error
				for _, id := range args {
					if err := repo.Delete(cmd.Context(), id); err != nil {
						errs = append(errs, fmt.Errorf("%s: %w", id, err))
						continue
					}
					fmt.Fprintln(cmd.OutOrStdout(), "deleted", id)
				}
				return errors.Join(errs...)
			})
		},
	}
}
