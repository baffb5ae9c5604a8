package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) newBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Provision the frontend key and the administrator",
		Long: `Provision the frontend key (apikey.frontend.*) and the administrator
account (admin.*) from configuration. Duplicate records are replaced.
The server runs the same step at startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Bootstrap(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Bootstrap complete.")
			return nil
		},
	}
}
