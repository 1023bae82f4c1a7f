package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bsvalues/PACS-DataBridge/internal/app"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create any missing tables in the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				// Opening the store applies the schema; run it again to report errors here.
				if err := a.Store.Migrate(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", a.Store.Driver())
				return nil
			})
		},
	}
}
