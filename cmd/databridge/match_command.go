package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/bsvalues/PACS-DataBridge/internal/address"
	"github.com/bsvalues/PACS-DataBridge/internal/app"
)

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var minConfidence float64

	cmd := &cobra.Command{
		Use:   "match <address>",
		Short: "Resolve an address to parcel candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd, func(a *app.App) error {
				result, err := a.Addresses.Match(cmd.Context(), args[0], minConfidence)
				if err != nil {
					return err
				}
				if ctx.json() {
					return writeJSON(cmd, result)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Standardized: %s\nTier: %s\n", result.Standardized, result.Tier)
				if !result.Matched() {
					fmt.Fprintf(out, "No parcel matched (best fuzzy score %d)\n", result.BestScore)
					return nil
				}
				rows := make([][]string, 0, len(result.Candidates))
				for _, c := range result.Candidates {
					rows = append(rows, []string{
						c.ParcelNumber,
						c.StandardizedAddress,
						string(c.MatchMethod),
						strconv.FormatFloat(c.ConfidenceScore, 'f', 0, 64),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Parcel", "Address", "Method", "Confidence"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&minConfidence, "min-confidence", address.DefaultMinConfidence, "Fuzzy match threshold (0-100)")
	return cmd
}
