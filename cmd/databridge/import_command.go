package main

import (
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bsvalues/PACS-DataBridge/internal/app"
	"github.com/bsvalues/PACS-DataBridge/internal/models"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	importCmd := &cobra.Command{
		Use:   "import",
		Short: "Import a CSV file or s3:// object",
	}
	importCmd.AddCommand(newImportTypeCommand(ctx, "permits", models.ImportTypePermit))
	importCmd.AddCommand(newImportTypeCommand(ctx, "property", models.ImportTypePersonalProperty))
	return importCmd
}

func newImportTypeCommand(ctx *commandContext, use string, importType models.ImportType) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <file-or-s3-uri>",
		Short: fmt.Sprintf("Import %s records", importType),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Ctrl-C aborts the job; processed records keep their outcome.
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return ctx.withApp(cmd, func(a *app.App) error {
				job, err := a.Imports.Import(runCtx, importType, args[0])
				if job == nil {
					return err
				}
				if ctx.json() {
					if jsonErr := writeJSON(cmd, job); jsonErr != nil {
						return jsonErr
					}
				} else {
					printJob(cmd.OutOrStdout(), job)
				}
				if err != nil {
					return fmt.Errorf("import %s: %w", job.ID, err)
				}
				return nil
			})
		},
	}
}

func printJob(w io.Writer, job *models.ImportJob) {
	rows := [][]string{
		{"Job", job.ID.String()},
		{"Type", string(job.ImportType)},
		{"Source", job.Source.Name},
		{"Status", statusText(w, string(job.Status))},
		{"Total", strconv.Itoa(job.RecordsTotal)},
		{"Processed", strconv.Itoa(job.RecordsProcessed)},
		{"Successful", strconv.Itoa(job.RecordsSuccessful)},
		{"Failed", strconv.Itoa(job.RecordsFailed)},
	}
	if job.ErrorSummary != nil {
		rows = append(rows, []string{"Summary", *job.ErrorSummary})
	}
	fmt.Fprint(w, renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignLeft}))
}
