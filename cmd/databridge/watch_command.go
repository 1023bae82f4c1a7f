package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bsvalues/PACS-DataBridge/internal/app"
	"github.com/bsvalues/PACS-DataBridge/internal/watcher"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Import every file waiting in the intake folders, then archive it",
		Long: "Makes one pass over WATCH_PERMIT_FOLDER and WATCH_PROPERTY_FOLDER. " +
			"Run it from a scheduler; a folder already being scanned by another process is skipped.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return ctx.withApp(cmd, func(a *app.App) error {
				w, err := watcher.New(a.Config.Watch, a.Imports, a.Log)
				if err != nil {
					return err
				}
				report, err := w.Scan(runCtx)
				if ctx.json() {
					if jsonErr := writeJSON(cmd, reportJSON(report)); jsonErr != nil {
						return jsonErr
					}
				} else {
					printReport(cmd, report)
				}
				if err != nil {
					return err
				}
				if len(report.Failed) > 0 {
					return fmt.Errorf("%d intake files were not imported", len(report.Failed))
				}
				return nil
			})
		},
	}
}

type resultJSON struct {
	Path     string `json:"path"`
	JobID    string `json:"jobId,omitempty"`
	Status   string `json:"status,omitempty"`
	Archived string `json:"archived,omitempty"`
	Error    string `json:"error,omitempty"`
}

func reportJSON(r watcher.Report) map[string]any {
	results := make([]resultJSON, 0, len(r.Imported)+len(r.Failed))
	for _, res := range append(append([]watcher.Result{}, r.Imported...), r.Failed...) {
		item := resultJSON{Path: res.Path, Archived: res.Archived}
		if res.Job != nil {
			item.JobID = res.Job.ID.String()
			item.Status = string(res.Job.Status)
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		results = append(results, item)
	}
	return map[string]any{"results": results, "locked": r.Locked}
}

func printReport(cmd *cobra.Command, r watcher.Report) {
	out := cmd.OutOrStdout()
	for _, folder := range r.Locked {
		fmt.Fprintf(out, "Skipped %s: locked by another process\n", folder)
	}
	if len(r.Imported)+len(r.Failed) == 0 {
		fmt.Fprintln(out, "No intake files")
		return
	}
	rows := make([][]string, 0, len(r.Imported)+len(r.Failed))
	for _, res := range r.Imported {
		rows = append(rows, []string{res.Path, res.Job.ID.String(), statusText(out, string(res.Job.Status)), res.Archived})
	}
	for _, res := range r.Failed {
		rows = append(rows, []string{res.Path, "-", statusText(out, "Failed"), res.Err.Error()})
	}
	fmt.Fprint(out, renderTable([]string{"File", "Job", "Status", "Archived / Error"}, rows, nil))
}
