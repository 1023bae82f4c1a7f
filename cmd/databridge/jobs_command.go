package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bsvalues/PACS-DataBridge/internal/app"
	"github.com/bsvalues/PACS-DataBridge/internal/models"
	"github.com/bsvalues/PACS-DataBridge/internal/repository"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect import jobs",
	}
	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var status, importType string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent import jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := repository.JobFilter{Status: models.JobStatus(status), Limit: limit}
			if importType != "" {
				t, err := models.ParseImportType(importType)
				if err != nil {
					return err
				}
				filter.ImportType = t
			}

			return ctx.withApp(cmd, func(a *app.App) error {
				jobs, err := a.Imports.ListJobs(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if ctx.json() {
					return writeJSON(cmd, jobs)
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No import jobs")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						job.ID.String(),
						string(job.ImportType),
						statusText(out, string(job.Status)),
						job.Source.Name,
						fmt.Sprintf("%d/%d", job.RecordsSuccessful, job.RecordsTotal),
						job.CreatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Type", "Status", "Source", "OK/Total", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (Pending, Processing, Completed, Failed)")
	cmd.Flags().StringVar(&importType, "type", "", "Filter by import type (permits, property)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum jobs to list")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var errorLimit int

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job and its errors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}

			return ctx.withApp(cmd, func(a *app.App) error {
				job, err := a.Imports.GetJob(cmd.Context(), id)
				if err != nil {
					return err
				}
				errs, err := a.Imports.ListErrors(cmd.Context(), id, errorLimit)
				if err != nil {
					return err
				}
				if ctx.json() {
					return writeJSON(cmd, map[string]any{"job": job, "errors": errs})
				}

				out := cmd.OutOrStdout()
				printJob(out, job)
				if len(errs) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(errs))
				for _, ie := range errs {
					index := "-"
					if ie.RecordIndex != nil {
						index = strconv.Itoa(*ie.RecordIndex)
					}
					rows = append(rows, []string{index, string(ie.ErrorType), ie.Message})
				}
				fmt.Fprint(out, renderTable(
					[]string{"Record", "Type", "Message"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&errorLimit, "errors", 50, "Maximum errors to show")
	return cmd
}
