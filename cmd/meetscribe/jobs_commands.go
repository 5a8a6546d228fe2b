package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"meetscribe/internal/jobs"
	"meetscribe/internal/stages"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage transcription jobs",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsDeleteCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs known to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			summaries, err := ctx.client().Jobs(cmd.Context())
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(summaries))
			for _, job := range summaries {
				if statusFilter != "" && string(job.Status) != statusFilter {
					continue
				}
				rows = append(rows, []string{
					job.ID,
					job.Filename,
					string(job.Status),
					job.CreatedAt.Local().Format(time.DateTime),
				})
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No jobs")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "File", "Status", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show jobs with this status")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show job details and stage progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().Job(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJob(cmd, job)
			return nil
		},
	}
}

func newJobsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a job and its uploaded audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.client().DeleteJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}

func printJob(cmd *cobra.Command, job *jobs.Job) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	for _, line := range renderSectionHeader("Job "+job.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("File", statusInfo, job.Filename, colorize))
	fmt.Fprintln(out, renderStatusLine("Status", jobStatusKind(job.Status), string(job.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Method", statusInfo, job.Options.Method, colorize))
	if job.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, job.Error, colorize))
	}

	for _, name := range stages.Names() {
		state, ok := job.Stages[name]
		if !ok {
			continue
		}
		detail := state.Detail
		if len(state.SubTasks) > 0 {
			parts := make([]string, 0, len(state.SubTasks))
			for task, status := range state.SubTasks {
				parts = append(parts, task+"="+status)
			}
			detail = fmt.Sprintf("%s (%s)", detail, strings.Join(parts, ", "))
		}
		message := fmt.Sprintf("%3d%% %s", state.Progress, detail)
		fmt.Fprintln(out, renderStatusLine(name, stageStatusKind(state.Status), message, colorize))
	}

	if job.Result != nil {
		fmt.Fprintln(out, renderStatusLine("Language", statusInfo, job.Result.Transcript.Language, colorize))
		fmt.Fprintln(out, renderStatusLine("Segments", statusInfo,
			fmt.Sprintf("%d", len(job.Result.Transcript.Segments)), colorize))
		fmt.Fprintln(out, renderStatusLine("Speakers", statusInfo,
			fmt.Sprintf("%d", job.Result.Transcript.SpeakerCount), colorize))
		if job.Result.Analysis != nil && job.Result.Analysis.Summary != "" {
			fmt.Fprintln(out, renderStatusLine("Summary", statusInfo, job.Result.Analysis.Summary, colorize))
		}
	}
}

func jobStatusKind(status jobs.Status) statusKind {
	switch status {
	case jobs.StatusCompleted:
		return statusOK
	case jobs.StatusFailed:
		return statusError
	case jobs.StatusProcessing:
		return statusWarn
	default:
		return statusInfo
	}
}

func stageStatusKind(status stages.Status) statusKind {
	switch status {
	case stages.StatusDone:
		return statusOK
	case stages.StatusError:
		return statusError
	case stages.StatusRunning:
		return statusWarn
	default:
		return statusInfo
	}
}
