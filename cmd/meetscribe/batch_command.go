package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"meetscribe/internal/jobs"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	flags := &transcribeFlags{}
	var maxConcurrency int

	cmd := &cobra.Command{
		Use:   "batch FILE...",
		Short: "Submit multiple audio files as one batch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			ids, err := client.SubmitBatch(cmd.Context(), args, flags.fields(), maxConcurrency)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, id := range ids {
				fmt.Fprintf(out, "%s  %s\n", id, args[i])
			}

			if !flags.wait {
				fmt.Fprintf(out, "%d jobs accepted\n", len(ids))
				return nil
			}

			failed := 0
			for i, id := range ids {
				job, err := waitForJob(cmd.Context(), client, id, out)
				if err != nil {
					return err
				}
				if job.Status != jobs.StatusCompleted {
					failed++
					fmt.Fprintf(out, "FAILED %s: %s\n", args[i], job.Error)
				}
			}
			fmt.Fprintf(out, "%d/%d jobs completed\n", len(ids)-failed, len(ids))
			if failed > 0 {
				return fmt.Errorf("%d of %d jobs failed", failed, len(ids))
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&maxConcurrency, "max-concurrency", 0, "Number of files processed at once (0 uses the daemon default)")
	return cmd
}
