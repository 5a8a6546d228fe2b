package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"meetscribe/internal/export"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Export a completed job's transcript",
		Long: "Export a completed job's transcript in one of the supported formats: " +
			strings.Join(export.Formats(), ", ") + ".",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportJob(cmd.Context(), ctx.client(), args[0], format, output, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", export.FormatText,
		fmt.Sprintf("Output format (%s)", strings.Join(export.Formats(), ", ")))
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}
