package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon health and dependency availability",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			health, err := ctx.client().Health(cmd.Context())
			if err != nil {
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", statusError, "not reachable at "+ctx.daemonAddress(), colorize))
				return err
			}

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			runningKind := statusError
			if health.Running {
				runningKind = statusOK
			}
			fmt.Fprintln(out, renderStatusLine("Running", runningKind, yesNo(health.Running), colorize))
			fmt.Fprintln(out, renderStatusLine("PID", statusInfo, fmt.Sprintf("%d", health.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Jobs", statusInfo, fmt.Sprintf("%d", health.JobCount), colorize))
			fmt.Fprintln(out, renderStatusLine("Store", statusInfo, health.StorePath, colorize))

			if len(health.Dependencies) > 0 {
				for _, line := range renderSectionHeader("Dependencies", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, dep := range health.Dependencies {
					kind := statusOK
					message := dep.Detail
					if !dep.Available {
						kind = statusError
						if message == "" {
							message = "not found"
						}
					}
					fmt.Fprintln(out, renderStatusLine(dep.Name, kind, message, colorize))
				}
			}
			return nil
		},
	}
}
