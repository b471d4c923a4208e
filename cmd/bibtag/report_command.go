package main

import (
	"context"

	"github.com/spf13/cobra"

	"bibtag/internal/workflow"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "report [run-id]",
		Short: "Render the final report for a run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			reportCtx := context.Background()
			run, err := findResumableRun(reportCtx, store, args)
			if err != nil {
				return err
			}
			report, err := workflow.BuildReport(reportCtx, store, run.ID)
			if err != nil {
				return err
			}
			printRunReport(cmd.OutOrStdout(), report)
			return nil
		},
	}
}
