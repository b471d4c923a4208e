package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bibtag/internal/roster"
)

func newRosterCommand(ctx *commandContext) *cobra.Command {
	rosterCmd := &cobra.Command{
		Use:   "roster",
		Short: "Participant roster utilities",
	}
	rosterCmd.AddCommand(newRosterCheckCommand(ctx))
	return rosterCmd
}

func newRosterCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check [path]",
		Short: "Validate a roster CSV and report duplicate entries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = strings.TrimSpace(args[0])
			}
			if path == "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				path = strings.TrimSpace(cfg.Roster.Path)
			}
			if path == "" {
				return fmt.Errorf("no roster path given and none configured")
			}

			participants, warnings, err := roster.Load(path)
			if err != nil {
				return fmt.Errorf("load roster: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, warning := range warnings {
				fmt.Fprintf(out, "warning: %s\n", warning)
			}
			fmt.Fprintf(out, "%s: %d participants", path, participants.Len())
			if len(warnings) > 0 {
				fmt.Fprintf(out, ", %d warnings", len(warnings))
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}
