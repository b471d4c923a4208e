package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bibtag/internal/config"
	"bibtag/internal/queue"
)

func newResumeCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume [run-id]",
		Short: "Continue an interrupted run without repeating completed photos",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			resumeCtx := context.Background()
			run, err := findResumableRun(resumeCtx, store, args)
			if err != nil {
				return err
			}
			if run.Status == queue.RunCompleted {
				return fmt.Errorf("run %s already completed; see `bibtag report %s`", run.ID, run.ID)
			}

			// Resume under the configuration the run was submitted with.
			if strings.TrimSpace(run.ConfigJSON) != "" {
				var snapshot config.Config
				if err := json.Unmarshal([]byte(run.ConfigJSON), &snapshot); err != nil {
					return fmt.Errorf("run %s checkpoint corrupt: %w", run.ID, err)
				}
				cfg = &snapshot
				if err := cfg.EnsureDirectories(); err != nil {
					return err
				}
			}

			logger, err := ctx.newLogger(cfg)
			if err != nil {
				return err
			}
			participants, warnings, err := loadRoster(cfg)
			if err != nil {
				return fmt.Errorf("load roster: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, warning := range warnings {
				fmt.Fprintf(out, "roster: %s\n", warning)
			}

			lock, err := acquireRunLock(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			reset, err := store.ResetInterrupted(resumeCtx, run.ID)
			if err != nil {
				return fmt.Errorf("reset interrupted items: %w", err)
			}
			if reset > 0 {
				fmt.Fprintf(out, "Returned %d interrupted photos to their stage start\n", reset)
			}

			completed, err := store.CompletedSourcePaths(resumeCtx, run.ID)
			if err != nil {
				return fmt.Errorf("list completed photos: %w", err)
			}
			if len(completed) > 0 {
				fmt.Fprintf(out, "Skipping %d already-completed photos:\n", len(completed))
				for _, path := range completed {
					fmt.Fprintf(out, "  %s\n", path)
				}
			}

			if err := store.SetRunStatus(resumeCtx, run.ID, queue.RunActive); err != nil {
				return fmt.Errorf("reactivate run: %w", err)
			}
			fmt.Fprintf(out, "Resuming run %s\n", run.ID)

			manager, err := buildManager(cfg, store, participants, logger)
			if err != nil {
				return err
			}
			return driveRun(cmd, store, manager, run.ID)
		},
	}
	return cmd
}

func findResumableRun(ctx context.Context, store *queue.Store, args []string) (*queue.Run, error) {
	if len(args) == 1 {
		run, err := store.GetRun(ctx, strings.TrimSpace(args[0]))
		if errors.Is(err, queue.ErrRunNotFound) {
			return nil, fmt.Errorf("no run %q in this state directory", args[0])
		}
		return run, err
	}
	run, err := store.LatestRun(ctx)
	if errors.Is(err, queue.ErrRunNotFound) {
		return nil, errors.New("nothing to resume: no runs recorded in this state directory")
	}
	return run, err
}
