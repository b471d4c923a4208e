package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"bibtag/internal/imagefile"
	"bibtag/internal/queue"
	"bibtag/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var rosterFlag string
	var commitModeFlag string
	var qualityFlag string

	cmd := &cobra.Command{
		Use:   "run [photos or directories...]",
		Short: "Identify race numbers in a batch of photos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if rosterFlag != "" {
				cfg.Roster.Path = rosterFlag
			}
			if commitModeFlag != "" {
				cfg.Commit.Mode = commitModeFlag
			}
			if qualityFlag != "" {
				cfg.Recognition.QualityPreset = qualityFlag
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

			sources, skipped, err := enumerateSources(args)
			if err != nil {
				return err
			}
			if len(sources) == 0 {
				return fmt.Errorf("no supported image files among the %d inputs", len(args))
			}
			if skipped > 0 {
				fmt.Fprintf(out, "Skipping %d unsupported files (supported: %s)\n",
					skipped, strings.Join(imagefile.SupportedExtensions(), " "))
			}

			lock, err := acquireRunLock(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = lock.Unlock() }()

			configJSON, err := json.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("snapshot run configuration: %w", err)
			}

			runCtx := context.Background()
			run, err := store.CreateRun(runCtx, string(configJSON))
			if err != nil {
				return fmt.Errorf("create run: %w", err)
			}
			for _, source := range sources {
				kind, _ := imagefile.Classify(source)
				if _, err := store.InsertItem(runCtx, run.ID, source, kind); err != nil {
					return fmt.Errorf("enqueue %s: %w", source, err)
				}
			}
			fmt.Fprintf(out, "Run %s: %d photos queued\n", run.ID, len(sources))

			manager, err := buildManager(cfg, store, participants, logger)
			if err != nil {
				return err
			}

			return driveRun(cmd, store, manager, run.ID)
		},
	}

	cmd.Flags().StringVar(&rosterFlag, "roster", "", "Participant roster CSV (overrides roster.path)")
	cmd.Flags().StringVar(&commitModeFlag, "commit-mode", "", "Metadata write strategy: embed, sidecar, or auto")
	cmd.Flags().StringVar(&qualityFlag, "quality", "", "Recognition quality preset")
	return cmd
}

// driveRun starts the manager and blocks until the run drains or the user
// interrupts. Interrupts stop intake cooperatively: in-flight photos finish
// their current stage and persist before the process exits.
func driveRun(cmd *cobra.Command, store *queue.Store, manager *workflow.Manager, runID string) error {
	out := cmd.OutOrStdout()
	sigCtx, unregister := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer unregister()

	if err := manager.Start(context.Background(), runID); err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	manager.MarkIngestComplete()

	interrupted := false
	select {
	case <-manager.Done():
	case <-sigCtx.Done():
		interrupted = true
		fmt.Fprintln(out, "Stopping: in-flight photos will finish their current stage")
	}
	manager.Stop()

	cleanupCtx := context.Background()
	if interrupted {
		if err := store.SetRunStatus(cleanupCtx, runID, queue.RunCancelled); err != nil {
			return fmt.Errorf("record cancellation: %w", err)
		}
		fmt.Fprintf(out, "Run %s paused; resume with `bibtag resume %s`\n", runID, runID)
	}

	report, err := workflow.BuildReport(cleanupCtx, store, runID)
	if err != nil {
		return fmt.Errorf("build run report: %w", err)
	}
	printRunReport(out, report)
	return nil
}

// enumerateSources expands the argument list into supported image paths,
// walking directories and filtering by file kind. Paths are sorted so item
// creation order is deterministic.
func enumerateSources(args []string) ([]string, int, error) {
	seen := make(map[string]struct{})
	sources := make([]string, 0, len(args))
	skipped := 0

	addFile := func(path string) {
		if _, ok := imagefile.Classify(path); !ok {
			skipped++
			return
		}
		if _, dup := seen[path]; dup {
			return
		}
		seen[path] = struct{}{}
		sources = append(sources, path)
	}

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, 0, fmt.Errorf("resolve %s: %w", arg, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, 0, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			addFile(abs)
			continue
		}
		err = filepath.WalkDir(abs, func(path string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() {
				return nil
			}
			addFile(path)
			return nil
		})
		if err != nil {
			return nil, 0, fmt.Errorf("walk %s: %w", arg, err)
		}
	}

	sort.Strings(sources)
	return sources, skipped, nil
}
