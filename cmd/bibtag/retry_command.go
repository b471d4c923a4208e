package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"bibtag/internal/queue"
)

func newRetryCommand(ctx *commandContext) *cobra.Command {
	var runFlag string

	cmd := &cobra.Command{
		Use:   "retry [item-ids...]",
		Short: "Return failed photos to the queue; resume the run to reprocess them",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			retryCtx := context.Background()
			var runArgs []string
			if strings.TrimSpace(runFlag) != "" {
				runArgs = []string{runFlag}
			}
			run, err := findResumableRun(retryCtx, store, runArgs)
			if err != nil {
				return err
			}

			ids, err := parseItemIDs(args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			failed, err := store.List(retryCtx, run.ID, queue.StatusFailed)
			if err != nil {
				return fmt.Errorf("list failed items: %w", err)
			}
			printFailedItems(out, failed, ids)

			retried, err := store.RetryFailed(retryCtx, run.ID, ids...)
			if err != nil {
				return fmt.Errorf("retry failed items: %w", err)
			}
			if retried == 0 {
				fmt.Fprintln(out, "No failed photos matched")
				return nil
			}
			fmt.Fprintf(out, "Queued %d photos for reprocessing; run `bibtag resume %s`\n", retried, run.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&runFlag, "run", "", "Run to retry (defaults to the latest)")
	return cmd
}

// printFailedItems shows the failures being requeued. An explicit id list
// narrows the output to the items it names.
func printFailedItems(out io.Writer, failed []*queue.Item, ids []int64) {
	selected := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		selected[id] = struct{}{}
	}
	for _, item := range failed {
		if len(selected) > 0 {
			if _, ok := selected[item.ID]; !ok {
				continue
			}
		}
		fmt.Fprintf(out, "  %d  %s (%s)\n", item.ID, item.SourcePath, item.FailureReason)
	}
}

func parseItemIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid item id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
