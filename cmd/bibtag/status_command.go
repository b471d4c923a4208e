package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"bibtag/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var allRuns bool

	cmd := &cobra.Command{
		Use:   "status [run-id]",
		Short: "Show the state of a run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			statusCtx := context.Background()
			out := cmd.OutOrStdout()

			if allRuns {
				return printRunList(statusCtx, out, store)
			}

			run, err := findResumableRun(statusCtx, store, args)
			if err != nil {
				return err
			}
			return printRunStatus(statusCtx, out, store, run)
		},
	}

	cmd.Flags().BoolVar(&allRuns, "all", false, "List every recorded run")
	return cmd
}

func printRunList(ctx context.Context, out io.Writer, store *queue.Store) error {
	runs, err := store.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded")
		return nil
	}
	rows := make([]table.Row, 0, len(runs))
	for _, run := range runs {
		completed := ""
		if run.CompletedAt != nil {
			completed = run.CompletedAt.Local().Format("2006-01-02 15:04:05")
		}
		rows = append(rows, table.Row{
			run.ID,
			string(run.Status),
			run.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			completed,
		})
	}
	fmt.Fprintln(out, renderTable(table.Row{"Run", "Status", "Started", "Completed"}, rows))
	return nil
}

func printRunStatus(ctx context.Context, out io.Writer, store *queue.Store, run *queue.Run) error {
	colorize := shouldColorize(out)
	fmt.Fprintf(out, "Run %s\n", run.ID)
	fmt.Fprintln(out, renderStatusLine("Status", runStatusKind(run.Status), string(run.Status), colorize))

	health, err := store.Health(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("read run health: %w", err)
	}
	if health.Failed > 0 {
		fmt.Fprintln(out, renderStatusLine("Failures", statusWarn, fmt.Sprintf("%d photos", health.Failed), colorize))
	}
	if health.Waiting > 0 {
		fmt.Fprintln(out, renderStatusLine("Awaiting burst", statusInfo, fmt.Sprintf("%d photos", health.Waiting), colorize))
	}

	stats, err := store.Stats(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("read run stats: %w", err)
	}
	rows := make([]table.Row, 0, len(stats))
	for _, status := range statusOrder {
		if count := stats[status]; count > 0 {
			rows = append(rows, table.Row{string(status), count})
		}
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No photos queued")
		return nil
	}
	fmt.Fprintln(out, renderTable(table.Row{"State", "Photos"}, rows, 2))

	review, err := store.ReviewItems(ctx, run.ID)
	if err != nil {
		return fmt.Errorf("read review items: %w", err)
	}
	if len(review) > 0 {
		fmt.Fprintf(out, "%d photos need manual review; see `bibtag report %s`\n", len(review), run.ID)
	}
	return nil
}

func runStatusKind(status queue.RunStatus) statusKind {
	switch status {
	case queue.RunCompleted:
		return statusOK
	case queue.RunCancelled:
		return statusWarn
	default:
		return statusInfo
	}
}

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
)

const (
	ansiReset  = "\x1b[0m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	text := fmt.Sprintf("  %-16s %s", label+":", strings.TrimSpace(message))
	if !colorize {
		return text
	}
	switch kind {
	case statusOK:
		return ansiGreen + text + ansiReset
	case statusWarn:
		return ansiYellow + text + ansiReset
	default:
		return ansiBlue + text + ansiReset
	}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
