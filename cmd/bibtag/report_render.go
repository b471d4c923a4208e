package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"bibtag/internal/queue"
	"bibtag/internal/workflow"
)

// statusOrder fixes the rendering order of per-status counts to pipeline
// order so tables read top to bottom the way photos flow.
var statusOrder = []queue.Status{
	queue.StatusPending,
	queue.StatusDecoding,
	queue.StatusDecoded,
	queue.StatusRecognizing,
	queue.StatusRecognized,
	queue.StatusTemporalPending,
	queue.StatusCorrecting,
	queue.StatusCorrected,
	queue.StatusMatching,
	queue.StatusMatched,
	queue.StatusCommitting,
	queue.StatusCompleted,
	queue.StatusFailed,
}

func printRunReport(out io.Writer, report workflow.RunReport) {
	fmt.Fprintf(out, "\nRun %s (%s)\n", report.RunID, report.Status)

	rows := make([]table.Row, 0, len(report.Counts))
	for _, status := range statusOrder {
		if count := report.Counts[status]; count > 0 {
			rows = append(rows, table.Row{string(status), count})
		}
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(table.Row{"State", "Photos"}, rows, 2))
	}

	if len(report.Failures) > 0 {
		reasons := make([]string, 0, len(report.Failures))
		for reason := range report.Failures {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		failureRows := make([]table.Row, 0, len(reasons))
		for _, reason := range reasons {
			failureRows = append(failureRows, table.Row{reason, report.Failures[reason]})
		}
		fmt.Fprintln(out, "Failures:")
		fmt.Fprintln(out, renderTable(table.Row{"Reason", "Photos"}, failureRows, 2))
	}

	if len(report.Review) > 0 {
		reviewRows := make([]table.Row, 0, len(report.Review))
		for _, entry := range report.Review {
			reviewRows = append(reviewRows, table.Row{entry.ItemID, entry.SourcePath, entry.Reason})
		}
		fmt.Fprintf(out, "Manual review needed (%d):\n", len(report.Review))
		fmt.Fprintln(out, renderTable(table.Row{"Item", "Photo", "Reason"}, reviewRows, 1))
	}

	fmt.Fprintf(out, "Elapsed %s", report.Elapsed.Round(time.Second))
	if report.Throughput > 0 {
		fmt.Fprintf(out, ", %.1f photos/min", report.Throughput)
	}
	fmt.Fprintln(out)
}
