package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"mediasort/internal/ingest"
	"mediasort/internal/organizer"
)

const pathColumnWidth = 60

func renderReport(out io.Writer, report *organizer.Report) {
	if report == nil {
		return
	}
	if report.DryRun() {
		fmt.Fprintln(out, "Dry run: no files were changed")
	}
	if report.Canceled {
		fmt.Fprintln(out, "Pass canceled: remaining sets were not processed")
	}

	if len(report.Operations) > 0 {
		rows := make([][]string, 0, len(report.Operations))
		for i, op := range report.Operations {
			rows = append(rows, []string{
				strconv.Itoa(i + 1),
				string(op.Outcome),
				op.Reason,
				op.KindName,
				relativeTo(report.Source, op.Primary),
				operationDestination(report.Output, op),
			})
		}
		fmt.Fprintln(out, renderTable([]column{
			{header: "#", align: alignRight},
			{header: "Outcome"},
			{header: "Reason"},
			{header: "Kind"},
			{header: "Source", maxWidth: pathColumnWidth},
			{header: "Destination", maxWidth: pathColumnWidth},
		}, rows))
	}

	s := report.Summary
	fmt.Fprintln(out, keyValueTable([][]string{
		{"Run", report.RunID},
		{"Mode", report.Mode},
		{"Source", report.Source},
		{"Output", report.Output},
		{"Files seen", strconv.Itoa(s.Seen)},
		{"Ledgered", strconv.Itoa(s.Ledgered)},
		{"Sets", strconv.Itoa(s.Sets)},
		{"Executed", strconv.Itoa(s.Executed)},
		{"Skipped", strconv.Itoa(s.Skipped)},
		{"Failed", strconv.Itoa(s.Failed)},
		{"Files moved", strconv.Itoa(s.Moved)},
		{"Dirs pruned", strconv.Itoa(s.Pruned)},
		{"Duration", report.Duration().Round(time.Millisecond).String()},
	}))

	if counts := report.ReasonCounts(); len(counts) > 0 {
		reasons := make([]string, 0, len(counts))
		for reason := range counts {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		parts := make([]string, 0, len(reasons))
		for _, reason := range reasons {
			parts = append(parts, fmt.Sprintf("%s=%d", reason, counts[reason]))
		}
		fmt.Fprintf(out, "Reasons: %s\n", strings.Join(parts, ", "))
	}
}

func operationDestination(root string, op organizer.Operation) string {
	if len(op.Moves) == 0 {
		return ""
	}
	dest := relativeTo(root, op.Moves[0].Destination)
	if extra := len(op.Moves) - 1; extra > 0 {
		dest = fmt.Sprintf("%s (+%d)", dest, extra)
	}
	return dest
}

func renderIngest(out io.Writer, result *ingest.Result, dryRun bool) {
	if result == nil {
		return
	}
	if dryRun {
		fmt.Fprintln(out, "Dry run: nothing was copied")
	}
	fmt.Fprintln(out, keyValueTable([][]string{
		{"Mount", result.Mount},
		{"Staging", result.Staging},
		{"Files seen", strconv.Itoa(result.Seen)},
		{"Copied", strconv.Itoa(result.Copied)},
		{"Other files", strconv.Itoa(result.Other)},
		{"Ledgered", strconv.Itoa(result.Ledgered)},
		{"Already present", strconv.Itoa(result.Skipped)},
		{"Failed", strconv.Itoa(result.Failed)},
		{"Bytes", strconv.FormatInt(result.Bytes, 10)},
	}))
	for _, failure := range result.Failures {
		fmt.Fprintf(out, "failed: %s\n", failure)
	}
	if result.Organize != nil {
		renderReport(out, result.Organize)
	}
}

func relativeTo(root, path string) string {
	if root == "" || path == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}
