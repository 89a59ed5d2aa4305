// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
	"github.com/Open-Technology-Foundation/checkpoint/internal/ui"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/compare"
)

// runCompare handles `checkpoint --compare-with <second> <first>`.
// Both arguments may name either a snapshot directory under
// --backup-dir or an absolute path; a bare name is resolved against
// --backup-dir when set.
func runCompare(o verbOptions) error {
	args, err := requireArgs(o, 1, "checkpoint --compare-with <second> <first>")
	if err != nil {
		return err
	}
	first := resolveComparePath(o.backupDir, args[0])
	second := resolveComparePath(o.backupDir, o.compareWith)

	for _, p := range []string{first, second} {
		if _, err := os.Stat(p); err != nil {
			return errors.NewInputError("Path not found", fmt.Sprintf("%s does not exist", p), "")
		}
	}

	opts := compare.Options{
		Patterns: o.patterns,
		Detailed: true,
		DiffTool: compare.SelectDiffTool(),
	}

	report, err := compare.Snapshots(first, second, opts)
	if err != nil {
		return err
	}

	if o.globals.JSON {
		printReportJSON(report)
	} else {
		printReport(report, o.globals)
	}
	if report.Partial() {
		return errors.NewPartialResultError("Partial comparison", fmt.Sprintf("%d entries could not be compared", len(report.Errors)), "")
	}
	return nil
}

func resolveComparePath(backupDir, arg string) string {
	if backupDir == "" {
		return arg
	}
	if _, err := os.Stat(arg); err == nil {
		return arg
	}
	return snapshotPath(backupDir, arg)
}

func printReport(report *compare.Report, g globalFlags) {
	if g.Quiet {
		return
	}
	counts := report.Counts()
	ui.SubHeader(fmt.Sprintf(
		"%d identical, %d differ, %d only-in-first, %d only-in-second, %d inaccessible",
		counts[compare.Identical], counts[compare.Differs],
		counts[compare.OnlyInFirst], counts[compare.OnlyInSecond],
		counts[compare.Inaccessible],
	))
	for _, e := range report.Entries {
		if e.Status == compare.Identical {
			continue
		}
		fmt.Printf("%s  %s\n", statusLabel(e.Status), e.Path)
		if e.Diff != "" {
			fmt.Println(e.Diff)
		}
		if e.Err != "" {
			fmt.Printf("  error: %s\n", e.Err)
		}
	}
}

func statusLabel(s compare.Status) string {
	switch s {
	case compare.Differs:
		return ui.DimText("M")
	case compare.OnlyInFirst:
		return ui.DimText("-")
	case compare.OnlyInSecond:
		return ui.DimText("+")
	case compare.Inaccessible:
		return ui.DimText("!")
	default:
		return " "
	}
}

func printReportJSON(report *compare.Report) {
	fmt.Print("[")
	for i, e := range report.Entries {
		if i > 0 {
			fmt.Print(",")
		}
		fmt.Printf("{\"path\":%q,\"status\":%q}", e.Path, string(e.Status))
	}
	fmt.Println("]")
}
