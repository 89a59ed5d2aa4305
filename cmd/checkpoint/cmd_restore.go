// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
	"github.com/Open-Technology-Foundation/checkpoint/internal/ui"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/compare"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/restore"
)

// confirmTimeout bounds how long the restore confirmation prompt
// waits for a reply before treating the restore as declined.
const confirmTimeout = 2 * time.Minute

func runRestore(o verbOptions) error {
	root := o.backupDir
	if root == "" {
		return errors.NewInputError(
			"Missing backup root",
			"--restore requires --backup-dir to locate the snapshot",
			"Pass --backup-dir <dir>",
		)
	}
	snapshotDir := snapshotPath(root, o.restore)
	if _, err := os.Stat(snapshotDir); err != nil {
		return errors.NewInputError(
			"Snapshot not found",
			fmt.Sprintf("%s does not exist", snapshotDir),
			"Run checkpoint --list --backup-dir <dir> to see available snapshots",
		)
	}

	target := o.target
	if target == "" {
		t, err := restore.ResolveTarget(snapshotDir)
		if err != nil {
			return err
		}
		target = t
	}

	confirm := func(report compare.Report) bool {
		printReport(&report, o.globals)
		if os.Getenv("CHECKPOINT_AUTO_CONFIRM") != "" {
			return true
		}
		if o.globals.Quiet || o.globals.JSON {
			return true
		}
		fmt.Fprint(os.Stderr, "Proceed with restore? [y/N] ")
		return readConfirmation(os.Stdin, confirmTimeout)
	}

	opts := restore.Options{
		Patterns:    o.patterns,
		DryRun:      o.dryRun,
		DiffFirst:   o.diff,
		FullReplace: o.fullReplace,
		Confirm:     confirm,
	}

	result, err := restore.Restore(context.Background(), snapshotDir, target, opts)
	if err != nil {
		return err
	}

	if o.globals.JSON {
		fmt.Printf("{\"changes\":%d,\"errors\":%d,\"dry_run\":%v}\n", len(result.Changes), len(result.Errors), result.DryRun)
	} else if !o.globals.Quiet {
		label := "Restored"
		if result.DryRun {
			label = "Would restore"
		}
		ui.Success(fmt.Sprintf("%s %d file(s) from %s to %s", label, len(result.Changes), o.restore, target))
	}
	if result.Partial() {
		return errors.NewPartialResultError("Partial restore", fmt.Sprintf("%d entries could not be restored", len(result.Errors)), "")
	}
	return nil
}

// readConfirmation reads one line from r, bounded by timeout: a reply
// that doesn't arrive in time is treated as "no", never as a hang.
func readConfirmation(r *os.File, timeout time.Duration) bool {
	lineCh := make(chan string, 1)
	go func() {
		reader := bufio.NewReader(r)
		line, _ := reader.ReadString('\n')
		lineCh <- line
	}()

	select {
	case line := <-lineCh:
		return strings.EqualFold(strings.TrimSpace(line), "y")
	case <-time.After(timeout):
		fmt.Fprintln(os.Stderr, "\nNo response received; declining restore")
		return false
	}
}
