// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
	"github.com/Open-Technology-Foundation/checkpoint/internal/ui"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/compare"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/remote"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/restore"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/snapshot"
)

// runRemote dispatches whichever verb flags accompany --remote
// against the parsed user@host:path spec, over SSH/SFTP.
func runRemote(o verbOptions) error {
	spec, err := remote.Parse(o.remote)
	if err != nil {
		return err
	}

	keyPath := os.Getenv("CHECKPOINT_SSH_KEY")
	if keyPath == "" {
		home, herr := os.UserHomeDir()
		if herr == nil {
			keyPath = filepath.Join(home, ".ssh", "id_ed25519")
		}
	}
	knownHosts := os.Getenv("CHECKPOINT_KNOWN_HOSTS")
	if knownHosts == "" {
		if home, herr := os.UserHomeDir(); herr == nil {
			knownHosts = filepath.Join(home, ".ssh", "known_hosts")
		}
	}

	dispatcher := remote.NewDispatcher(remote.TransportConfig{
		PrivateKeyPath: keyPath,
		KnownHostsPath: knownHosts,
	})

	switch {
	case o.list:
		names, err := dispatcher.List(spec)
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil

	case o.pruneOnly:
		if o.keepN < 0 {
			return errors.NewInputError("Missing --keep-n", "remote pruning requires --keep-n", "")
		}
		removed, err := dispatcher.Retain(spec, o.keepN)
		if err != nil {
			return err
		}
		if !o.globals.Quiet {
			ui.Success(fmt.Sprintf("Removed %d remote snapshot(s)", len(removed)))
		}
		return nil

	case o.showMeta != "":
		text, err := dispatcher.MetadataShow(spec, o.showMeta)
		if err != nil {
			return err
		}
		fmt.Print(text)
		return nil

	case o.verify:
		if len(o.args) < 1 {
			return errors.NewMissingArgError("Missing required argument", "expected: checkpoint --remote <spec> --verify <snapshot>", "")
		}
		out, err := dispatcher.Verify(spec, o.args[0])
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil

	case o.compareWith != "":
		if len(o.args) < 1 {
			return errors.NewMissingArgError("Missing required argument", "expected: checkpoint --remote <spec> --compare-with <snapshot> <local-path>", "")
		}
		localDir, err := absPath(o.args[0])
		if err != nil {
			return err
		}
		report, err := dispatcher.Compare(spec, o.compareWith, localDir, compare.Options{Patterns: o.patterns, Detailed: true, DiffTool: compare.SelectDiffTool()})
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

	case o.restore != "":
		target := o.target
		if target == "" {
			return errors.NewInputError("Missing --target", "remote restore requires an explicit --target directory", "Pass --target <dir>")
		}
		result, err := dispatcher.Restore(context.Background(), spec, o.restore, target, restore.Options{
			Patterns:    o.patterns,
			DryRun:      o.dryRun,
			FullReplace: o.fullReplace,
		})
		if err != nil {
			return err
		}
		if !o.globals.Quiet {
			label := "Restored"
			if result.DryRun {
				label = "Would restore"
			}
			ui.Success(fmt.Sprintf("%s %d file(s) from %s on %s to %s", label, len(result.Changes), o.restore, spec.String(), target))
		}
		if result.Partial() {
			return errors.NewPartialResultError("Partial restore", fmt.Sprintf("%d entries could not be restored", len(result.Errors)), "")
		}
		return nil

	default:
		args, err := requireArgs(o, 1, "checkpoint --remote <spec> <source>")
		if err != nil {
			return err
		}
		source, err := absPath(args[0])
		if err != nil {
			return err
		}
		if err := dispatcher.Probe(spec); err != nil {
			return err
		}
		name, err := snapshot.BuildName(o.suffix)
		if err != nil {
			return err
		}
		if err := dispatcher.Create(spec, source, name, nil); err != nil {
			return err
		}
		if !o.globals.Quiet {
			ui.Success(fmt.Sprintf("Created %s on %s", name, spec.String()))
		}
		return nil
	}
}
