// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
	"github.com/Open-Technology-Foundation/checkpoint/internal/ui"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/lock"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/retention"
)

func runPrune(o verbOptions) error {
	root := o.backupDir
	if root == "" {
		args, err := requireArgs(o, 1, "checkpoint --prune-only --backup-dir <dir>")
		if err != nil {
			return err
		}
		r, err := absPath(args[0])
		if err != nil {
			return err
		}
		root = r
	}

	var policy retention.Policy
	switch {
	case o.maxAgeDays >= 0:
		policy = retention.MaxAgeDays(o.maxAgeDays)
	case o.keepN >= 0:
		policy = retention.KeepN(o.keepN)
	default:
		cfg, err := LoadConfig(ConfigPath(root))
		if err != nil {
			return err
		}
		switch {
		case cfg.Retention.MaxAgeDays > 0:
			policy = retention.MaxAgeDays(cfg.Retention.MaxAgeDays)
		case cfg.Retention.KeepN > 0:
			policy = retention.KeepN(cfg.Retention.KeepN)
		default:
			return errors.NewInputError(
				"No retention policy specified",
				"neither --keep-n, --max-age-days, nor config.yaml define one",
				"Pass --keep-n N or --max-age-days D",
			)
		}
	}

	handle, err := lock.Acquire(root, o.lockTimeout, o.force)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release(handle) }()

	result, err := retention.Prune(root, policy)
	if err != nil {
		return err
	}

	if o.globals.JSON {
		fmt.Printf("{\"removed\":%d,\"kept\":%d}\n", len(result.Removed), len(result.Kept))
		return nil
	}
	if !o.globals.Quiet {
		if len(result.Removed) == 0 {
			ui.Info("Nothing to prune")
			return nil
		}
		ui.Success(fmt.Sprintf("Removed %d snapshot(s)", len(result.Removed)))
		for _, name := range result.Removed {
			fmt.Printf("  - %s\n", name)
		}
	}
	return nil
}
