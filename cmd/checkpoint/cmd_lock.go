// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/Open-Technology-Foundation/checkpoint/internal/ui"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/lock"
)

func runForceUnlock(o verbOptions) error {
	root := o.backupDir
	if root == "" {
		args, err := requireArgs(o, 1, "checkpoint --force-unlock --backup-dir <dir>")
		if err != nil {
			return err
		}
		r, err := absPath(args[0])
		if err != nil {
			return err
		}
		root = r
	}

	if err := lock.ForceRelease(root); err != nil {
		return err
	}
	if !o.globals.Quiet {
		ui.Success(fmt.Sprintf("Removed lock on %s", root))
	}
	return nil
}
