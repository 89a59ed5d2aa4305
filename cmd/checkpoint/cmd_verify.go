// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"fmt"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
	"github.com/Open-Technology-Foundation/checkpoint/internal/ui"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/snapshot"
)

// runVerify re-verifies a published snapshot against its original
// source: checkpoint --backup-dir <dir> --verify <snapshot-name> <source>.
func runVerify(o verbOptions) error {
	if len(o.args) < 2 {
		return errors.NewMissingArgError(
			"Missing required argument",
			"expected: checkpoint --backup-dir <dir> --verify <snapshot> <source>",
			"",
		)
	}
	if o.backupDir == "" {
		return errors.NewInputError("Missing backup root", "--verify requires --backup-dir", "")
	}

	name, source := o.args[0], o.args[1]
	snapshotDir := snapshotPath(o.backupDir, name)

	cfg, err := LoadConfig(ConfigPath(o.backupDir))
	if err != nil {
		return err
	}

	if err := snapshot.Verify(context.Background(), snapshotDir, source, cfg.Excludes, 100); err != nil {
		return err
	}
	if !o.globals.Quiet {
		ui.Success(fmt.Sprintf("%s matches %s", name, source))
	}
	return nil
}
