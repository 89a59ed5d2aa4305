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
	"github.com/Open-Technology-Foundation/checkpoint/pkg/checksum"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/lock"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/retention"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/snapshot"
)

func runCreate(o verbOptions) error {
	args, err := requireArgs(o, 1, "checkpoint <source>")
	if err != nil {
		return err
	}
	source, err := absPath(args[0])
	if err != nil {
		return errors.NewInputError("Invalid source path", err.Error(), "", err)
	}
	if info, err := os.Stat(source); err != nil || !info.IsDir() {
		return errors.NewInputError(
			"Source is not a directory",
			fmt.Sprintf("%s does not exist or is not a directory", source),
			"Pass the path to an existing directory",
		)
	}

	root, err := resolveBackupRoot(o.backupDir, source)
	if err != nil {
		return err
	}
	cfg, err := EnsureConfig(root)
	if err != nil {
		return err
	}

	hardlink := cfg.hardlinkEnabled()
	if !o.hardlink {
		hardlink = false
	}

	excludes := append([]string{}, cfg.Excludes...)

	opts := []snapshot.Option{
		snapshot.WithSuffix(o.suffix),
		snapshot.WithHardlink(hardlink),
		snapshot.WithDescription(o.description),
		snapshot.WithVerify(o.verify),
		snapshot.WithExcludes(excludes),
		snapshot.WithChecksumPreference(parseChecksumPref(cfg.Checksum)...),
		snapshot.WithLockTimeout(o.lockTimeout),
		snapshot.WithForce(o.force),
		snapshot.WithProgress(newProgressReporter(o.globals)),
	}

	if !o.globals.Quiet {
		ui.Header(fmt.Sprintf("Creating snapshot of %s", source))
		ui.SubHeader(fmt.Sprintf("Backup root: %s", root))
	}

	ctx := context.Background()
	name, err := snapshot.Create(ctx, source, root, opts...)
	if err != nil {
		return err
	}

	if !o.globals.Quiet {
		ui.Success(fmt.Sprintf("Created %s", name))
	} else if o.globals.JSON {
		fmt.Printf("{\"snapshot\":%q,\"root\":%q}\n", name, root)
	}

	return applyRetention(o, root, cfg)
}

// applyRetention runs the configured retention policy (flags override
// config defaults) after a successful create. A missing policy on
// both sides is a no-op, not an error.
func applyRetention(o verbOptions, root string, cfg *Config) error {
	keepN := o.keepN
	maxAge := o.maxAgeDays
	if keepN < 0 {
		keepN = cfg.Retention.KeepN
	}
	if maxAge < 0 {
		maxAge = cfg.Retention.MaxAgeDays
	}

	var policy retention.Policy
	switch {
	case maxAge > 0:
		policy = retention.MaxAgeDays(maxAge)
	case keepN > 0:
		policy = retention.KeepN(keepN)
	default:
		return nil
	}

	handle, err := lock.Acquire(root, o.lockTimeout, false)
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release(handle) }()

	result, err := retention.Prune(root, policy)
	if err != nil {
		return err
	}
	if len(result.Removed) > 0 && !o.globals.Quiet {
		ui.Info(fmt.Sprintf("Pruned %d snapshot(s): %v", len(result.Removed), result.Removed))
	}
	return nil
}

func parseChecksumPref(name string) []checksum.Algorithm {
	switch name {
	case "md5":
		return []checksum.Algorithm{checksum.MD5}
	case "size":
		return []checksum.Algorithm{checksum.SizeOnly}
	default:
		return []checksum.Algorithm{checksum.SHA256}
	}
}

func snapshotPath(root, name string) string {
	return filepath.Join(root, name)
}
