// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
	"github.com/Open-Technology-Foundation/checkpoint/internal/ui"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/metadata"
)

// runMetadata handles the three --metadata sub-modes: --show,
// --show combined with one or more --update KEY=VALUE, and --find.
func runMetadata(o verbOptions) error {
	if o.findMeta != "" {
		return runMetadataFind(o)
	}
	if o.showMeta == "" {
		return errors.NewInputError(
			"Missing snapshot name",
			"--metadata requires --show <snapshot>, or --find KEY=VALUE",
			"",
		)
	}
	if o.backupDir == "" {
		return errors.NewInputError("Missing backup root", "--metadata requires --backup-dir", "")
	}
	snapshotDir := snapshotPath(o.backupDir, o.showMeta)

	if len(o.updateMeta) > 0 {
		for _, kv := range o.updateMeta {
			key, value, err := parseKeyValue(kv)
			if err != nil {
				return err
			}
			if err := metadata.Update(snapshotDir, key, value); err != nil {
				return err
			}
		}
		if !o.globals.Quiet {
			ui.Success(fmt.Sprintf("Updated metadata for %s", o.showMeta))
		}
	}

	text, err := metadata.Show(snapshotDir)
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}

func runMetadataFind(o verbOptions) error {
	if o.backupDir == "" {
		return errors.NewInputError("Missing backup root", "--find requires --backup-dir", "")
	}
	key, value, err := parseKeyValue(o.findMeta)
	if err != nil {
		return err
	}
	matches, err := metadata.Find(o.backupDir, metadata.Predicate{Key: key, Value: value})
	if err != nil {
		return err
	}
	if o.globals.JSON {
		fmt.Print("[")
		for i, m := range matches {
			if i > 0 {
				fmt.Print(",")
			}
			fmt.Printf("%q", m)
		}
		fmt.Println("]")
		return nil
	}
	if len(matches) == 0 {
		ui.Info("No matching snapshots")
		return nil
	}
	for _, m := range matches {
		fmt.Println(m)
	}
	return nil
}
