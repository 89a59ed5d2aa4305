// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
	"github.com/Open-Technology-Foundation/checkpoint/internal/ui"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/metadata"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/snapshot"
)

// listDescending returns root's snapshot names newest-first, the
// natural order for a --list listing.
func listDescending(root string) []string {
	names := snapshot.ListNames(root)
	out := make([]string, len(names))
	for i, n := range names {
		out[len(names)-1-i] = n
	}
	return out
}

func runList(o verbOptions) error {
	root := o.backupDir
	if root == "" {
		args, err := requireArgs(o, 1, "checkpoint --list <backup-root>")
		if err != nil {
			return err
		}
		r, err := absPath(args[0])
		if err != nil {
			return errors.NewInputError("Invalid backup root path", err.Error(), "", err)
		}
		root = r
	}

	names := listDescending(root)
	if len(names) == 0 {
		if !o.globals.Quiet {
			ui.Info("No snapshots found")
		}
		return nil
	}

	if o.globals.JSON {
		fmt.Print("[")
		for i, n := range names {
			if i > 0 {
				fmt.Print(",")
			}
			fmt.Printf("%q", n)
		}
		fmt.Println("]")
		return nil
	}

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		desc := "-"
		if rec, err := metadata.Read(snapshotPath(root, name)); err == nil {
			if v, ok := rec.Get("DESCRIPTION"); ok && v != "" {
				desc = v
			}
		}
		rows = append(rows, []string{name, desc})
	}
	ui.Table([]string{"Snapshot", "Description"}, rows)
	return nil
}
