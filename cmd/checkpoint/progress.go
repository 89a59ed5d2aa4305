// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"github.com/schollz/progressbar/v3"

	"github.com/Open-Technology-Foundation/checkpoint/pkg/snapshot"
)

// newProgressReporter returns a snapshot.ProgressFunc that renders a
// terminal progress bar per phase, or nil when output should stay
// quiet (--quiet or --json).
func newProgressReporter(g globalFlags) snapshot.ProgressFunc {
	if g.Quiet || g.JSON {
		return nil
	}

	var bar *progressbar.ProgressBar
	var currentPhase string

	return func(current, total int64, phase string) {
		if phase != currentPhase {
			if bar != nil {
				_ = bar.Finish()
			}
			currentPhase = phase
			bar = progressbar.NewOptions64(total,
				progressbar.OptionSetDescription(phaseDescription(phase)),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(30),
				progressbar.OptionClearOnFinish(),
			)
		}
		if bar != nil {
			_ = bar.Set64(current)
		}
	}
}

// phaseDescription returns a human-readable label for a snapshot
// creation phase.
func phaseDescription(phase string) string {
	switch phase {
	case "populate":
		return "Copying files"
	case "verify":
		return "Verifying integrity"
	default:
		return phase
	}
}
