// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retention implements checkpoint's count- and age-based
// pruning policy: which snapshots a prune call removes, and in what
// order.
package retention

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Open-Technology-Foundation/checkpoint/pkg/platform"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/snapshot"
)

// Mode selects which retention rule a Prune call applies.
type Mode int

const (
	// ModeKeepN keeps the N most recent snapshots, removing the rest.
	ModeKeepN Mode = iota
	// ModeMaxAgeDays removes snapshots older than a day bound.
	ModeMaxAgeDays
)

// Policy is one retention rule: either keep the N newest snapshots or
// drop everything older than MaxAgeDays.
type Policy struct {
	Mode       Mode
	KeepN      int
	MaxAgeDays int
}

// KeepN returns a policy that keeps the n most recent snapshots.
func KeepN(n int) Policy { return Policy{Mode: ModeKeepN, KeepN: n} }

// MaxAgeDays returns a policy that removes snapshots older than days.
func MaxAgeDays(days int) Policy { return Policy{Mode: ModeMaxAgeDays, MaxAgeDays: days} }

// Result reports what a Prune call removed.
type Result struct {
	Removed []string
	Kept    []string
}

// Plan computes which snapshot names under root the policy would
// remove, without touching the filesystem. Names considered are only
// those matching snapshot.NameRegex; everything else under root is
// ignored. Removal order in the returned slice is oldest-first, and
// the single most recent snapshot is never included unless p is
// ModeKeepN with KeepN == 0 (an explicit prune-to-empty request).
func Plan(root string, p Policy) ([]string, error) {
	names := snapshot.ListNames(root) // ascending, oldest first

	if len(names) == 0 {
		return nil, nil
	}

	switch p.Mode {
	case ModeKeepN:
		return planKeepN(names, p.KeepN), nil
	case ModeMaxAgeDays:
		return planMaxAge(names, p.MaxAgeDays)
	default:
		return nil, fmt.Errorf("unknown retention mode %d", p.Mode)
	}
}

func planKeepN(names []string, keepN int) []string {
	if keepN < 0 {
		keepN = 0
	}
	if keepN >= len(names) {
		return nil
	}
	// names is ascending; the newest keepN are the tail.
	cut := len(names) - keepN
	return append([]string{}, names[:cut]...)
}

func planMaxAge(names []string, maxAgeDays int) ([]string, error) {
	cutoff := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	var doomed []string
	for i, name := range names {
		ts, err := parseSnapshotTime(name)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp from snapshot name %q: %w", name, err)
		}
		if !ts.Before(cutoff) {
			continue
		}
		// The most recent snapshot overall is protected even if it is
		// older than the cutoff, unless the caller asked for an explicit
		// keep-zero: max-age mode has no such escape hatch, so it is
		// always protected here.
		if i == len(names)-1 {
			continue
		}
		doomed = append(doomed, name)
	}
	return doomed, nil
}

func parseSnapshotTime(name string) (time.Time, error) {
	ts := name
	if len(name) > 15 {
		ts = name[:15] // YYYYMMDD_HHMMSS
	}
	return time.ParseInLocation(platform.SnapshotTimeFormat, ts, time.Local)
}

// Prune applies p to root, deleting the planned snapshots and
// returning what was removed and what remains. Prune does not acquire
// the backup-root lock itself; its callers take the lock around the
// call.
func Prune(root string, p Policy) (*Result, error) {
	logger := slog.Default().With("op", "retention.prune", "root", root)

	doomed, err := Plan(root, p)
	if err != nil {
		return nil, err
	}
	doomedSet := make(map[string]bool, len(doomed))
	for _, d := range doomed {
		doomedSet[d] = true
	}

	result := &Result{}
	for _, name := range doomed {
		dir := filepath.Join(root, name)
		if err := os.RemoveAll(dir); err != nil {
			return result, fmt.Errorf("remove snapshot %q: %w", name, err)
		}
		logger.Info("snapshot pruned", "snapshot", name)
		result.Removed = append(result.Removed, name)
	}
	for _, name := range snapshot.ListNames(root) {
		if !doomedSet[name] {
			result.Kept = append(result.Kept, name)
		}
	}
	return result, nil
}
