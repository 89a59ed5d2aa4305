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

// Package restore implements checkpoint's restore engine: full or
// selective copy-back from a published snapshot to a target
// directory, with dry-run preview and an optional pre-restore diff.
// Restore is a merge by default: it adds and overwrites matching
// entries but never deletes entries already present in the target
// that the snapshot doesn't have.
package restore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/compare"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/metadata"
)

// metadataFileName mirrors metadata's private file name; duplicated
// here since restore must skip it during the walk but the metadata
// package exposes no accessor for a constant this small.
const metadataFileName = ".metadata"

func patternMatcher(patterns []string) func(string) bool {
	if len(patterns) == 0 {
		return nil
	}
	return func(rel string) bool {
		base := filepath.Base(rel)
		for _, p := range patterns {
			if ok, _ := filepath.Match(p, rel); ok {
				return true
			}
			if ok, _ := filepath.Match(p, base); ok {
				return true
			}
		}
		return false
	}
}

// Options configures a Restore call.
type Options struct {
	Patterns    []string // if non-empty, restrict restore to matching relative paths
	DryRun      bool     // enumerate changes without touching the target
	DiffFirst   bool     // run a live-vs-snapshot comparison before restoring
	FullReplace bool     // delete target entries absent from the snapshot (default: merge only)
	Confirm     func(compare.Report) bool // consulted when DiffFirst is set; nil means always proceed
}

// Change describes one file the restore did, or would do under a
// dry run.
type Change struct {
	Path   string
	Action string // "create", "overwrite", "delete"
}

// Result is the outcome of a Restore call.
type Result struct {
	Changes []Change
	Errors  []string
	DryRun  bool
}

// Partial reports whether any individual file failed during restore,
// the condition that promotes a caller's result to PartialRestore.
func (r *Result) Partial() bool { return len(r.Errors) > 0 }

// Restore copies snapshotDir onto targetDir per opts. If targetDir is
// empty, callers should resolve it from the snapshot's SOURCE metadata
// field before calling Restore (see ResolveTarget).
func Restore(ctx context.Context, snapshotDir, targetDir string, opts Options) (*Result, error) {
	logger := slog.Default().With("op", "restore", "snapshot", snapshotDir, "target", targetDir)

	if opts.DiffFirst {
		report, err := compare.Live(snapshotDir, targetDir, compare.Options{Patterns: opts.Patterns})
		if err != nil {
			return nil, errors.NewInternalError("Pre-restore comparison failed", err.Error(), "", err)
		}
		if opts.Confirm != nil && !opts.Confirm(*report) {
			return nil, errors.NewCancelledError("Restore cancelled", "user declined after reviewing the pre-restore diff", "")
		}
	}

	matcher := patternMatcher(opts.Patterns)

	result := &Result{DryRun: opts.DryRun}

	if err := os.MkdirAll(targetDir, 0o750); err != nil {
		return nil, errors.NewEnvironmentError("Cannot create restore target", err.Error(), "Check permissions on the target's parent directory", err)
	}

	if err := filepath.Walk(snapshotDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		if path == snapshotDir {
			return nil
		}
		rel, relErr := filepath.Rel(snapshotDir, path)
		if relErr != nil {
			return relErr
		}
		if rel == metadataFileName {
			return nil // never restore the engine's own bookkeeping file
		}
		if matcher != nil && !matcher(rel) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		dest := filepath.Join(targetDir, rel)
		_, existed := os.Lstat(dest)
		action := "create"
		if existed == nil {
			action = "overwrite"
		}

		if opts.DryRun {
			if !info.IsDir() {
				result.Changes = append(result.Changes, Change{Path: rel, Action: action})
			}
			return nil
		}

		if restoreErr := restoreEntry(path, dest, info); restoreErr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", rel, restoreErr))
			return nil
		}
		if !info.IsDir() {
			result.Changes = append(result.Changes, Change{Path: rel, Action: action})
		}
		return nil
	}); err != nil {
		return result, fmt.Errorf("walk snapshot: %w", err)
	}

	if opts.FullReplace && !opts.DryRun {
		deleted, err := deleteExtraneous(snapshotDir, targetDir, matcher)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
		result.Changes = append(result.Changes, deleted...)
	}

	logger.Info("restore complete", "changes", len(result.Changes), "errors", len(result.Errors))
	return result, nil
}

// ResolveTarget reads the SOURCE field from a snapshot's metadata
// record, used as the default restore target when the caller does not
// supply one explicitly.
func ResolveTarget(snapshotDir string) (string, error) {
	record, err := metadata.Read(snapshotDir)
	if err != nil {
		return "", errors.NewInputError("Cannot read snapshot metadata", err.Error(), "Pass an explicit target directory", err)
	}
	source, ok := record.Get("SOURCE")
	if !ok || source == "" {
		return "", errors.NewInputError("Snapshot metadata has no SOURCE field", "cannot infer a default restore target", "Pass an explicit target directory")
	}
	return source, nil
}

func restoreEntry(src, dest string, info os.FileInfo) error {
	switch {
	case info.IsDir():
		return os.MkdirAll(dest, info.Mode().Perm())
	case info.Mode()&os.ModeSymlink != 0:
		return restoreSymlink(src, dest)
	default:
		return restoreFile(src, dest, info)
	}
}

func restoreSymlink(src, dest string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}
	_ = os.Remove(dest)
	if err := os.Symlink(target, dest); err != nil {
		return err
	}
	return applyMeta(src, dest, true)
}

func restoreFile(src, dest string, info os.FileInfo) error {
	in, err := os.Open(src) //nolint:gosec // src is drawn from the engine's own snapshot walk
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Chtimes(dest, info.ModTime(), info.ModTime()); err != nil {
		return err
	}
	return applyMeta(src, dest, false)
}

func applyMeta(src, dest string, isSymlink bool) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return nil
	}
	if isSymlink {
		_ = os.Lchown(dest, int(stat.Uid), int(stat.Gid))
		return nil
	}
	_ = os.Chown(dest, int(stat.Uid), int(stat.Gid))
	return os.Chmod(dest, info.Mode().Perm())
}

// deleteExtraneous removes every entry under targetDir that has no
// counterpart under snapshotDir, honoring the same pattern
// restriction as the restore walk. Used only when FullReplace is set;
// the default merge restore never calls this.
func deleteExtraneous(snapshotDir, targetDir string, matcher func(string) bool) ([]Change, error) {
	var changes []Change
	err := filepath.Walk(targetDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if path == targetDir {
			return nil
		}
		rel, relErr := filepath.Rel(targetDir, path)
		if relErr != nil {
			return relErr
		}
		if matcher != nil && !matcher(rel) {
			return nil
		}
		if _, statErr := os.Lstat(filepath.Join(snapshotDir, rel)); os.IsNotExist(statErr) {
			if info.IsDir() {
				if rmErr := os.RemoveAll(path); rmErr == nil {
					changes = append(changes, Change{Path: rel, Action: "delete"})
				}
				return filepath.SkipDir
			}
			if rmErr := os.Remove(path); rmErr == nil {
				changes = append(changes, Change{Path: rel, Action: "delete"})
			}
		}
		return nil
	})
	return changes, err
}
