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

package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/Open-Technology-Foundation/checkpoint/pkg/checksum"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/exclude"
)

// mirrorer copies source into stage, applying exclusions and
// hardlink-deduplicating against base where possible.
type mirrorer struct {
	source, stage, base string
	matcher             *exclude.Matcher
	provider            *checksum.Provider
	progress            ProgressFunc
}

func (m *mirrorer) run(ctx context.Context) error {
	var entries []string
	if err := filepath.Walk(m.source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == m.source {
			return nil
		}
		entries = append(entries, path)
		return nil
	}); err != nil {
		return fmt.Errorf("walk source: %w", err)
	}

	total := int64(len(entries))
	var excludedDirs []string
	var mirroredDirs []string // dest paths, in walk order (parents before children)
	for i, path := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(m.source, path)
		if err != nil {
			return err
		}
		if underExcludedDir(rel, excludedDirs) {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil {
			return fmt.Errorf("lstat %q: %w", path, err)
		}
		if m.matcher.Excluded(rel, info.IsDir()) {
			if info.IsDir() {
				excludedDirs = append(excludedDirs, rel)
			}
			continue
		}

		dest := filepath.Join(m.stage, rel)
		if err := m.copyEntry(path, dest, rel, info); err != nil {
			return fmt.Errorf("mirror %q: %w", rel, err)
		}
		if info.IsDir() {
			mirroredDirs = append(mirroredDirs, dest)
		}

		if m.progress != nil {
			m.progress(int64(i+1), total, "populate")
		}
	}

	// Directory mtimes get bumped by every child created inside them,
	// so they are only stamped with the source's mtime once every
	// child is in place: walk mirroredDirs deepest-first (the reverse
	// of the parents-before-children order they were collected in).
	for i := len(mirroredDirs) - 1; i >= 0; i-- {
		dest := mirroredDirs[i]
		src := filepath.Join(m.source, mustRel(m.stage, dest))
		info, err := os.Lstat(src)
		if err != nil {
			continue
		}
		_ = os.Chtimes(dest, info.ModTime(), info.ModTime())
	}
	return nil
}

func mustRel(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return ""
	}
	return rel
}

// underExcludedDir reports whether rel names an entry inside one of
// the already-excluded directories in dirs: the exclusion matcher
// only tests an entry's own name/type, so a file directly under an
// excluded directory (as opposed to the directory itself) would not
// otherwise match a directory-only pattern.
func underExcludedDir(rel string, dirs []string) bool {
	rel = filepath.ToSlash(rel)
	for _, d := range dirs {
		if rel == d || strings.HasPrefix(rel, d+"/") {
			return true
		}
	}
	return false
}

func (m *mirrorer) copyEntry(src, dest, rel string, info os.FileInfo) error {
	switch {
	case info.IsDir():
		if err := os.MkdirAll(dest, info.Mode().Perm()); err != nil {
			return err
		}
		return applyOwnership(src, dest, false)
	case info.Mode()&os.ModeSymlink != 0:
		return m.copySymlink(src, dest)
	default:
		return m.copyFile(src, dest, rel, info)
	}
}

func (m *mirrorer) copySymlink(src, dest string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}
	if err := os.Symlink(target, dest); err != nil {
		return err
	}
	return applyOwnership(src, dest, true)
}

// copyFile mirrors one regular file, reusing a hardlink to the prior
// snapshot's copy when it is byte-identical (same size and mtime
// checked first, content compared last as the expensive step).
func (m *mirrorer) copyFile(src, dest, rel string, info os.FileInfo) error {
	if m.base != "" {
		baseFile := filepath.Join(m.base, rel)
		if identical, err := m.identicalToBase(src, baseFile, info); err == nil && identical {
			if err := os.Link(baseFile, dest); err == nil {
				return nil
			}
			// Fall through to a full copy if the hardlink attempt failed
			// (e.g. cross-device base, which the spec permits degrading
			// from since a hardlink base is a best-effort optimisation).
		}
	}
	return copyFileContents(src, dest, info)
}

func (m *mirrorer) identicalToBase(src, baseFile string, srcInfo os.FileInfo) (bool, error) {
	baseInfo, err := os.Stat(baseFile)
	if err != nil {
		return false, err // not present in base: not a dedup candidate
	}
	if baseInfo.Size() != srcInfo.Size() {
		return false, nil
	}
	if !baseInfo.ModTime().Equal(srcInfo.ModTime()) {
		return false, nil
	}
	return m.provider.SameContent(src, baseFile)
}

func copyFileContents(src, dest string, info os.FileInfo) error {
	in, err := os.Open(src) //nolint:gosec // src comes from the engine's own tree walk
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
	return applyOwnership(src, dest, false)
}

// applyOwnership mirrors uid/gid/mode from src onto dest. Chown
// failures are tolerated (non-root callers generally can't change
// ownership) since archive-style fidelity is best-effort, not a hard
// requirement of any invariant in this spec.
func applyOwnership(src, dest string, isSymlink bool) error {
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
