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

// Package platform isolates the filesystem and OS introspection the
// rest of checkpoint depends on: path canonicalisation, ownership
// lookup, free-space probing, and timestamp formatting. No other
// package imports golang.org/x/sys; pkg/snapshot and pkg/restore use
// syscall.Stat_t directly to read ownership when copying entries.
package platform

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// SnapshotTimeFormat is the layout used to name snapshots: YYYYMMDD_HHMMSS.
const SnapshotTimeFormat = "20060102_150405"

// Canonicalise resolves path to an absolute, symlink-free form. It is
// idempotent and never introduces a trailing slash.
func Canonicalise(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("canonicalise %q: %w", path, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			// Path doesn't exist yet (e.g. about to be created): fall
			// back to the cleaned absolute form.
			return filepath.Clean(abs), nil
		}
		return "", fmt.Errorf("canonicalise %q: %w", path, err)
	}
	return filepath.Clean(resolved), nil
}

// Owner is the (user, group) pair returned by GetOwner.
type Owner struct {
	User  string
	Group string
}

// GetOwner returns the owning user and group of path, by uid/gid
// falling back to the numeric id as a string when no name is
// registered (e.g. inside a minimal container).
func GetOwner(path string) (Owner, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Owner{}, fmt.Errorf("stat %q: %w", path, err)
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return Owner{}, fmt.Errorf("owner introspection unsupported on this platform")
	}
	return Owner{
		User:  lookupUser(stat.Uid),
		Group: lookupGroup(stat.Gid),
	}, nil
}

// lookupUser resolves uid to a username, falling back to its numeric
// string form when no passwd entry exists (e.g. a uid orphaned by a
// deleted account).
func lookupUser(uid uint32) string {
	idStr := strconv.FormatUint(uint64(uid), 10)
	u, err := user.LookupId(idStr)
	if err != nil {
		return idStr
	}
	return u.Username
}

// lookupGroup resolves gid to a group name, with the same numeric
// fallback as lookupUser.
func lookupGroup(gid uint32) string {
	idStr := strconv.FormatUint(uint64(gid), 10)
	g, err := user.LookupGroupId(idStr)
	if err != nil {
		return idStr
	}
	return g.Name
}

// DiskFreeKB returns the free space available at path, in kilobytes.
func DiskFreeKB(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, fmt.Errorf("statfs %q: %w", path, err)
	}
	freeBytes := stat.Bavail * uint64(stat.Bsize) //nolint:gosec // st_bsize is always positive
	return freeBytes / 1024, nil
}

// IsoNow returns the current local time formatted as YYYYMMDD_HHMMSS,
// the snapshot-name timestamp component.
func IsoNow() string {
	return time.Now().Format(SnapshotTimeFormat)
}

// RelativeTo expresses target relative to base, or returns target
// unchanged (absolute) if no relative form is representable.
func RelativeTo(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return target
	}
	return rel
}

// DirSizeKB walks root and sums the apparent size of all regular
// files, in kilobytes, used by the snapshot engine's capacity check.
func DirSizeKB(root string) (uint64, error) {
	var totalBytes uint64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			totalBytes += uint64(info.Size())
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("measure size of %q: %w", root, err)
	}
	return totalBytes / 1024, nil
}

// ProcessAlive reports whether a process with the given pid currently
// exists, used by the lock manager's stale-lock detection.
func ProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On POSIX, FindProcess always succeeds; signal 0 is the portable
	// liveness probe (no signal delivered, just existence/permission
	// checked).
	err = proc.Signal(syscall.Signal(0))
	return err == nil
}
