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

// Package lock implements the crash-safe, PID-verified directory lock
// that serialises mutating verbs on a backup root. The mutual
// exclusion primitive is an atomic directory creation (mkdir), not a
// separate file lock, so acquisition is race-free without relying on
// flock semantics that can vary across filesystems (notably over
// NFS).
package lock

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/platform"
)

const (
	// DirName is the lock directory's name inside a backup root.
	DirName = ".checkpoint.lock"

	pidFile       = "pid"
	timestampFile = "timestamp"

	pollInterval = time.Second
)

// Handle is the token returned by Acquire. It binds a held lock to
// the process that acquired it, so Release can refuse to remove a
// lock it no longer owns.
type Handle struct {
	root string
	pid  int
}

// Root returns the backup root this handle's lock belongs to.
func (h *Handle) Root() string { return h.root }

func lockDir(root string) string { return filepath.Join(root, DirName) }

// Acquire attempts to take the lock on root, retrying once per second
// against a live holder until timeoutSeconds elapses. A stale lock
// (pid file missing, malformed, or naming a dead process) is reclaimed
// immediately. force, if true, removes any existing lock
// unconditionally before the first attempt.
func Acquire(root string, timeoutSeconds int, force bool) (*Handle, error) {
	dir := lockDir(root)
	logger := slog.Default().With("op", "lock.acquire", "root", root)

	if force {
		if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
			return nil, errors.NewLockError(
				"Cannot force-remove existing lock",
				err.Error(),
				"Check permissions on the backup root",
				err,
			)
		}
	}

	remaining := timeoutSeconds
	for {
		if err := os.Mkdir(dir, 0o750); err == nil {
			pid := os.Getpid()
			if err := writeLockFiles(dir, pid); err != nil {
				_ = os.RemoveAll(dir)
				return nil, errors.NewLockError(
					"Cannot write lock metadata",
					err.Error(),
					"Check permissions on the backup root",
					err,
				)
			}
			logger.Info("lock acquired", "pid", pid)
			return &Handle{root: root, pid: pid}, nil
		} else if !os.IsExist(err) {
			return nil, errors.NewLockError(
				"Cannot create lock directory",
				err.Error(),
				"Check permissions on the backup root",
				err,
			)
		}

		holderPID, err := readPID(dir)
		if err != nil || !platform.ProcessAlive(holderPID) {
			logger.Warn("reclaiming stale lock", "stale_pid", holderPID)
			if rmErr := os.RemoveAll(dir); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, errors.NewLockError(
					"Cannot remove stale lock",
					rmErr.Error(),
					"Check permissions on the backup root",
					rmErr,
				)
			}
			continue
		}

		if remaining <= 0 {
			return nil, errors.NewLockError(
				"Failed to acquire lock",
				fmt.Sprintf("backup root %q is held by process %d", root, holderPID),
				"Wait for the other operation to finish, or use --force-unlock if it is stuck",
			)
		}
		time.Sleep(pollInterval)
		remaining--
	}
}

// Release removes the lock directory, refusing if the on-disk pid no
// longer matches the handle's holder (the lock was stolen out from
// under this process, e.g. by a force-unlock). Release is idempotent:
// calling it twice, or on an already-removed lock, is not an error.
func Release(h *Handle) error {
	dir := lockDir(h.root)

	currentPID, err := readPID(dir)
	if err != nil {
		// Lock already gone or unreadable: nothing to release.
		return nil
	}
	if currentPID != h.pid {
		return errors.NewLockError(
			"Lock was stolen",
			fmt.Sprintf("lock at %q is now held by process %d, not %d", dir, currentPID, h.pid),
			"Another process force-unlocked this backup root while this operation was running",
		)
	}
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// ForceRelease deletes root's lock directory unconditionally,
// regardless of which process (if any) holds it.
func ForceRelease(root string) error {
	dir := lockDir(root)
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("force-release lock: %w", err)
	}
	return nil
}

func writeLockFiles(dir string, pid int) error {
	if err := os.WriteFile(filepath.Join(dir, pidFile), []byte(strconv.Itoa(pid)), 0o640); err != nil {
		return err
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return os.WriteFile(filepath.Join(dir, timestampFile), []byte(ts), 0o640)
}

func readPID(dir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed pid file: %w", err)
	}
	return pid, nil
}
