// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"os/user"
	"path/filepath"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
)

// resolveBackupRoot computes the default backup root for source, in
// priority order:
//  1. explicit, from --backup-dir
//  2. CHECKPOINT_BACKUP_DIR/<basename(source)>
//  3. /var/backups/<basename(source)>, if running as root
//  4. <home>/.checkpoint/<basename(source)>
func resolveBackupRoot(explicit, source string) (string, error) {
	if explicit != "" {
		return absPath(explicit)
	}

	base := filepath.Base(filepath.Clean(source))

	if envDir := os.Getenv("CHECKPOINT_BACKUP_DIR"); envDir != "" {
		return absPath(filepath.Join(envDir, base))
	}

	if os.Geteuid() == 0 {
		return filepath.Join("/var/backups", base), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewEnvironmentError(
			"Cannot determine home directory",
			err.Error(),
			"Set HOME, or pass --backup-dir explicitly",
			err,
		)
	}
	return filepath.Join(home, ".checkpoint", base), nil
}

func absPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// currentUsername returns the invoking user's login name, falling
// back to $USER (possibly empty) if the passwd database lookup fails
// (e.g. inside a minimal container).
func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
