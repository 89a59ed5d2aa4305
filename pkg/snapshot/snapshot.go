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

// Package snapshot implements the core of checkpoint: atomic,
// hardlink-deduplicated, optionally-verified point-in-time copies of
// a source directory tree.
//
// A single Create call moves through the states INIT -> LOCKED ->
// STAGING -> STAGED -> VERIFYING -> PUBLISHED -> DONE. Every error
// path unwinds through the cleanup coordinator to DONE: the lock is
// released and any stage directory this process authored is removed.
// The only externally observable commit point is the rename in
// publish(); no partial snapshot is ever visible under its final
// name.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/checksum"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/cleanup"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/exclude"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/lock"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/metadata"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/platform"
)

// NameRegex matches a valid snapshot directory name.
var NameRegex = regexp.MustCompile(`^20\d{2}[01]\d[0-3]\d_[0-2]\d[0-5]\d[0-5]\d(_[A-Za-z0-9._-]+)?$`)

var sanitizePattern = regexp.MustCompile(`[^A-Za-z0-9._-]`)

const (
	lockDirName  = ".checkpoint.lock" // mirrors pkg/lock.DirName
	stagePrefix  = ".tmp."
	spaceFactor  = 1.1 // required free space is source size times this factor
	checkpointVersion = "1"
)

// sanitizeSuffix strips every character outside [A-Za-z0-9._-].
func sanitizeSuffix(suffix string) string {
	return sanitizePattern.ReplaceAllString(suffix, "")
}

// Create produces one snapshot of source under root and returns its
// name. See the package doc for the state machine this method moves
// through.
func Create(ctx context.Context, source, root string, opts ...Option) (string, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	logger := slog.Default().With("op", "snapshot.create")

	// --- Prepare ---
	source, err := platform.Canonicalise(source)
	if err != nil {
		return "", errors.NewEnvironmentError("Cannot resolve source path", err.Error(), "Check that the source directory exists", err)
	}
	info, err := os.Stat(source)
	if err != nil || !info.IsDir() {
		return "", errors.NewEnvironmentError(
			"Source is not a directory",
			fmt.Sprintf("%q does not exist or is not a directory", source),
			"Pass a valid source directory",
		)
	}
	root, err = platform.Canonicalise(ensureExists(root))
	if err != nil {
		return "", errors.NewEnvironmentError("Cannot resolve backup root", err.Error(), "Check permissions on the backup root's parent directory", err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return "", errors.NewEnvironmentError("Cannot create backup root", err.Error(), "Check permissions on the backup root's parent directory", err)
	}

	// --- Guard ---
	coord := cleanup.New()
	handle, err := lock.Acquire(root, o.lockTimeoutSec, o.force)
	if err != nil {
		return "", err
	}
	coord.RegisterLockRelease(func() {
		if relErr := lock.Release(handle); relErr != nil {
			logger.Warn("lock release failed", "err", relErr)
		}
	})
	defer coord.Run()

	// --- Capacity ---
	sizeKB, err := platform.DirSizeKB(source)
	if err != nil {
		return "", errors.NewEnvironmentError("Cannot measure source size", err.Error(), "Check read permissions on the source tree", err)
	}
	freeKB, err := platform.DiskFreeKB(root)
	if err != nil {
		return "", errors.NewEnvironmentError("Cannot measure free space", err.Error(), "Check the backup root's filesystem", err)
	}
	if float64(freeKB) < float64(sizeKB)*spaceFactor {
		return "", errors.NewEnvironmentError(
			"Insufficient space",
			fmt.Sprintf("need ~%d KB (source %d KB x %.1f), have %d KB free", uint64(float64(sizeKB)*spaceFactor), sizeKB, spaceFactor, freeKB),
			"Free disk space or prune old snapshots",
		)
	}

	// --- Name ---
	name, err := buildName(o.suffix)
	if err != nil {
		return "", err
	}

	// --- Select base for hardlink ---
	var base string
	if o.hardlink {
		if prior, ok := mostRecentSnapshot(root); ok {
			base = filepath.Join(root, prior)
		}
	}

	// --- Stage ---
	stageDir, err := os.MkdirTemp(root, stagePrefix+"*")
	if err != nil {
		return "", errors.NewEnvironmentError("Cannot create stage directory", err.Error(), "Check permissions on the backup root", err)
	}
	coord.RegisterStage(stageDir)

	// --- Populate ---
	matcher := exclude.New(append([]string{}, o.excludes...), platform.RelativeTo(source, root))
	provider := checksum.New(o.checksumPrefer...)
	mirror := &mirrorer{
		source:   source,
		stage:    stageDir,
		base:     base,
		matcher:  matcher,
		provider: provider,
		progress: o.progress,
	}
	if err := mirror.run(ctx); err != nil {
		return "", errors.NewInternalError("Failed to populate snapshot", err.Error(), "Check filesystem errors above", err)
	}

	// --- Metadata ---
	record := buildMetadataRecord(source, o)
	if err := metadata.Write(stageDir, record); err != nil {
		return "", errors.NewInternalError("Failed to write snapshot metadata", err.Error(), "", err)
	}

	// --- Verify ---
	if o.verify {
		if err := verifyTrees(ctx, source, stageDir, matcher, provider, o.verifyThresh, o.progress); err != nil {
			return "", errors.NewIntegrityError(
				"Verification failed",
				err.Error(),
				"The staged snapshot was removed; re-run create",
				err,
			)
		}
	}

	// --- Publish ---
	target := filepath.Join(root, name)
	if err := os.Rename(stageDir, target); err != nil {
		return "", errors.NewPublishError("Failed to publish snapshot", err.Error(), "Check that no file named the same already exists", err)
	}
	coord.ForgetStage(stageDir)

	logger.Info("snapshot created", "name", name, "root", root, "hardlink_base", base)
	return name, nil
}

// Verify re-checks a published snapshot's integrity against its
// original source, applying the same exclusion set a Create call with
// these excludes would have used — without it, any entry excluded
// from the snapshot (the backup root nested under source, a
// default-excluded tmp/ dir) would be misreported as missing.
func Verify(ctx context.Context, snapshotDir, source string, excludes []string, verifyThresh int, preferred ...checksum.Algorithm) error {
	provider := checksum.New(preferred...)
	root := filepath.Dir(snapshotDir)
	matcher := exclude.New(append([]string{}, excludes...), platform.RelativeTo(source, root))
	if err := verifyTrees(ctx, source, snapshotDir, matcher, provider, verifyThresh, nil); err != nil {
		return errors.NewIntegrityError("Verification failed", err.Error(), "", err)
	}
	return nil
}

func ensureExists(root string) string {
	// filepath.Abs/EvalSymlinks requires the path or its parent to
	// exist; create it ahead of canonicalisation if entirely absent.
	if _, err := os.Stat(root); os.IsNotExist(err) {
		_ = os.MkdirAll(root, 0o750)
	}
	return root
}

// BuildName computes the snapshot directory name Create would use for
// the given suffix, without creating anything. Exposed for callers
// that need a name up front, such as the remote dispatcher's
// stage-then-rename publish.
func BuildName(suffix string) (string, error) {
	return buildName(suffix)
}

func buildName(suffix string) (string, error) {
	ts := platform.IsoNow()
	if suffix == "" {
		return ts, nil
	}
	clean := sanitizeSuffix(suffix)
	if clean == "" {
		return "", errors.NewInputError(
			"Invalid suffix",
			fmt.Sprintf("suffix %q has no characters remaining after sanitisation", suffix),
			"Use letters, digits, '.', '_' or '-' in the suffix",
		)
	}
	return ts + "_" + clean, nil
}

// mostRecentSnapshot returns the name of the most recent (by
// name-sorted descending) existing snapshot under root, if any.
func mostRecentSnapshot(root string) (string, bool) {
	names := ListNames(root)
	if len(names) == 0 {
		return "", false
	}
	return names[len(names)-1], true
}

// ListNames returns all valid snapshot names directly under root,
// sorted ascending (oldest first) — names are timestamp-prefixed, so
// lexicographic order is chronological order.
func ListNames(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && NameRegex.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func buildMetadataRecord(source string, o *createOptions) *metadata.Record {
	record := metadata.NewRecord()
	_ = record.Set("DESCRIPTION", o.description)
	_ = record.Set("CREATED", time.Now().UTC().Format(time.RFC3339))
	_ = record.Set("HOST", hostname())
	_ = record.Set("SYSTEM", runtime.GOOS+"/"+runtime.GOARCH)
	_ = record.Set("USER", currentUser())
	_ = record.Set("VERSION", checkpointVersion)
	_ = record.Set("SOURCE", source)
	for k, v := range o.tags {
		_ = record.Set(strings.ToUpper(k), v)
	}
	return record
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

// randomToken returns a 12-character lowercase alphanumeric string.
// Nothing in the package calls it: Create names its stage through
// MkdirTemp, and the remote dispatcher stages under ".tmp.<name>".
func randomToken() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 12)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))] //nolint:gosec // uniqueness, not security
	}
	return string(b)
}
