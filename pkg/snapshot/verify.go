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
	"os"
	"path/filepath"
	"strings"

	"github.com/Open-Technology-Foundation/checkpoint/pkg/checksum"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/exclude"
)

// verifyTrees compares source against target entry-by-entry, skipping
// any relative path matcher excludes — the same exclusion set mirror
// applied while populating target, so an excluded entry present under
// source (a nested backup root, a default-excluded tmp/ dir) is never
// reported as missing from a correctly-built snapshot. Up to threshold
// entries it compares file content digests; above threshold it
// degrades to a (size, mtime) comparison, since hashing
// every file in a very large tree would make verification as
// expensive as the copy it is meant to check. Every mismatch found is
// collected; the walk does not stop at the first one, so an operator
// sees the whole picture.
func verifyTrees(ctx context.Context, source, target string, matcher *exclude.Matcher, provider *checksum.Provider, threshold int, progress ProgressFunc) error {
	entries, err := listRelative(source)
	if err != nil {
		return fmt.Errorf("list source tree: %w", err)
	}

	if matcher != nil {
		var excludedDirs []string
		filtered := make([]string, 0, len(entries))
		for _, rel := range entries {
			if underExcludedDir(rel, excludedDirs) {
				continue
			}
			info, err := os.Lstat(filepath.Join(source, rel))
			if err != nil {
				filtered = append(filtered, rel)
				continue
			}
			if matcher.Excluded(rel, info.IsDir()) {
				if info.IsDir() {
					excludedDirs = append(excludedDirs, filepath.ToSlash(rel))
				}
				continue
			}
			filtered = append(filtered, rel)
		}
		entries = filtered
	}

	useDigest := len(entries) <= threshold
	var mismatches []string
	total := int64(len(entries))

	for i, rel := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		srcPath := filepath.Join(source, rel)
		dstPath := filepath.Join(target, rel)

		srcInfo, err := os.Lstat(srcPath)
		if err != nil {
			mismatches = append(mismatches, fmt.Sprintf("%s: cannot stat source: %v", rel, err))
			continue
		}
		dstInfo, err := os.Lstat(dstPath)
		if err != nil {
			mismatches = append(mismatches, fmt.Sprintf("%s: missing from snapshot", rel))
			continue
		}

		if srcInfo.IsDir() != dstInfo.IsDir() {
			mismatches = append(mismatches, fmt.Sprintf("%s: type mismatch (dir vs file)", rel))
			continue
		}
		if srcInfo.IsDir() {
			continue // directories verified by presence alone
		}
		if srcInfo.Mode()&os.ModeSymlink != 0 {
			if mismatch := verifySymlink(srcPath, dstPath, rel); mismatch != "" {
				mismatches = append(mismatches, mismatch)
			}
			continue
		}

		if srcInfo.Size() != dstInfo.Size() {
			mismatches = append(mismatches, fmt.Sprintf("%s: size differs (source %d, snapshot %d)", rel, srcInfo.Size(), dstInfo.Size()))
			continue
		}

		if useDigest {
			same, err := provider.SameContent(srcPath, dstPath)
			if err != nil {
				mismatches = append(mismatches, fmt.Sprintf("%s: digest comparison failed: %v", rel, err))
			} else if !same {
				mismatches = append(mismatches, fmt.Sprintf("%s: content differs", rel))
			}
		} else if !srcInfo.ModTime().Equal(dstInfo.ModTime()) {
			mismatches = append(mismatches, fmt.Sprintf("%s: mtime differs (size matched)", rel))
		}

		if progress != nil {
			progress(int64(i+1), total, "verify")
		}
	}

	if len(mismatches) > 0 {
		return fmt.Errorf("%d mismatch(es):\n%s", len(mismatches), strings.Join(mismatches, "\n"))
	}
	return nil
}

func verifySymlink(srcPath, dstPath, rel string) string {
	srcTarget, err := os.Readlink(srcPath)
	if err != nil {
		return fmt.Sprintf("%s: cannot read source link: %v", rel, err)
	}
	dstTarget, err := os.Readlink(dstPath)
	if err != nil {
		return fmt.Sprintf("%s: cannot read snapshot link: %v", rel, err)
	}
	if srcTarget != dstTarget {
		return fmt.Sprintf("%s: symlink target differs (%q vs %q)", rel, srcTarget, dstTarget)
	}
	return ""
}

// listRelative returns every path under root relative to root,
// excluding root itself, in the order filepath.Walk visits them
// (directories before their children).
func listRelative(root string) ([]string, error) {
	var rels []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rels = append(rels, rel)
		return nil
	})
	return rels, err
}
