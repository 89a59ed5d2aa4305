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

// Package compare implements checkpoint's diffing engine: live tree
// vs. snapshot, and snapshot vs. snapshot. Per-file errors never abort
// a scan; they are collected onto the report and surfaced as a
// partial-result condition at the call site.
package compare

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Open-Technology-Foundation/checkpoint/pkg/checksum"
)

// Status classifies one relative path's comparison outcome.
type Status string

const (
	Identical    Status = "identical"
	Differs      Status = "differs"
	OnlyInFirst  Status = "only_in_first"
	OnlyInSecond Status = "only_in_second"
	Inaccessible Status = "inaccessible"
)

// Legacy aliases for the live-vs-snapshot direction, read more
// naturally at call sites that name a live directory rather than a
// generic "first"/"second" pair.
const (
	OnlyInSnapshot = OnlyInFirst
	OnlyInLive     = OnlyInSecond
)

// Entry is one path's comparison result.
type Entry struct {
	Path   string
	Status Status
	Diff   string // unified diff body, populated only when detailed and Status == Differs
	Err    string // set when Status == Inaccessible, or on a Differs entry whose diff could not be rendered
}

// Report is the outcome of one comparison call.
type Report struct {
	Entries []Entry
	Errors  []string
}

// Partial reports whether any entry could not be compared, the
// condition that promotes a caller's result to PartialComparison.
func (r *Report) Partial() bool { return len(r.Errors) > 0 }

// Counts tallies entries by status, for summary rendering.
func (r *Report) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, e := range r.Entries {
		counts[e.Status]++
	}
	return counts
}

// Options configures a comparison call.
type Options struct {
	Patterns  []string // if non-empty, restrict traversal to matching relative paths
	Detailed  bool     // include unified-diff bodies for Differs entries
	Provider  *checksum.Provider
	DiffTool  *DiffTool // optional; nil falls back to the built-in line differ
}

func (o Options) provider() *checksum.Provider {
	if o.Provider != nil {
		return o.Provider
	}
	return checksum.New(checksum.SHA256)
}

// Live compares a published snapshot against a live directory.
// Entries present only under snapshotDir are OnlyInSnapshot; entries
// present only under liveDir are OnlyInLive.
func Live(snapshotDir, liveDir string, opts Options) (*Report, error) {
	return compareTrees(snapshotDir, liveDir, opts)
}

// Snapshots compares two published snapshots directly.
// Entries present only under first are OnlyInFirst; present only
// under second are OnlyInSecond.
func Snapshots(first, second string, opts Options) (*Report, error) {
	return compareTrees(first, second, opts)
}

func compareTrees(first, second string, opts Options) (*Report, error) {
	provider := opts.provider()
	matcher := patternMatcher(opts.Patterns)

	union, err := unionRelativePaths(first, second, matcher)
	if err != nil {
		return nil, fmt.Errorf("enumerate trees: %w", err)
	}

	report := &Report{}
	for _, rel := range union {
		entry := compareOne(first, second, rel, provider, opts.Detailed, opts.DiffTool)
		report.Entries = append(report.Entries, entry)
		if entry.Status == Inaccessible {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", entry.Path, entry.Err))
		}
	}
	return report, nil
}

func compareOne(first, second, rel string, provider *checksum.Provider, detailed bool, tool *DiffTool) Entry {
	aPath := filepath.Join(first, rel)
	bPath := filepath.Join(second, rel)

	aInfo, aErr := os.Lstat(aPath)
	bInfo, bErr := os.Lstat(bPath)

	switch {
	case os.IsNotExist(aErr) && bErr == nil:
		return Entry{Path: rel, Status: OnlyInSecond}
	case os.IsNotExist(bErr) && aErr == nil:
		return Entry{Path: rel, Status: OnlyInFirst}
	case aErr != nil:
		return Entry{Path: rel, Status: Inaccessible, Err: aErr.Error()}
	case bErr != nil:
		return Entry{Path: rel, Status: Inaccessible, Err: bErr.Error()}
	}

	if aInfo.IsDir() || bInfo.IsDir() {
		if aInfo.IsDir() != bInfo.IsDir() {
			return Entry{Path: rel, Status: Differs}
		}
		return Entry{Path: rel, Status: Identical}
	}

	if aInfo.Mode()&os.ModeSymlink != 0 || bInfo.Mode()&os.ModeSymlink != 0 {
		return compareSymlinks(rel, aPath, bPath)
	}

	if aInfo.Size() != bInfo.Size() {
		return differsEntry(rel, aPath, bPath, detailed, tool)
	}

	same, err := provider.SameContent(aPath, bPath)
	if err != nil {
		return Entry{Path: rel, Status: Inaccessible, Err: err.Error()}
	}
	if same {
		return Entry{Path: rel, Status: Identical}
	}
	return differsEntry(rel, aPath, bPath, detailed, tool)
}

func compareSymlinks(rel, aPath, bPath string) Entry {
	aTarget, aErr := os.Readlink(aPath)
	bTarget, bErr := os.Readlink(bPath)
	if aErr != nil {
		return Entry{Path: rel, Status: Inaccessible, Err: aErr.Error()}
	}
	if bErr != nil {
		return Entry{Path: rel, Status: Inaccessible, Err: bErr.Error()}
	}
	if aTarget == bTarget {
		return Entry{Path: rel, Status: Identical}
	}
	return Entry{Path: rel, Status: Differs}
}

func differsEntry(rel, aPath, bPath string, detailed bool, tool *DiffTool) Entry {
	entry := Entry{Path: rel, Status: Differs}
	if !detailed {
		return entry
	}
	if isBinary(aPath) || isBinary(bPath) {
		return entry // binary files report Differs without a diff body
	}
	diff, err := renderDiff(aPath, bPath, tool)
	if err != nil {
		entry.Err = err.Error()
		return entry
	}
	entry.Diff = diff
	return entry
}

// isBinary applies the conventional heuristic: a NUL byte anywhere in
// the first 8000 bytes marks a file as binary.
func isBinary(path string) bool {
	f, err := os.Open(path) //nolint:gosec // path is produced by the engine's own tree walk
	if err != nil {
		return false
	}
	defer f.Close()

	buf := make([]byte, 8000)
	n, _ := f.Read(buf)
	for _, b := range buf[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}

func unionRelativePaths(first, second string, matcher func(string) bool) ([]string, error) {
	set := make(map[string]struct{})
	for _, root := range []string{first, second} {
		if err := walkInto(root, set, matcher); err != nil {
			return nil, err
		}
	}
	out := make([]string, 0, len(set))
	for rel := range set {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, nil
}

func walkInto(root string, set map[string]struct{}, matcher func(string) bool) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
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
		if matcher != nil && !matcher(rel) {
			if info.IsDir() {
				return nil
			}
			return nil
		}
		set[rel] = struct{}{}
		return nil
	})
}

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
