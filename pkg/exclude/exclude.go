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

// Package exclude implements the rsync-style exclusion pattern set
// that the snapshot engine applies while mirroring a source tree.
package exclude

import (
	"path/filepath"
	"strings"
)

// DefaultPatterns are unconditional and always apply, ahead of any
// user-supplied patterns.
var DefaultPatterns = []string{
	".gudang/",
	"temp/",
	".temp/",
	"tmp/",
	"*~",
	"~*",
	".tmp.*",
	".checkpoint.lock",
}

// Matcher decides, for a path relative to the source root, whether it
// should be excluded from a snapshot.
type Matcher struct {
	patterns []pattern
}

type pattern struct {
	glob      string
	dirsOnly  bool
}

// New builds a Matcher from the default set, the caller's user
// patterns, and the backup root expressed relative to source (which
// always matches, preventing the engine from copying its own output
// into itself).
func New(userPatterns []string, backupRootRelToSource string) *Matcher {
	all := make([]string, 0, len(DefaultPatterns)+len(userPatterns)+1)
	all = append(all, DefaultPatterns...)
	all = append(all, userPatterns...)
	if backupRootRelToSource != "" {
		all = append(all, ensureTrailingSlash(backupRootRelToSource))
	}

	m := &Matcher{patterns: make([]pattern, 0, len(all))}
	for _, raw := range all {
		dirsOnly := strings.HasSuffix(raw, "/")
		m.patterns = append(m.patterns, pattern{
			glob:     strings.TrimSuffix(raw, "/"),
			dirsOnly: dirsOnly,
		})
	}
	return m
}

func ensureTrailingSlash(p string) string {
	if strings.HasSuffix(p, "/") {
		return p
	}
	return p + "/"
}

// Excluded reports whether relPath (slash-separated, relative to the
// source root) should be excluded. isDir indicates whether relPath
// names a directory; patterns ending in "/" only match directories.
func (m *Matcher) Excluded(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)
	base := filepath.Base(relPath)

	for _, p := range m.patterns {
		if p.dirsOnly && !isDir {
			continue
		}
		if matchSegment(p.glob, relPath, base) {
			return true
		}
	}
	return false
}

// matchSegment matches a single rsync-style glob against either the
// full relative path (for patterns containing a slash, anchored at
// the source root) or the base name (for bare patterns, which rsync
// matches at any depth).
func matchSegment(glob, relPath, base string) bool {
	if strings.Contains(glob, "/") {
		ok, _ := filepath.Match(glob, relPath)
		return ok
	}
	ok, _ := filepath.Match(glob, base)
	if ok {
		return true
	}
	// Bare patterns also match any path component, e.g. "node_modules"
	// excludes at any depth, not only as the direct base name.
	for _, segment := range strings.Split(relPath, "/") {
		if ok, _ := filepath.Match(glob, segment); ok {
			return true
		}
	}
	return false
}
