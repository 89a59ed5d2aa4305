// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package exclude

import "testing"

func TestDefaults_Apply(t *testing.T) {
	m := New(nil, "")
	cases := []struct {
		path     string
		isDir    bool
		excluded bool
	}{
		{"tmp", true, true},
		{"tmp", false, false}, // dirsOnly pattern, not a directory here
		{"notes~", false, true},
		{"~lock", false, true},
		{".checkpoint.lock", true, true},
		{"keep.txt", false, false},
	}
	for _, c := range cases {
		if got := m.Excluded(c.path, c.isDir); got != c.excluded {
			t.Errorf("Excluded(%q, dir=%v) = %v, want %v", c.path, c.isDir, got, c.excluded)
		}
	}
}

func TestUserPatterns_Apply(t *testing.T) {
	m := New([]string{"*.log", "node_modules/"}, "")
	if !m.Excluded("app.log", false) {
		t.Error("expected app.log to be excluded")
	}
	if !m.Excluded("node_modules", true) {
		t.Error("expected node_modules directory to be excluded")
	}
	if m.Excluded("node_modules", false) {
		t.Error("node_modules as a file should not match the directory-only pattern")
	}
}

func TestBackupRoot_AlwaysMatches(t *testing.T) {
	m := New(nil, "backups")
	if !m.Excluded("backups", true) {
		t.Error("expected nested backup root to always be excluded")
	}
}

func TestNestedPatternMatchesAnyDepth(t *testing.T) {
	m := New([]string{"*.log"}, "")
	if !m.Excluded("sub/dir/app.log", false) {
		t.Error("expected bare glob pattern to match at any depth")
	}
}
