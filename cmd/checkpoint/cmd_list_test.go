// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestListDescending_NewestFirst(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"20250101_000000", "20250103_000000", "20250102_000000"} {
		if err := os.Mkdir(filepath.Join(root, name), 0o750); err != nil {
			t.Fatal(err)
		}
	}

	got := listDescending(root)
	want := []string{"20250103_000000", "20250102_000000", "20250101_000000"}
	if len(got) != len(want) {
		t.Fatalf("listDescending() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("listDescending()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestListDescending_EmptyRoot(t *testing.T) {
	root := t.TempDir()
	got := listDescending(root)
	if len(got) != 0 {
		t.Fatalf("listDescending() on empty root = %v, want empty", got)
	}
}
