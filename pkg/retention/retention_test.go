// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package retention

import (
	"os"
	"path/filepath"
	"testing"
)

func mkSnapshot(t *testing.T, root, name string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Join(root, name), 0o750); err != nil {
		t.Fatal(err)
	}
}

func TestPrune_KeepN(t *testing.T) {
	root := t.TempDir()
	names := []string{
		"20260101_000000",
		"20260102_000000",
		"20260103_000000",
		"20260104_000000",
		"20260105_000000",
	}
	for _, n := range names {
		mkSnapshot(t, root, n)
	}

	result, err := Prune(root, KeepN(3))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	wantKept := []string{"20260103_000000", "20260104_000000", "20260105_000000"}
	if len(result.Kept) != len(wantKept) {
		t.Fatalf("Kept = %v, want %v", result.Kept, wantKept)
	}
	for i, k := range wantKept {
		if result.Kept[i] != k {
			t.Fatalf("Kept[%d] = %q, want %q", i, result.Kept[i], k)
		}
	}
	if len(result.Removed) != 2 {
		t.Fatalf("Removed = %v, want 2 entries", result.Removed)
	}
	for _, removed := range result.Removed {
		if _, err := os.Stat(filepath.Join(root, removed)); !os.IsNotExist(err) {
			t.Fatalf("snapshot %q still exists on disk", removed)
		}
	}
}

func TestPrune_KeepNZero_RemovesEverythingIncludingNewest(t *testing.T) {
	root := t.TempDir()
	mkSnapshot(t, root, "20260101_000000")
	mkSnapshot(t, root, "20260102_000000")

	result, err := Prune(root, KeepN(0))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(result.Kept) != 0 {
		t.Fatalf("Kept = %v, want none", result.Kept)
	}
	if len(result.Removed) != 2 {
		t.Fatalf("Removed = %v, want 2", result.Removed)
	}
}

func TestPrune_KeepNGreaterThanCount_RemovesNothing(t *testing.T) {
	root := t.TempDir()
	mkSnapshot(t, root, "20260101_000000")

	result, err := Prune(root, KeepN(5))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(result.Removed) != 0 {
		t.Fatalf("Removed = %v, want none", result.Removed)
	}
	if len(result.Kept) != 1 {
		t.Fatalf("Kept = %v, want 1", result.Kept)
	}
}

func TestPlan_MaxAgeDays_NeverRemovesNewest(t *testing.T) {
	root := t.TempDir()
	// Both snapshots are far in the past; max_age_days=1 would catch
	// both by date, but the most recent must survive unconditionally.
	mkSnapshot(t, root, "20200101_000000")
	mkSnapshot(t, root, "20200102_000000")

	doomed, err := Plan(root, MaxAgeDays(1))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(doomed) != 1 || doomed[0] != "20200101_000000" {
		t.Fatalf("doomed = %v, want [20200101_000000]", doomed)
	}
}

func TestPlan_EmptyRoot(t *testing.T) {
	root := t.TempDir()
	doomed, err := Plan(root, KeepN(3))
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if doomed != nil {
		t.Fatalf("doomed = %v, want nil", doomed)
	}
}

func TestPrune_IgnoresNonSnapshotEntries(t *testing.T) {
	root := t.TempDir()
	mkSnapshot(t, root, "20260101_000000")
	mkSnapshot(t, root, "not-a-snapshot")

	result, err := Prune(root, KeepN(0))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(result.Removed) != 1 {
		t.Fatalf("Removed = %v, want 1", result.Removed)
	}
	if _, err := os.Stat(filepath.Join(root, "not-a-snapshot")); err != nil {
		t.Fatalf("non-snapshot entry was removed: %v", err)
	}
}
