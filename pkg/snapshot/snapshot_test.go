// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Open-Technology-Foundation/checkpoint/pkg/checksum"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/metadata"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o640); err != nil {
		t.Fatal(err)
	}
}

func TestCreate_BasicSnapshot(t *testing.T) {
	source := t.TempDir()
	root := t.TempDir()
	writeFile(t, filepath.Join(source, "a.txt"), "hello")
	writeFile(t, filepath.Join(source, "nested", "b.txt"), "world")

	name, err := Create(context.Background(), source, root)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !NameRegex.MatchString(name) {
		t.Fatalf("name %q does not match NameRegex", name)
	}

	snapDir := filepath.Join(root, name)
	got, err := os.ReadFile(filepath.Join(snapDir, "a.txt"))
	if err != nil || string(got) != "hello" {
		t.Fatalf("a.txt = %q, %v; want %q", got, err, "hello")
	}
	got, err = os.ReadFile(filepath.Join(snapDir, "nested", "b.txt"))
	if err != nil || string(got) != "world" {
		t.Fatalf("nested/b.txt = %q, %v; want %q", got, err, "world")
	}

	record, err := metadata.Read(snapDir)
	if err != nil {
		t.Fatalf("metadata.Read: %v", err)
	}
	if v, ok := record.Get("VERSION"); !ok || v != checkpointVersion {
		t.Fatalf("VERSION = %q, %v", v, ok)
	}
}

func TestCreate_SuffixSanitised(t *testing.T) {
	source := t.TempDir()
	root := t.TempDir()
	writeFile(t, filepath.Join(source, "a.txt"), "x")

	name, err := Create(context.Background(), source, root, WithSuffix("nightly backup!!"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !NameRegex.MatchString(name) {
		t.Fatalf("name %q does not match NameRegex", name)
	}
	if len(name) <= len("20060102_150405") {
		t.Fatalf("suffix appears to have been dropped entirely: %q", name)
	}
}

func TestCreate_SuffixEmptyAfterSanitisationFails(t *testing.T) {
	source := t.TempDir()
	root := t.TempDir()
	writeFile(t, filepath.Join(source, "a.txt"), "x")

	_, err := Create(context.Background(), source, root, WithSuffix("!!!***"))
	if err == nil {
		t.Fatal("expected an error for an all-punctuation suffix")
	}
}

func TestCreate_HardlinkDedupAgainstPriorSnapshot(t *testing.T) {
	source := t.TempDir()
	root := t.TempDir()
	unchanged := filepath.Join(source, "unchanged.txt")
	writeFile(t, unchanged, "same content")

	first, err := Create(context.Background(), source, root, WithHardlink(true))
	if err != nil {
		t.Fatalf("first Create: %v", err)
	}
	// Ensure the second snapshot's timestamp-name differs.
	time.Sleep(1100 * time.Millisecond)

	second, err := Create(context.Background(), source, root, WithHardlink(true))
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}

	firstPath := filepath.Join(root, first, "unchanged.txt")
	secondPath := filepath.Join(root, second, "unchanged.txt")

	firstInfo, err := os.Stat(firstPath)
	if err != nil {
		t.Fatal(err)
	}
	secondInfo, err := os.Stat(secondPath)
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(firstInfo, secondInfo) {
		t.Fatal("unchanged file was not hardlinked between snapshots")
	}
}

func TestCreate_AtomicPublish_NoPartialNameVisible(t *testing.T) {
	source := t.TempDir()
	root := t.TempDir()
	writeFile(t, filepath.Join(source, "a.txt"), "x")

	name, err := Create(context.Background(), source, root)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != name {
			t.Fatalf("unexpected leftover entry in root: %q", e.Name())
		}
	}
}

func TestCreate_ExcludesBackupRootFromSelf(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "srctree")
	writeFile(t, filepath.Join(source, "a.txt"), "x")

	// Root nested under source: the engine must exclude its own output
	// directory from the tree it mirrors.
	_, err := Create(context.Background(), source, filepath.Join(source, ".checkpoints"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestCreate_ExcludesBackupRootFromSelf_WithVerify(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "srctree")
	writeFile(t, filepath.Join(source, "a.txt"), "x")
	writeFile(t, filepath.Join(source, "tmp", "scratch.txt"), "ignored")

	// The backup root lives under source and must be excluded from the
	// tree it mirrors; verify must not treat that exclusion (or the
	// default tmp/ exclusion) as drift between source and snapshot.
	backupRoot := filepath.Join(source, ".checkpoints")
	name, err := Create(context.Background(), source, backupRoot, WithVerify(true))
	if err != nil {
		t.Fatalf("Create with WithVerify(true) on a nested backup root: %v", err)
	}

	snapshotDir := filepath.Join(backupRoot, name)
	_, err = os.Stat(filepath.Join(snapshotDir, "a.txt"))
	assert.NoError(t, err, "expected a.txt in snapshot")

	_, err = os.Stat(filepath.Join(snapshotDir, ".checkpoints"))
	assert.True(t, os.IsNotExist(err), "backup root should not be nested inside its own snapshot")

	_, err = os.Stat(filepath.Join(snapshotDir, "tmp"))
	assert.True(t, os.IsNotExist(err), "default-excluded tmp/ should not appear in snapshot")
}

func TestVerify_DetectsContentDrift(t *testing.T) {
	source := t.TempDir()
	root := t.TempDir()
	target := filepath.Join(source, "a.txt")
	writeFile(t, target, "original")

	name, err := Create(context.Background(), source, root, WithVerify(true))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Mutate the source after the snapshot was taken.
	writeFile(t, target, "changed after snapshot")

	err = Verify(context.Background(), filepath.Join(root, name), source, nil, 100, checksum.SHA256)
	if err == nil {
		t.Fatal("expected Verify to detect drift between source and snapshot")
	}
}

func TestVerify_PassesOnUntouchedTree(t *testing.T) {
	source := t.TempDir()
	root := t.TempDir()
	writeFile(t, filepath.Join(source, "a.txt"), "stable")

	name, err := Create(context.Background(), source, root)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := Verify(context.Background(), filepath.Join(root, name), source, nil, 100, checksum.SHA256); err != nil {
		t.Fatalf("Verify on an untouched tree failed: %v", err)
	}
}

func TestListNames_SortedAscending(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"20260101_000000", "20250101_000000", "20260601_120000_nightly"} {
		if err := os.Mkdir(filepath.Join(root, n), 0o750); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(root, "not-a-snapshot"), 0o750); err != nil {
		t.Fatal(err)
	}

	names := ListNames(root)
	want := []string{"20250101_000000", "20260101_000000", "20260601_120000_nightly"}
	if len(names) != len(want) {
		t.Fatalf("ListNames = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("ListNames[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestSanitizeSuffix(t *testing.T) {
	cases := map[string]string{
		"nightly":       "nightly",
		"nightly-run_1": "nightly-run_1",
		"a b!@#c":       "abc",
		"":               "",
	}
	for in, want := range cases {
		if got := sanitizeSuffix(in); got != want {
			t.Errorf("sanitizeSuffix(%q) = %q, want %q", in, got, want)
		}
	}
}
