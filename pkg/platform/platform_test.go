// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCanonicalise_Idempotent(t *testing.T) {
	dir := t.TempDir()
	first, err := Canonicalise(dir)
	if err != nil {
		t.Fatalf("Canonicalise() error = %v", err)
	}
	second, err := Canonicalise(first)
	if err != nil {
		t.Fatalf("Canonicalise() error = %v", err)
	}
	if first != second {
		t.Fatalf("Canonicalise() not idempotent: %q != %q", first, second)
	}
	if filepath.Base(first) == "" || first[len(first)-1] == filepath.Separator {
		t.Fatalf("Canonicalise() introduced a trailing slash: %q", first)
	}
}

func TestCanonicalise_ResolvesSymlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "real")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	resolved, err := Canonicalise(link)
	if err != nil {
		t.Fatalf("Canonicalise() error = %v", err)
	}
	wantTarget, _ := Canonicalise(target)
	if resolved != wantTarget {
		t.Fatalf("Canonicalise(link) = %q, want %q", resolved, wantTarget)
	}
}

func TestGetOwner(t *testing.T) {
	dir := t.TempDir()
	owner, err := GetOwner(dir)
	if err != nil {
		t.Fatalf("GetOwner() error = %v", err)
	}
	if owner.User == "" || owner.Group == "" {
		t.Fatalf("GetOwner() = %+v, want non-empty fields", owner)
	}
}

func TestDiskFreeKB(t *testing.T) {
	dir := t.TempDir()
	free, err := DiskFreeKB(dir)
	if err != nil {
		t.Fatalf("DiskFreeKB() error = %v", err)
	}
	if free == 0 {
		t.Fatalf("DiskFreeKB() = 0, want > 0")
	}
}

func TestIsoNow_MatchesSnapshotFormat(t *testing.T) {
	ts := IsoNow()
	if len(ts) != len("20060102_150405") {
		t.Fatalf("IsoNow() = %q, unexpected length", ts)
	}
}

func TestRelativeTo(t *testing.T) {
	base := "/home/user/src"
	target := "/home/user/src/sub/file.txt"
	if got, want := RelativeTo(base, target), "sub/file.txt"; got != want {
		t.Fatalf("RelativeTo() = %q, want %q", got, want)
	}

	// No relative form representable across volumes on some platforms;
	// filepath.Rel still succeeds for absolute POSIX paths sharing no
	// prefix, returning a "../.." form, so exercise the literal
	// fallback via a deliberately malformed base instead.
	if got := RelativeTo("rel", target); got != target {
		t.Fatalf("RelativeTo() fallback = %q, want %q", got, target)
	}
}

func TestDirSizeKB(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}
	size, err := DirSizeKB(dir)
	if err != nil {
		t.Fatalf("DirSizeKB() error = %v", err)
	}
	if size != 2 {
		t.Fatalf("DirSizeKB() = %d, want 2", size)
	}
}

func TestProcessAlive(t *testing.T) {
	if !ProcessAlive(os.Getpid()) {
		t.Fatalf("ProcessAlive(self) = false, want true")
	}
	if ProcessAlive(999999) {
		t.Fatalf("ProcessAlive(999999) = true, want false")
	}
}
