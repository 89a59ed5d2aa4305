// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package metadata

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	record := NewRecord()
	_ = record.Set("SOURCE", "/tmp/src")
	_ = record.Set("CREATED", "2025-01-01T00:00:00Z")
	_ = record.Set("PROJECT", "demo")

	if err := Write(dir, record); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := Read(dir)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if v, _ := got.Get("SOURCE"); v != "/tmp/src" {
		t.Fatalf("Get(SOURCE) = %q, want %q", v, "/tmp/src")
	}
	if v, _ := got.Get("PROJECT"); v != "demo" {
		t.Fatalf("Get(PROJECT) = %q, want %q", v, "demo")
	}
}

func TestWrite_NoPartialFileVisible(t *testing.T) {
	dir := t.TempDir()
	record := NewRecord()
	_ = record.Set("SOURCE", "/tmp/src")
	if err := Write(dir, record); err != nil {
		t.Fatal(err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != fileName {
			t.Errorf("unexpected leftover file %q after Write()", e.Name())
		}
	}
}

func TestUpdate_OverwritesExistingKey(t *testing.T) {
	dir := t.TempDir()
	record := NewRecord()
	_ = record.Set("DESCRIPTION", "first")
	if err := Write(dir, record); err != nil {
		t.Fatal(err)
	}

	if err := Update(dir, "DESCRIPTION", "second"); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := got.Get("DESCRIPTION"); v != "second" {
		t.Fatalf("Get(DESCRIPTION) = %q, want %q", v, "second")
	}
}

func TestUpdate_RejectsInvalidKey(t *testing.T) {
	dir := t.TempDir()
	if err := Write(dir, NewRecord()); err != nil {
		t.Fatal(err)
	}
	if err := Update(dir, "bad-key!", "v"); err == nil {
		t.Fatalf("Update() error = nil, want InvalidMetadataKey")
	}
}

func TestFind_SkipsSnapshotsWithoutMetadata(t *testing.T) {
	root := t.TempDir()

	withMeta := filepath.Join(root, "20250101_000000")
	if err := os.Mkdir(withMeta, 0o750); err != nil {
		t.Fatal(err)
	}
	record := NewRecord()
	_ = record.Set("ENV", "prod")
	if err := Write(withMeta, record); err != nil {
		t.Fatal(err)
	}

	withoutMeta := filepath.Join(root, "20250102_000000")
	if err := os.Mkdir(withoutMeta, 0o750); err != nil {
		t.Fatal(err)
	}

	matches, err := Find(root, Predicate{Key: "ENV", Value: "prod"})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(matches) != 1 || matches[0] != "20250101_000000" {
		t.Fatalf("Find() = %v, want [20250101_000000]", matches)
	}
}
