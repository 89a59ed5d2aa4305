// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package restore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func write(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o640); err != nil {
		t.Fatal(err)
	}
}

func TestRestore_FullCopyToEmptyTarget(t *testing.T) {
	snap := t.TempDir()
	target := t.TempDir()
	write(t, filepath.Join(snap, "a.txt"), "hello")
	write(t, filepath.Join(snap, "sub", "b.txt"), "world")
	write(t, filepath.Join(snap, ".metadata"), "SOURCE=/tmp/x\n")

	result, err := Restore(context.Background(), snap, target, Options{})
	assert.NoError(t, err)
	assert.False(t, result.Partial(), "unexpected errors: %v", result.Errors)

	got, err := os.ReadFile(filepath.Join(target, "a.txt"))
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	_, err = os.Stat(filepath.Join(target, ".metadata"))
	assert.True(t, os.IsNotExist(err), ".metadata should not be restored into the target")
}

func TestRestore_SelectivePattern(t *testing.T) {
	snap := t.TempDir()
	target := t.TempDir()
	write(t, filepath.Join(snap, "a.txt"), "1")
	write(t, filepath.Join(snap, "app.log"), "2")
	write(t, filepath.Join(snap, "config.ini"), "3")

	_, err := Restore(context.Background(), snap, target, Options{Patterns: []string{"*.txt"}})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "a.txt")); err != nil {
		t.Fatalf("a.txt missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "app.log")); !os.IsNotExist(err) {
		t.Fatalf("app.log should not have been restored")
	}
	if _, err := os.Stat(filepath.Join(target, "config.ini")); !os.IsNotExist(err) {
		t.Fatalf("config.ini should not have been restored")
	}
}

func TestRestore_DryRunTouchesNothing(t *testing.T) {
	snap := t.TempDir()
	target := t.TempDir()
	write(t, filepath.Join(snap, "a.txt"), "1")

	result, err := Restore(context.Background(), snap, target, Options{DryRun: true})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !result.DryRun {
		t.Fatal("result.DryRun = false, want true")
	}
	if len(result.Changes) != 1 || result.Changes[0].Path != "a.txt" {
		t.Fatalf("Changes = %v, want one entry for a.txt", result.Changes)
	}
	if _, err := os.Stat(filepath.Join(target, "a.txt")); !os.IsNotExist(err) {
		t.Fatalf("dry run must not create a.txt on disk")
	}
}

func TestRestore_MergeDoesNotDeleteUnrelatedTargetEntries(t *testing.T) {
	snap := t.TempDir()
	target := t.TempDir()
	write(t, filepath.Join(snap, "a.txt"), "from-snapshot")
	write(t, filepath.Join(target, "preexisting.txt"), "keep-me")

	_, err := Restore(context.Background(), snap, target, Options{})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "preexisting.txt")); err != nil {
		t.Fatalf("merge restore deleted a file it should have left alone: %v", err)
	}
}

func TestRestore_FullReplaceDeletesExtraneous(t *testing.T) {
	snap := t.TempDir()
	target := t.TempDir()
	write(t, filepath.Join(snap, "a.txt"), "from-snapshot")
	write(t, filepath.Join(target, "extraneous.txt"), "should-go")

	_, err := Restore(context.Background(), snap, target, Options{FullReplace: true})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "extraneous.txt")); !os.IsNotExist(err) {
		t.Fatalf("full-replace restore should have deleted extraneous.txt")
	}
	if _, err := os.Stat(filepath.Join(target, "a.txt")); err != nil {
		t.Fatalf("a.txt missing after full-replace restore: %v", err)
	}
}

func TestRestore_OverwritesExistingFile(t *testing.T) {
	snap := t.TempDir()
	target := t.TempDir()
	write(t, filepath.Join(snap, "a.txt"), "new content")
	write(t, filepath.Join(target, "a.txt"), "old content")

	result, err := Restore(context.Background(), snap, target, Options{})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(target, "a.txt"))
	if err != nil || string(got) != "new content" {
		t.Fatalf("a.txt = %q, %v, want %q", got, err, "new content")
	}
	if len(result.Changes) != 1 || result.Changes[0].Action != "overwrite" {
		t.Fatalf("Changes = %v, want one overwrite", result.Changes)
	}
}

func TestResolveTarget_ReadsSourceFromMetadata(t *testing.T) {
	snap := t.TempDir()
	write(t, filepath.Join(snap, ".metadata"), "SOURCE=/tmp/original\nDESCRIPTION=x\n")

	got, err := ResolveTarget(snap)
	if err != nil {
		t.Fatalf("ResolveTarget: %v", err)
	}
	if got != "/tmp/original" {
		t.Fatalf("ResolveTarget = %q, want /tmp/original", got)
	}
}

func TestResolveTarget_MissingSourceFails(t *testing.T) {
	snap := t.TempDir()
	write(t, filepath.Join(snap, ".metadata"), "DESCRIPTION=x\n")

	if _, err := ResolveTarget(snap); err == nil {
		t.Fatal("expected an error when SOURCE is absent from metadata")
	}
}
