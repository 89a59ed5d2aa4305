// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package cleanup

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRun_RemovesStageAndRunsFinalizersLIFO(t *testing.T) {
	dir := t.TempDir()
	stage := filepath.Join(dir, ".tmp.abc123")
	if err := os.Mkdir(stage, 0o750); err != nil {
		t.Fatal(err)
	}

	var order []int
	c := New()
	c.RegisterStage(stage)
	c.Register(func() { order = append(order, 1) })
	c.Register(func() { order = append(order, 2) })

	c.Run()

	if _, err := os.Stat(stage); !os.IsNotExist(err) {
		t.Fatalf("stage directory still present after Run()")
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("finalizers ran in order %v, want [2 1]", order)
	}
}

func TestRun_LockReleaseRunsBeforeStageRemovalAndFinalizers(t *testing.T) {
	dir := t.TempDir()
	stage := filepath.Join(dir, ".tmp.order")
	if err := os.Mkdir(stage, 0o750); err != nil {
		t.Fatal(err)
	}

	var order []string
	c := New()
	c.RegisterLockRelease(func() { order = append(order, "lock") })
	c.RegisterStage(stage)
	c.Register(func() {
		order = append(order, "finalizer")
		if _, err := os.Stat(stage); !os.IsNotExist(err) {
			t.Fatalf("finalizer ran before stage removal")
		}
	})

	c.Run()

	if len(order) != 2 || order[0] != "lock" || order[1] != "finalizer" {
		t.Fatalf("teardown order = %v, want [lock finalizer]", order)
	}
}

func TestRun_Idempotent(t *testing.T) {
	c := New()
	calls := 0
	c.Register(func() { calls++ })

	c.Run()
	c.Run()

	if calls != 1 {
		t.Fatalf("finalizer ran %d times, want 1", calls)
	}
}

func TestForgetStage_PreventsRemoval(t *testing.T) {
	dir := t.TempDir()
	stage := filepath.Join(dir, ".tmp.keep")
	if err := os.Mkdir(stage, 0o750); err != nil {
		t.Fatal(err)
	}

	c := New()
	c.RegisterStage(stage)
	c.ForgetStage(stage)
	c.Run()

	if _, err := os.Stat(stage); err != nil {
		t.Fatalf("stage directory removed despite ForgetStage(): %v", err)
	}
}

func TestRun_TolerantOfAlreadyRemovedStage(t *testing.T) {
	c := New()
	c.RegisterStage(filepath.Join(t.TempDir(), "does-not-exist"))
	// Should not panic or error out.
	c.Run()
}
