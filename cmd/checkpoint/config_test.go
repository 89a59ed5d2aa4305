// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.hardlinkEnabled() {
		t.Fatal("DefaultConfig() should enable hardlinking")
	}
	if cfg.Checksum != "sha256" {
		t.Fatalf("DefaultConfig().Checksum = %q, want sha256", cfg.Checksum)
	}
}

func TestLoadConfig_MissingFileReturnsDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(ConfigPath(dir))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if !cfg.hardlinkEnabled() {
		t.Fatal("missing config file should fall back to DefaultConfig()")
	}
}

func TestSaveThenLoadConfig_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := ConfigPath(dir)

	cfg := DefaultConfig()
	cfg.Excludes = []string{"*.tmp", "node_modules/"}
	cfg.Retention = Retention{KeepN: 5}
	disabled := false
	cfg.Hardlink = &disabled

	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	got, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if got.hardlinkEnabled() {
		t.Fatal("expected hardlinking disabled after round trip")
	}
	if got.Retention.KeepN != 5 {
		t.Fatalf("Retention.KeepN = %d, want 5", got.Retention.KeepN)
	}
	if len(got.Excludes) != 2 {
		t.Fatalf("Excludes = %v, want 2 entries", got.Excludes)
	}
}

func TestEnsureConfig_CreatesOnFirstCall(t *testing.T) {
	dir := t.TempDir()
	path := ConfigPath(dir)

	if _, err := EnsureConfig(dir); err != nil {
		t.Fatalf("EnsureConfig() error = %v", err)
	}
	if _, err := LoadConfig(path); err != nil {
		t.Fatalf("expected config file written at %s: %v", path, err)
	}
}

func TestConfigPath(t *testing.T) {
	got := ConfigPath("/backups/myproj")
	want := filepath.Join("/backups/myproj", ".checkpoint", "config.yaml")
	if got != want {
		t.Fatalf("ConfigPath() = %q, want %q", got, want)
	}
}
