// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package checksum

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProvider_SHA256(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "hi")

	p := New(SHA256)
	digest, err := p.DigestHex(path)
	if err != nil {
		t.Fatalf("DigestHex() error = %v", err)
	}
	// sha256("hi") is a well-known value.
	want := "8f434346648f6b96df89dda901c5176b10a6d83961dd3c1ac88b59b2dc327aa4"
	if digest != want {
		t.Fatalf("DigestHex() = %q, want %q", digest, want)
	}
}

func TestProvider_SizeOnly(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "hello")

	p := New(SizeOnly)
	digest, err := p.DigestHex(path)
	if err != nil {
		t.Fatalf("DigestHex() error = %v", err)
	}
	if digest != "5" {
		t.Fatalf("DigestHex() = %q, want %q", digest, "5")
	}
}

func TestSameContent(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "same")
	b := writeFile(t, dir, "b.txt", "same")
	c := writeFile(t, dir, "c.txt", "different")

	p := New(SHA256)
	same, err := p.SameContent(a, b)
	if err != nil || !same {
		t.Fatalf("SameContent(a, b) = %v, %v; want true, nil", same, err)
	}
	same, err = p.SameContent(a, c)
	if err != nil || same {
		t.Fatalf("SameContent(a, c) = %v, %v; want false, nil", same, err)
	}
}

func TestNew_DefaultsToSHA256(t *testing.T) {
	p := New()
	if p.Algorithm() != SHA256 {
		t.Fatalf("New() algorithm = %v, want %v", p.Algorithm(), SHA256)
	}
}
