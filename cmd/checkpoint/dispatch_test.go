// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"testing"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
)

func TestParseKeyValue(t *testing.T) {
	key, value, err := parseKeyValue("owner=alice")
	if err != nil {
		t.Fatalf("parseKeyValue() error = %v", err)
	}
	if key != "owner" || value != "alice" {
		t.Fatalf("parseKeyValue() = (%q, %q), want (owner, alice)", key, value)
	}
}

func TestParseKeyValue_ValueContainsEquals(t *testing.T) {
	_, value, err := parseKeyValue("url=https://example.com/a=b")
	if err != nil {
		t.Fatalf("parseKeyValue() error = %v", err)
	}
	if value != "https://example.com/a=b" {
		t.Fatalf("parseKeyValue() value = %q, want to preserve embedded '='", value)
	}
}

func TestParseKeyValue_RejectsMissingEquals(t *testing.T) {
	if _, _, err := parseKeyValue("no-equals-here"); err == nil {
		t.Fatal("expected an error for a pair with no '='")
	}
}

func TestParseKeyValue_RejectsEmptyKey(t *testing.T) {
	if _, _, err := parseKeyValue("=value"); err == nil {
		t.Fatal("expected an error for an empty key")
	}
}

func TestRequireArgs_ErrorsWhenTooFew(t *testing.T) {
	o := verbOptions{args: []string{"only-one"}}
	_, err := requireArgs(o, 2, "checkpoint --compare-with <second> <first>")
	if err == nil {
		t.Fatal("expected an error when fewer args than required are present")
	}
	ce, ok := errors.AsCheckpointError(err)
	if !ok || ce.ExitCode() != 2 {
		t.Fatalf("requireArgs() error exit code = %v, want 2 (AsCheckpointError ok=%v)", ce, ok)
	}
}

func TestRequireArgs_PassesThroughWhenEnough(t *testing.T) {
	o := verbOptions{args: []string{"a", "b"}}
	got, err := requireArgs(o, 2, "")
	if err != nil {
		t.Fatalf("requireArgs() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("requireArgs() = %v, want 2 elements", got)
	}
}
