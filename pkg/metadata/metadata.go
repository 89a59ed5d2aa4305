// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metadata reads and writes the per-snapshot .metadata record:
// a flat KEY=VALUE text file carrying reserved fields (DESCRIPTION,
// CREATED, HOST, SYSTEM, USER, VERSION, SOURCE) plus user tags.
package metadata

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
)

const fileName = ".metadata"

var (
	keyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

	// ReservedKeys are the fields the snapshot engine always writes.
	ReservedKeys = []string{"DESCRIPTION", "CREATED", "HOST", "SYSTEM", "USER", "VERSION", "SOURCE"}
)

// Record is an ordered set of KEY=VALUE assignments; at most one
// assignment exists per key.
type Record struct {
	order  []string
	values map[string]string
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]string)}
}

// Set assigns key=value, overwriting any prior value for key and
// preserving the key's original position in iteration order.
func (r *Record) Set(key, value string) error {
	if !keyPattern.MatchString(key) {
		return errors.NewInputError(
			"Invalid metadata key",
			fmt.Sprintf("key %q contains characters outside [A-Za-z0-9_]", key),
			"Use only letters, digits, and underscores in tag keys",
		)
	}
	if _, exists := r.values[key]; !exists {
		r.order = append(r.order, key)
	}
	r.values[key] = value
	return nil
}

// Get returns the value for key, and whether it was present.
func (r *Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns all keys in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Format renders the record as KEY=VALUE lines, one per key, in
// insertion order.
func (r *Record) Format() string {
	var sb strings.Builder
	for _, k := range r.order {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(r.values[k])
		sb.WriteByte('\n')
	}
	return sb.String()
}

func path(snapshotDir string) string {
	return filepath.Join(snapshotDir, fileName)
}

// Write creates the .metadata file inside snapshotDir atomically: the
// record is serialised to a sibling temp file, which is then renamed
// into place, so a reader never observes a half-written record.
func Write(snapshotDir string, record *Record) error {
	return atomicWrite(path(snapshotDir), record.Format())
}

func atomicWrite(target, contents string) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".metadata.tmp-*")
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(contents); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp metadata file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp metadata file: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename metadata file: %w", err)
	}
	return nil
}

// Read parses the .metadata file inside snapshotDir.
func Read(snapshotDir string) (*Record, error) {
	f, err := os.Open(path(snapshotDir)) //nolint:gosec // snapshotDir is supplied by the engine's own enumeration
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()

	record := NewRecord()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		// Bypass key validation here: a record read back from disk may
		// have been hand-edited; Show() should surface it as-is rather
		// than fail the whole read over one bad line.
		if record.values == nil {
			record.values = make(map[string]string)
		}
		if _, exists := record.values[key]; !exists {
			record.order = append(record.order, key)
		}
		record.values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan metadata: %w", err)
	}
	return record, nil
}

// Show returns the formatted record for snapshotDir.
func Show(snapshotDir string) (string, error) {
	record, err := Read(snapshotDir)
	if err != nil {
		return "", err
	}
	return record.Format(), nil
}

// Update reads the record for snapshotDir, replaces or appends the
// single key/value pair, and writes the result back atomically.
func Update(snapshotDir, key, value string) error {
	if !keyPattern.MatchString(key) {
		return errors.NewInputError(
			"Invalid metadata key",
			fmt.Sprintf("key %q contains characters outside [A-Za-z0-9_]", key),
			"Use only letters, digits, and underscores in tag keys",
		)
	}
	record, err := Read(snapshotDir)
	if err != nil {
		return err
	}
	if err := record.Set(key, value); err != nil {
		return err
	}
	return Write(snapshotDir, record)
}

// Predicate is a single KEY=VALUE equality test evaluated against a
// snapshot's metadata record.
type Predicate struct {
	Key   string
	Value string
}

// Find returns the names of snapshots directly under root whose
// metadata record satisfies predicate. Snapshots with no .metadata
// file are silently skipped.
func Find(root string, predicate Predicate) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read backup root: %w", err)
	}

	var matches []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		record, err := Read(filepath.Join(root, e.Name()))
		if err != nil {
			continue
		}
		if v, ok := record.Get(predicate.Key); ok && v == predicate.Value {
			matches = append(matches, e.Name())
		}
	}
	sort.Strings(matches)
	return matches, nil
}
