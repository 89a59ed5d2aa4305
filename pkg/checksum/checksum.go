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

// Package checksum provides the pluggable digest strategy the
// verification and hardlink-dedup paths use to decide whether two
// files are identical: SHA-256, MD5, or a size-only fallback.
package checksum

import (
	"crypto/md5"  //nolint:gosec // used only as a lighter-weight fallback digest, not for security
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Algorithm identifies which digest a Provider computes.
type Algorithm string

const (
	SHA256   Algorithm = "sha256"
	MD5      Algorithm = "md5"
	SizeOnly Algorithm = "size"
)

// Provider computes a digest for a file. Construction selects the
// first available algorithm from a preference list; SizeOnly is
// always available, so construction never fails.
type Provider struct {
	algorithm Algorithm
}

// New selects the first recognised algorithm from preferred, in order,
// falling back to SHA256 if none is recognised or preferred is empty
// (SHA-256 and MD5 are always usable in a pure-Go build, but New
// accepts a preference list so callers can force degradation, e.g. for
// tests or constrained environments).
func New(preferred ...Algorithm) *Provider {
	for _, alg := range preferred {
		switch alg {
		case SHA256, MD5, SizeOnly:
			return &Provider{algorithm: alg}
		}
	}
	return &Provider{algorithm: SHA256}
}

// Algorithm reports which digest this provider computes.
func (p *Provider) Algorithm() Algorithm { return p.algorithm }

// Digest returns the digest bytes for path. In SizeOnly mode, the
// "digest" is the decimal file size encoded as bytes, so two digests
// in that mode agree whenever the sizes agree.
func (p *Provider) Digest(path string) ([]byte, error) {
	switch p.algorithm {
	case SHA256:
		return hashFile(path, sha256.New())
	case MD5:
		return hashFile(path, md5.New()) //nolint:gosec // see import comment
	case SizeOnly:
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", path, err)
		}
		return []byte(strconv.FormatInt(info.Size(), 10)), nil
	default:
		return nil, fmt.Errorf("unknown checksum algorithm %q", p.algorithm)
	}
}

// DigestHex returns Digest as a hex string for the hash algorithms,
// or the decimal size string for SizeOnly.
func (p *Provider) DigestHex(path string) (string, error) {
	b, err := p.Digest(path)
	if err != nil {
		return "", err
	}
	if p.algorithm == SizeOnly {
		return string(b), nil
	}
	return hex.EncodeToString(b), nil
}

type hasher interface {
	io.Writer
	Sum([]byte) []byte
}

func hashFile(path string, h hasher) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // path is supplied by the snapshot engine's own tree walk
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hash %q: %w", path, err)
	}
	return h.Sum(nil), nil
}

// SameContent reports whether a and b are byte-identical, using the
// provider's configured algorithm. Used by the hardlink-dedup
// predicate after the cheap size/mtime checks have already passed.
func (p *Provider) SameContent(a, b string) (bool, error) {
	da, err := p.Digest(a)
	if err != nil {
		return false, err
	}
	db, err := p.Digest(b)
	if err != nil {
		return false, err
	}
	if len(da) != len(db) {
		return false, nil
	}
	for i := range da {
		if da[i] != db[i] {
			return false, nil
		}
	}
	return true, nil
}
