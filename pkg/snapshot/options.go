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

package snapshot

import "github.com/Open-Technology-Foundation/checkpoint/pkg/checksum"

// ProgressFunc reports progress during a phase of snapshot creation
// ("populate" or "verify"); current and total are entry counts.
type ProgressFunc func(current, total int64, phase string)

type createOptions struct {
	suffix         string
	hardlink       bool
	tags           map[string]string
	description    string
	verify         bool
	excludes       []string
	checksumPrefer []checksum.Algorithm
	verifyThresh   int
	lockTimeoutSec int
	force          bool
	progress       ProgressFunc
}

func defaultOptions() *createOptions {
	return &createOptions{
		hardlink:       true,
		verifyThresh:   100,
		lockTimeoutSec: 30,
		checksumPrefer: []checksum.Algorithm{checksum.SHA256},
	}
}

// Option configures a Create call. Grounded on the functional-options
// idiom used by CheckpointOption in the reference hardlink-checkpoint
// implementation this engine's dedup strategy is modeled on.
type Option func(*createOptions)

// WithSuffix appends a user-chosen, sanitised suffix to the snapshot
// name: YYYYMMDD_HHMMSS_<suffix>.
func WithSuffix(suffix string) Option {
	return func(o *createOptions) { o.suffix = suffix }
}

// WithHardlink enables or disables hardlink deduplication against the
// most recent prior snapshot. Enabled by default.
func WithHardlink(enabled bool) Option {
	return func(o *createOptions) { o.hardlink = enabled }
}

// WithTags sets user metadata tags written alongside the reserved
// fields.
func WithTags(tags map[string]string) Option {
	return func(o *createOptions) { o.tags = tags }
}

// WithDescription sets the DESCRIPTION metadata field.
func WithDescription(desc string) Option {
	return func(o *createOptions) { o.description = desc }
}

// WithVerify enables post-creation integrity verification (step 9).
func WithVerify(enabled bool) Option {
	return func(o *createOptions) { o.verify = enabled }
}

// WithExcludes adds user exclusion patterns, on top of the default
// set (spec §4.B).
func WithExcludes(patterns []string) Option {
	return func(o *createOptions) { o.excludes = patterns }
}

// WithChecksumPreference overrides the checksum provider's preferred
// algorithm order.
func WithChecksumPreference(algs ...checksum.Algorithm) Option {
	return func(o *createOptions) { o.checksumPrefer = algs }
}

// WithVerifyThreshold sets the entry count above which verification
// degrades from digest comparison to (size, mtime) comparison.
func WithVerifyThreshold(n int) Option {
	return func(o *createOptions) { o.verifyThresh = n }
}

// WithLockTimeout overrides the default 30-second lock acquisition
// timeout.
func WithLockTimeout(seconds int) Option {
	return func(o *createOptions) { o.lockTimeoutSec = seconds }
}

// WithForce short-circuits lock acquisition's stale-lock step,
// removing any existing lock before the first attempt.
func WithForce(force bool) Option {
	return func(o *createOptions) { o.force = force }
}

// WithProgress registers a callback invoked during the populate and
// verify phases.
func WithProgress(fn ProgressFunc) Option {
	return func(o *createOptions) { o.progress = fn }
}
