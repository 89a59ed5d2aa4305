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

// Package remote implements checkpoint's remote dispatcher: the same
// create/list/verify/compare/restore/retain/metadata verbs executed
// against a far-end filesystem over SSH, with strict input hardening
// applied before any transport call is made.
package remote

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
	"github.com/Open-Technology-Foundation/checkpoint/pkg/snapshot"
)

var specPattern = regexp.MustCompile(`^([A-Za-z0-9_.-]+)@([A-Za-z0-9_.-]+):(.+)$`)
var pathPattern = regexp.MustCompile(`^[A-Za-z0-9_./-]+$`)

// Spec is a parsed and validated user@host:path remote target.
type Spec struct {
	User string
	Host string
	Path string
}

// Parse splits raw into a Spec and validates Path per §4.J's input
// hardening rules. No transport call is made, or even attempted, if
// this returns an error — callers must validate before dialing.
func Parse(raw string) (*Spec, error) {
	m := specPattern.FindStringSubmatch(raw)
	if m == nil {
		return nil, errors.NewInputError(
			"Invalid remote specification",
			fmt.Sprintf("%q is not of the form user@host:path", raw),
			"Use user@host:/absolute/or/relative/path",
		)
	}
	spec := &Spec{User: m[1], Host: m[2], Path: m[3]}
	if err := ValidatePath(spec.Path); err != nil {
		return nil, err
	}
	return spec, nil
}

// ValidatePath applies the remote-path hardening rule: the path must
// match [A-Za-z0-9_./-]+ and must not contain a ".." traversal
// segment, checked before any transport call.
func ValidatePath(path string) error {
	if strings.Contains(path, "..") {
		return errors.NewInputError(
			"Invalid remote path",
			fmt.Sprintf("path %q cannot contain directory traversal", path),
			"Use an absolute path with no .. segments",
		)
	}
	if !pathPattern.MatchString(path) {
		return errors.NewInputError(
			"Invalid remote path",
			fmt.Sprintf("path %q contains characters outside [A-Za-z0-9_./-]", path),
			"Use only letters, digits, '.', '_', '-', and '/' in the remote path",
		)
	}
	return nil
}

// ValidateCheckpointID rejects any snapshot identifier that does not
// match the snapshot-name regex, checked before any remote verb that
// takes one as an argument.
func ValidateCheckpointID(id string) error {
	if !snapshot.NameRegex.MatchString(id) {
		return errors.NewInputError(
			"Invalid checkpoint id",
			fmt.Sprintf("%q does not match the snapshot name pattern", id),
			"Pass a snapshot name in the form YYYYMMDD_HHMMSS[_suffix]",
		)
	}
	return nil
}

func (s *Spec) String() string {
	return fmt.Sprintf("%s@%s:%s", s.User, s.Host, s.Path)
}
