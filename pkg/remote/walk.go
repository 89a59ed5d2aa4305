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

package remote

import (
	"io"
	"os"
	"path/filepath"
)

// walkLocal walks root, calling visit with each entry's path relative
// to root (slash-separated is the caller's job; this package stays in
// native separators until the remote path join), whether it is a
// directory, and — for files — a lazily-invoked opener.
func walkLocal(root string, visit func(rel string, isDir bool, open func() (io.ReadCloser, error)) error) error {
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		if info.IsDir() {
			return visit(rel, true, nil)
		}
		return visit(rel, false, func() (io.ReadCloser, error) {
			return os.Open(p) //nolint:gosec // p comes from this package's own tree walk
		})
	})
}

func pathMatch(pattern, name string) (bool, error) {
	return filepath.Match(pattern, name)
}
