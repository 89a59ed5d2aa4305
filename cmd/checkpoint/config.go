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

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
)

const (
	configDirName  = ".checkpoint"
	configFileName = "config.yaml"
	configVersion  = "1"
)

// Config is the optional .checkpoint/config.yaml inside the backup
// root, auto-created on first create if absent.
type Config struct {
	Version   string   `yaml:"version"`
	Excludes  []string `yaml:"excludes,omitempty"`
	Retention Retention `yaml:"retention,omitempty"`
	Hardlink  *bool    `yaml:"hardlink,omitempty"`
	Checksum  string   `yaml:"checksum,omitempty"`
}

// Retention holds the default retention policy applied after create
// when the caller does not override it on the command line.
type Retention struct {
	KeepN      int `yaml:"keep_n,omitempty"`
	MaxAgeDays int `yaml:"max_age_days,omitempty"`
}

// DefaultConfig returns the configuration a fresh backup root starts
// with: no extra excludes beyond pkg/exclude's defaults, hardlinking
// enabled, SHA-256 checksums, no retention policy.
func DefaultConfig() *Config {
	enabled := true
	return &Config{
		Version:  configVersion,
		Hardlink: &enabled,
		Checksum: "sha256",
	}
}

// ConfigPath returns <dir>/.checkpoint/config.yaml.
func ConfigPath(dir string) string {
	return filepath.Join(dir, configDirName, configFileName)
}

// LoadConfig reads and parses the config file at path. A missing file
// is not an error: callers receive DefaultConfig() instead, since the
// config file is optional.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from the resolved backup root, not raw user input
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, errors.NewEnvironmentError("Cannot read configuration file", err.Error(), fmt.Sprintf("Check permissions on %s", path), err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.NewInputError("Invalid configuration file", err.Error(), fmt.Sprintf("Fix the YAML syntax in %s", path), err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as YAML, creating the parent
// directory if needed.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.NewInternalError("Cannot encode configuration", err.Error(), "", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.NewEnvironmentError("Cannot create configuration directory", err.Error(), "", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return errors.NewEnvironmentError("Cannot write configuration file", err.Error(), "", err)
	}
	return nil
}

// EnsureConfig loads the config at root's config path, writing a
// fresh DefaultConfig there first if none exists yet.
func EnsureConfig(root string) (*Config, error) {
	path := ConfigPath(root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := SaveConfig(cfg, path); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return LoadConfig(path)
}

func (c *Config) hardlinkEnabled() bool {
	if c.Hardlink == nil {
		return true
	}
	return *c.Hardlink
}
