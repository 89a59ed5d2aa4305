// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"strings"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
)

// verbOptions collects every flag main parsed, regardless of which
// verb ends up consuming it.
type verbOptions struct {
	globals globalFlags
	args    []string

	backupDir string

	list        bool
	restore     string
	compareWith string
	diff        bool
	dryRun      bool
	fullReplace bool
	target      string
	patterns    []string

	metadata   bool
	showMeta   string
	updateMeta []string
	findMeta   string

	pruneOnly  bool
	keepN      int
	maxAgeDays int

	verify bool

	suffix      string
	description string
	hardlink    bool
	lockTimeout int
	force       bool
	forceUnlock bool

	remote string
}

// dispatch selects and runs exactly one verb based on the flags and
// positional arguments main collected. Verbs are mutually exclusive;
// the default (no flag matched) is create.
func dispatch(o verbOptions) error {
	if o.remote != "" {
		return runRemote(o)
	}
	if o.forceUnlock {
		return runForceUnlock(o)
	}
	if o.list {
		return runList(o)
	}
	if o.metadata {
		return runMetadata(o)
	}
	if o.pruneOnly {
		return runPrune(o)
	}
	if o.restore != "" {
		return runRestore(o)
	}
	if o.compareWith != "" {
		return runCompare(o)
	}
	if o.verify && len(o.args) >= 2 {
		return runVerify(o)
	}
	return runCreate(o)
}

func requireArgs(o verbOptions, n int, usage string) ([]string, error) {
	if len(o.args) < n {
		return nil, errors.NewMissingArgError(
			"Missing required argument",
			fmt.Sprintf("expected: %s", usage),
			"Run checkpoint --help for usage",
		)
	}
	return o.args, nil
}

func parseKeyValue(s string) (string, string, error) {
	parts := strings.SplitN(s, "=", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", errors.NewInputError(
			"Invalid KEY=VALUE pair",
			fmt.Sprintf("got %q", s),
			"Pass metadata as KEY=VALUE, e.g. --update owner=alice",
		)
	}
	return parts[0], parts[1], nil
}
