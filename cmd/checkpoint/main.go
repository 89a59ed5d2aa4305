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

// Package main implements the checkpoint CLI: atomic, hardlink-
// deduplicated directory snapshots with retention, comparison,
// restore, metadata, and a remote-over-SSH mode.
//
// Usage:
//
//	checkpoint <source>                 Create a snapshot of <source>
//	checkpoint --list                   List snapshots in the backup root
//	checkpoint --restore <snapshot>      Restore a snapshot
//	checkpoint --compare-with <snap2>    Compare two snapshots
//	checkpoint --metadata --show <snap>  Show a snapshot's metadata
//	checkpoint --prune-only              Apply retention without creating
//	checkpoint --verify <snapshot> <source>  Re-verify a published snapshot
//	checkpoint --remote <spec> ...       Run a verb against a remote host
//	checkpoint --force-unlock            Remove a stuck lock
package main

import (
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/Open-Technology-Foundation/checkpoint/internal/errors"
	"github.com/Open-Technology-Foundation/checkpoint/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// globalFlags holds options shared across every verb.
type globalFlags struct {
	JSON    bool
	NoColor bool
	Verbose int
	Quiet   bool
}

func main() {
	var (
		showVersion  = flag.BoolP("version", "V", false, "Show version and exit")
		jsonOutput   = flag.Bool("json", false, "Output machine-readable JSON")
		noColor      = flag.Bool("no-color", false, "Disable colour output")
		verbose      = flag.CountP("verbose", "v", "Increase verbosity (-v info, -vv debug)")
		quiet        = flag.BoolP("quiet", "q", false, "Suppress non-essential output")
		backupDir    = flag.String("backup-dir", "", "Explicit backup root (overrides the computed default)")
		listFlag     = flag.Bool("list", false, "List snapshots in the backup root")
		restoreFlag  = flag.String("restore", "", "Restore the named snapshot")
		compareWith  = flag.String("compare-with", "", "Compare the named snapshot or path with the positional snapshot or path")
		diffFlag     = flag.Bool("diff", false, "Run a pre-restore diff when combined with --restore")
		dryRun       = flag.Bool("dry-run", false, "Preview a restore without writing to the target")
		fullReplace  = flag.Bool("full-replace", false, "Restore deletes target entries absent from the snapshot")
		target       = flag.String("target", "", "Restore target directory (default: snapshot's recorded SOURCE)")
		patterns     = flag.StringSlice("pattern", nil, "Restrict restore/compare to matching relative paths")
		metadataFlag = flag.Bool("metadata", false, "Operate on snapshot metadata")
		showMeta     = flag.String("show", "", "Show the named snapshot's metadata (with --metadata)")
		updateMeta   = flag.StringSlice("update", nil, "KEY=VALUE to set on the named snapshot's metadata (with --metadata and --show)")
		findMeta     = flag.String("find", "", "KEY=VALUE predicate to search for (with --metadata)")
		pruneOnly    = flag.Bool("prune-only", false, "Apply retention without creating a snapshot")
		keepN        = flag.Int("keep-n", -1, "Retention: keep the N most recent snapshots")
		maxAgeDays   = flag.Int("max-age-days", -1, "Retention: remove snapshots older than N days")
		verifyFlag   = flag.Bool("verify", false, "Verify integrity (standalone, or combined with create)")
		suffix       = flag.String("suffix", "", "Suffix appended to the snapshot name")
		description  = flag.String("description", "", "DESCRIPTION metadata field for a new snapshot")
		noHardlink   = flag.Bool("no-hardlink", false, "Disable hardlink deduplication against the prior snapshot")
		lockTimeout  = flag.Int("lock-timeout", 30, "Seconds to wait for the backup-root lock")
		forceFlag    = flag.Bool("force", false, "Skip stale-lock polling and reclaim the lock immediately")
		forceUnlock  = flag.Bool("force-unlock", false, "Remove a stuck lock unconditionally")
		remoteSpec   = flag.String("remote", "", "user@host:path target; runs the selected verb remotely")
	)

	flag.SetInterspersed(false)
	flag.Usage = printUsage

	flag.Parse()

	if *showVersion {
		fmt.Printf("checkpoint version %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		os.Exit(0)
	}

	if os.Getenv("NO_COLOR") != "" {
		*noColor = true
	}
	if *quiet && *verbose > 0 {
		fmt.Fprintln(os.Stderr, "Error: cannot use --quiet and --verbose together")
		os.Exit(1)
	}
	if *jsonOutput {
		*quiet = true
	}

	globals := globalFlags{JSON: *jsonOutput, NoColor: *noColor, Verbose: *verbose, Quiet: *quiet}
	ui.InitColors(globals.NoColor)
	configureLogging(globals)

	args := flag.Args()

	opts := verbOptions{
		globals:     globals,
		args:        args,
		backupDir:   *backupDir,
		list:        *listFlag,
		restore:     *restoreFlag,
		compareWith: *compareWith,
		diff:        *diffFlag,
		dryRun:      *dryRun,
		fullReplace: *fullReplace,
		target:      *target,
		patterns:    *patterns,
		metadata:    *metadataFlag,
		showMeta:    *showMeta,
		updateMeta:  *updateMeta,
		findMeta:    *findMeta,
		pruneOnly:   *pruneOnly,
		keepN:       *keepN,
		maxAgeDays:  *maxAgeDays,
		verify:      *verifyFlag,
		suffix:      *suffix,
		description: *description,
		hardlink:    !*noHardlink,
		lockTimeout: *lockTimeout,
		force:       *forceFlag,
		forceUnlock: *forceUnlock,
		remote:      *remoteSpec,
	}

	if err := dispatch(opts); err != nil {
		errors.FatalError(err, globals.JSON)
	}
}

func configureLogging(g globalFlags) {
	level := slog.LevelWarn
	switch {
	case g.Quiet:
		level = slog.LevelError
	case g.Verbose >= 2:
		level = slog.LevelDebug
	case g.Verbose >= 1:
		level = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func printUsage() {
	fmt.Fprint(os.Stderr, `checkpoint - directory snapshot engine

Usage:
  checkpoint [options] <source>            Create a snapshot of <source>
  checkpoint --list [options]              List snapshots in the backup root
  checkpoint --restore <snapshot> [opts]   Restore a snapshot
  checkpoint --compare-with <snap2> <snap1>  Compare two snapshots
  checkpoint --metadata --show <snapshot>  Show a snapshot's metadata
  checkpoint --metadata --show <snap> --update KEY=VALUE
  checkpoint --metadata --find KEY=VALUE   Search snapshots by metadata
  checkpoint --prune-only [--keep-n N | --max-age-days D]
  checkpoint --verify <snapshot> <source>  Re-verify a published snapshot
  checkpoint --force-unlock                Remove a stuck lock
  checkpoint --remote user@host:path ...   Run a verb against a remote host

Global Options:
  --backup-dir <dir>     Explicit backup root
  --json                 Machine-readable JSON output
  --no-color             Disable colour output
  -v, --verbose          Increase verbosity
  -q, --quiet            Suppress non-essential output
  -V, --version          Show version and exit

Create Options:
  --suffix <s>           Suffix appended to the snapshot name
  --description <s>      DESCRIPTION metadata field
  --no-hardlink          Disable hardlink deduplication
  --verify               Verify the snapshot immediately after creation
  --lock-timeout <secs>  Seconds to wait for the backup-root lock (default 30)
  --force                Reclaim the lock immediately, skipping stale polling

Restore Options:
  --target <dir>         Restore target (default: snapshot's recorded SOURCE)
  --pattern <glob>       Restrict restore/compare to matching paths (repeatable)
  --diff                 Run a pre-restore diff and ask for confirmation
  --dry-run              Preview changes without writing to the target
  --full-replace         Delete target entries absent from the snapshot

Environment:
  CHECKPOINT_BACKUP_DIR    Default root prefix (joined with the source basename)
  CHECKPOINT_AUTO_CONFIRM  Non-empty value suppresses interactive prompts
`)
}
