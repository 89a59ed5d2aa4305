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

// Package errors implements the checkpoint error taxonomy: typed,
// user-facing errors that carry a title, a detail line, a suggestion,
// and an optional underlying cause, plus the exit-code mapping used by
// FatalError.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Kind classifies an error into one of the taxonomy buckets from the
// error handling design.
type Kind string

const (
	KindMissingArg     Kind = "missing_arg"
	KindInput          Kind = "input"
	KindEnvironment    Kind = "environment"
	KindLock           Kind = "lock"
	KindIntegrity      Kind = "integrity"
	KindPublish        Kind = "publish"
	KindPartialResult  Kind = "partial_result"
	KindRemote         Kind = "remote"
	KindCancelled      Kind = "cancelled"
	KindInternal       Kind = "internal"
)

// exitCodes maps a Kind to the process exit code it should produce,
// per the exit-code table (spec §6) and the three dedicated codes the
// design notes ask implementers to add. KindMissingArg and KindInput
// are deliberately distinct: a missing required argument (exit 2) is
// a different condition from a present-but-invalid option value (exit
// 22), and the table lists both as reachable.
var exitCodes = map[Kind]int{
	KindMissingArg:    2,
	KindInput:         22,
	KindEnvironment:   1,
	KindLock:          3,
	KindIntegrity:     4,
	KindPublish:       1,
	KindPartialResult: 5,
	KindRemote:        1,
	KindCancelled:     1,
	KindInternal:      1,
}

// CheckpointError is a structured, user-facing error: a short title, a
// longer detail line explaining what happened, an actionable
// suggestion, and the underlying cause (if any).
type CheckpointError struct {
	Kind       Kind   `json:"kind"`
	Title      string `json:"title"`
	Detail     string `json:"detail"`
	Suggestion string `json:"suggestion,omitempty"`
	Cause      error  `json:"-"`
}

func (e *CheckpointError) Error() string {
	if e.Detail == "" {
		return e.Title
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *CheckpointError) Unwrap() error { return e.Cause }

// ExitCode returns the process exit code for this error's kind.
func (e *CheckpointError) ExitCode() int {
	if code, ok := exitCodes[e.Kind]; ok {
		return code
	}
	return 1
}

func newError(kind Kind, title, detail, suggestion string, cause error) *CheckpointError {
	return &CheckpointError{Kind: kind, Title: title, Detail: detail, Suggestion: suggestion, Cause: cause}
}

func NewMissingArgError(title, detail, suggestion string, cause ...error) *CheckpointError {
	return newError(KindMissingArg, title, detail, suggestion, firstCause(cause))
}

func NewInputError(title, detail, suggestion string, cause ...error) *CheckpointError {
	return newError(KindInput, title, detail, suggestion, firstCause(cause))
}

func NewEnvironmentError(title, detail, suggestion string, cause ...error) *CheckpointError {
	return newError(KindEnvironment, title, detail, suggestion, firstCause(cause))
}

func NewLockError(title, detail, suggestion string, cause ...error) *CheckpointError {
	return newError(KindLock, title, detail, suggestion, firstCause(cause))
}

func NewIntegrityError(title, detail, suggestion string, cause ...error) *CheckpointError {
	return newError(KindIntegrity, title, detail, suggestion, firstCause(cause))
}

func NewPublishError(title, detail, suggestion string, cause ...error) *CheckpointError {
	return newError(KindPublish, title, detail, suggestion, firstCause(cause))
}

func NewPartialResultError(title, detail, suggestion string, cause ...error) *CheckpointError {
	return newError(KindPartialResult, title, detail, suggestion, firstCause(cause))
}

func NewRemoteError(title, detail, suggestion string, cause ...error) *CheckpointError {
	return newError(KindRemote, title, detail, suggestion, firstCause(cause))
}

func NewCancelledError(title, detail, suggestion string, cause ...error) *CheckpointError {
	return newError(KindCancelled, title, detail, suggestion, firstCause(cause))
}

func NewInternalError(title, detail, suggestion string, cause ...error) *CheckpointError {
	return newError(KindInternal, title, detail, suggestion, firstCause(cause))
}

func firstCause(cause []error) error {
	if len(cause) == 0 {
		return nil
	}
	return cause[0]
}

// New wraps a plain message as an internal error, for call sites that
// don't yet have a more specific kind to report.
func New(msg string) error {
	return errors.New(msg)
}

// AsCheckpointError extracts a *CheckpointError from err, if present.
func AsCheckpointError(err error) (*CheckpointError, bool) {
	var ce *CheckpointError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// FatalError renders err to stderr (plain text, or JSON when json is
// true) and exits the process with the error's mapped exit code. A
// plain (untyped) error exits 1.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		return
	}

	ce, ok := AsCheckpointError(err)
	if !ok {
		ce = &CheckpointError{Kind: KindInternal, Title: err.Error()}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stderr)
		_ = enc.Encode(ce)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", ce.Title)
		if ce.Detail != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", ce.Detail)
		}
		if ce.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "  Suggestion: %s\n", ce.Suggestion)
		}
		if ce.Cause != nil {
			fmt.Fprintf(os.Stderr, "  Cause: %v\n", ce.Cause)
		}
	}

	os.Exit(ce.ExitCode())
}
