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

// Package cleanup implements the scoped-resource teardown pattern
// used on every exit path of a mutating verb, in a fixed order:
// (1) release any held lock, (2) remove any stage directory this
// process authored, (3) run user-registered finalisers in LIFO order.
// A Coordinator is safe to Run more than once and tolerates
// already-removed artefacts.
package cleanup

import (
	"log/slog"
	"os"
	"sync"
)

// Finalizer is a zero-argument cleanup action, run in LIFO order
// relative to registration.
type Finalizer func()

// Coordinator collects finalisers for a single engine call and runs
// them, in order, exactly once (subsequent Run calls are no-ops).
type Coordinator struct {
	mu          sync.Mutex
	lockRelease Finalizer
	finalizers  []Finalizer
	stages      []string
	ran         bool
}

// New returns an empty Coordinator. Callers should construct one
// before acquiring any resource, so that a panic or early return
// between acquisition and the deferred Run still unwinds correctly.
func New() *Coordinator {
	return &Coordinator{}
}

// Register adds f to the LIFO finaliser chain, run after lock release
// and stage removal.
func (c *Coordinator) Register(f Finalizer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finalizers = append(c.finalizers, f)
}

// RegisterLockRelease sets the action that releases the coordinator's
// held lock. It always runs first in Run, ahead of stage removal and
// finalisers, since a stuck lock blocks every other cleanup step a
// concurrent caller might be waiting on.
func (c *Coordinator) RegisterLockRelease(f Finalizer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lockRelease = f
}

// RegisterStage records a stage directory authored by this process,
// to be removed by Run if it still exists.
func (c *Coordinator) RegisterStage(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages = append(c.stages, path)
}

// ForgetStage removes path from the pending-removal list, used once a
// stage has been successfully published and must not be deleted by a
// later cleanup.
func (c *Coordinator) ForgetStage(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.stages[:0]
	for _, s := range c.stages {
		if s != path {
			kept = append(kept, s)
		}
	}
	c.stages = kept
}

// Run executes the coordinator's teardown in order: release the lock,
// remove pending stage directories, then run finalisers in LIFO
// order. Calling Run more than once is a no-op after the first call,
// and every step tolerates already-removed state.
func (c *Coordinator) Run() {
	c.mu.Lock()
	if c.ran {
		c.mu.Unlock()
		return
	}
	c.ran = true
	lockRelease := c.lockRelease
	stages := c.stages
	finalizers := c.finalizers
	c.mu.Unlock()

	if lockRelease != nil {
		lockRelease()
	}

	for _, stage := range stages {
		if err := os.RemoveAll(stage); err != nil {
			slog.Default().Warn("cleanup: failed to remove stage", "path", stage, "err", err)
		}
	}

	for i := len(finalizers) - 1; i >= 0; i-- {
		finalizers[i]()
	}
}
