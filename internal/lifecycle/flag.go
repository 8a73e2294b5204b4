// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package lifecycle

import "sync"

// RunState is the coarse lifecycle of a workflow or a production run.
type RunState string

const (
	// NotStarted means nothing has been launched yet.
	NotStarted RunState = "not_started"
	// Running means work was handed to the scheduler and has not finished.
	Running RunState = "running"
	// Done is terminal.
	Done RunState = "done"
)

// IsTerminal reports whether s can no longer change.
func (s RunState) IsTerminal() bool {
	return s == Done
}

// Flag is a {running, done} pair guarded by a single mutex.
//
// Transitions only move forward: Start sets running, Finish clears running
// and sets done, Deactivate clears running without marking done. Done is
// never cleared. Every read and write happens inside one short critical
// section, so readers never observe a torn pair.
type Flag struct {
	mu      sync.Mutex
	started bool
	running bool
	done    bool
}

// Start marks the flag running. It returns false, and changes nothing, if the
// flag already left NotStarted.
func (f *Flag) Start() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started || f.done {
		return false
	}
	f.started = true
	f.running = true
	return true
}

// Finish sets {running:false, done:true}. It returns true if this call made
// the transition.
func (f *Flag) Finish() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		f.running = false
		return false
	}
	f.running = false
	f.done = true
	return true
}

// Deactivate clears running and leaves done alone. It returns true if the
// flag was running.
func (f *Flag) Deactivate() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.running
	f.running = false
	return was
}

// Running reports the running half of the pair.
func (f *Flag) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Done reports the done half of the pair.
func (f *Flag) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Snapshot returns both halves read under one lock.
func (f *Flag) Snapshot() (running, done bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running, f.done
}

// State maps the flag onto a RunState. A flag that was deactivated without
// finishing reports Running until Finish is called, since its work may
// still be winding down.
func (f *Flag) State() RunState {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch {
	case f.done:
		return Done
	case f.started:
		return Running
	default:
		return NotStarted
	}
}
