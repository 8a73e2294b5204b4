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

/*
Package lifecycle holds the small state types shared by monitors, workflow
managers and the production run manager.

# Key Types

  - RunState: NotStarted, Running or Done for a workflow or a run.
  - Flag: the mutex-guarded {running, done} pair one background task shares
    with any number of readers.
  - Urgency: the ordered stop level carried by a StopRequest.
  - StopRequest: the {runid, level} body accepted by the control endpoint.
  - RunLock: the flock-backed pid file held while a production is active.

# Usage

	var f lifecycle.Flag
	f.Start()
	...
	if f.Running() {
	    f.Finish()
	}
	state := f.State() // lifecycle.Done
*/
package lifecycle
