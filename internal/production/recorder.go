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

package production

import (
	"github.com/tombee/orca/internal/lifecycle"
	"github.com/tombee/orca/internal/monitor"
)

// statusRecorder logs workflow notifications and mirrors them into the
// state store.
type statusRecorder struct {
	manager  *Manager
	sequence int
	log      monitor.LogListener
}

func (r *statusRecorder) WorkflowStarted(workflow string) {
	r.log.WorkflowStarted(workflow)
	r.save(workflow, string(lifecycle.Running), nil)
}

func (r *statusRecorder) WorkflowWaiting(workflow string) {
	r.log.WorkflowWaiting(workflow)
	r.save(workflow, "waiting", nil)
}

func (r *statusRecorder) WorkflowShutdown(workflow string) {
	r.log.WorkflowShutdown(workflow)
	r.save(workflow, string(lifecycle.Done), nil)
}

func (r *statusRecorder) WorkflowFailed(workflow string, err error) {
	r.log.WorkflowFailed(workflow, err)
	r.save(workflow, "failed", err)
}

func (r *statusRecorder) save(workflow, state string, err error) {
	rec := WorkflowRecord{Workflow: workflow, Sequence: r.sequence, State: state}
	if err != nil {
		rec.Error = err.Error()
	}
	r.manager.recordWorkflow(rec)
}
