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

package monitor

import (
	"log/slog"

	orcalog "github.com/tombee/orca/internal/log"
)

// StatusListener is told about a workflow's progress. Implementations must
// be safe to call from the monitor goroutine.
type StatusListener interface {
	WorkflowStarted(workflow string)
	WorkflowWaiting(workflow string)
	WorkflowShutdown(workflow string)
	WorkflowFailed(workflow string, err error)
}

// NopListener ignores every notification.
type NopListener struct{}

func (NopListener) WorkflowStarted(string)       {}
func (NopListener) WorkflowWaiting(string)       {}
func (NopListener) WorkflowShutdown(string)      {}
func (NopListener) WorkflowFailed(string, error) {}

// LogListener records notifications as log entries.
type LogListener struct {
	Logger *slog.Logger
}

func (l LogListener) WorkflowStarted(workflow string) {
	orcalog.OrDefault(l.Logger).Info("workflow started", slog.String(orcalog.WorkflowKey, workflow))
}

func (l LogListener) WorkflowWaiting(workflow string) {
	orcalog.OrDefault(l.Logger).Info("workflow waiting", slog.String(orcalog.WorkflowKey, workflow))
}

func (l LogListener) WorkflowShutdown(workflow string) {
	orcalog.OrDefault(l.Logger).Info("workflow shut down", slog.String(orcalog.WorkflowKey, workflow))
}

func (l LogListener) WorkflowFailed(workflow string, err error) {
	orcalog.OrDefault(l.Logger).Error("workflow failed", slog.String(orcalog.WorkflowKey, workflow), orcalog.Error(err))
}
