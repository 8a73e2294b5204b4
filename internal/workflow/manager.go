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

// Package workflow guards the lifecycle of a single workflow: configure it
// once, launch it at most once, and forward stop requests to its monitor.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tombee/orca/internal/launcher"
	"github.com/tombee/orca/internal/lifecycle"
	orcalog "github.com/tombee/orca/internal/log"
	"github.com/tombee/orca/internal/monitor"
	"github.com/tombee/orca/internal/scheduler"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// Phase is where a workflow is in its lifecycle.
type Phase string

const (
	PhaseUnconfigured Phase = "unconfigured"
	PhaseConfiguring  Phase = "configuring"
	PhaseConfigured   Phase = "configured"
	PhaseLaunching    Phase = "launching"
	PhaseRunning      Phase = "running"
	PhaseDone         Phase = "done"
	// PhaseFailed means launch failed; the workflow never ran.
	PhaseFailed Phase = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Manager owns one workflow's configurator, launcher and monitor.
type Manager struct {
	name         string
	configurator launcher.Configurator
	logger       *slog.Logger

	// mu serializes configure and launch. It is never held while waiting
	// on the monitor.
	mu        sync.Mutex
	phase     Phase
	launcher  launcher.Launcher
	monitor   *monitor.Monitor
	launchErr error
}

// NewManager creates a Manager for the named workflow.
func NewManager(name string, configurator launcher.Configurator, logger *slog.Logger) *Manager {
	return &Manager{
		name:         name,
		configurator: configurator,
		logger:       orcalog.WithComponent(logger, "workflow").With(slog.String(orcalog.WorkflowKey, name)),
		phase:        PhaseUnconfigured,
	}
}

// Name returns the workflow name.
func (m *Manager) Name() string {
	return m.name
}

// Configure builds the launcher once. Later calls return the cached one.
func (m *Manager) Configure() (launcher.Launcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configureLocked()
}

func (m *Manager) configureLocked() (launcher.Launcher, error) {
	if m.launcher != nil {
		m.logger.Debug("workflow already configured")
		return m.launcher, nil
	}

	m.phase = PhaseConfiguring
	l, err := m.configurator.Configure()
	if err != nil {
		m.phase = PhaseUnconfigured
		return nil, orcaerrors.Wrapf(err, "configuring workflow %s", m.name)
	}
	m.launcher = l
	m.phase = PhaseConfigured
	m.logger.Debug("workflow configured")
	return l, nil
}

// CheckConfiguration asks the configurator to record problems at care.
func (m *Manager) CheckConfiguration(care int, problems *orcaerrors.MultiIssueConfigurationError) {
	m.configurator.CheckConfiguration(care, problems)
}

// RunWorkflow configures if needed, then launches the workflow. A workflow
// runs at most once: if it is running, done, or already launched the call
// returns false without submitting anything. Launch errors are returned and
// leave the workflow failed.
func (m *Manager) RunWorkflow(ctx context.Context, listener monitor.StatusListener) (*monitor.Monitor, bool, error) {
	if m.IsRunning() || m.IsDone() {
		m.logger.Info("workflow already started, not running again")
		return nil, false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.phase {
	case PhaseUnconfigured, PhaseConfigured:
	default:
		m.logger.Info("workflow already launched", slog.String("phase", string(m.phase)))
		return nil, false, nil
	}

	l, err := m.configureLocked()
	if err != nil {
		return nil, false, err
	}

	m.phase = PhaseLaunching
	mon, err := l.Launch(ctx, listener)
	if err != nil {
		m.phase = PhaseFailed
		m.launchErr = err
		m.logger.Error("workflow launch failed", orcalog.Error(err))
		return nil, false, err
	}
	m.monitor = mon
	m.phase = PhaseRunning
	return mon, true, nil
}

// StopWorkflow forwards to the monitor. With no monitor it does nothing.
func (m *Manager) StopWorkflow(ctx context.Context, urgency lifecycle.Urgency) error {
	mon := m.Monitor()
	if mon == nil {
		m.logger.Info("no monitor to stop", slog.String(orcalog.UrgencyKey, urgency.String()))
		return nil
	}
	return mon.Stop(ctx, urgency)
}

// WaitUntilRunning blocks until the launched job is running in the
// scheduler.
func (m *Manager) WaitUntilRunning(ctx context.Context, opts scheduler.WaitOptions) error {
	m.mu.Lock()
	l, mon := m.launcher, m.monitor
	m.mu.Unlock()

	if mon == nil {
		return fmt.Errorf("workflow %s has not been launched", m.name)
	}
	waiter, ok := l.(launcher.RunWaiter)
	if !ok {
		return fmt.Errorf("workflow %s cannot report run state", m.name)
	}
	return waiter.WaitUntilRunning(ctx, mon.JobID(), opts)
}

// Monitor returns the workflow's monitor, or nil before launch.
func (m *Manager) Monitor() *monitor.Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.monitor
}

// IsRunning delegates to the monitor; false before launch.
func (m *Manager) IsRunning() bool {
	mon := m.Monitor()
	return mon != nil && mon.IsRunning()
}

// IsDone delegates to the monitor. A failed launch also counts as done.
func (m *Manager) IsDone() bool {
	m.mu.Lock()
	mon, phase := m.monitor, m.phase
	m.mu.Unlock()
	if phase == PhaseFailed {
		return true
	}
	return mon != nil && mon.IsDone()
}

// Phase reports the lifecycle phase, folding in the monitor's state.
func (m *Manager) Phase() Phase {
	m.mu.Lock()
	mon, phase := m.monitor, m.phase
	m.mu.Unlock()
	if phase == PhaseRunning && mon.IsDone() {
		return PhaseDone
	}
	return phase
}

// State maps the phase onto a RunState.
func (m *Manager) State() lifecycle.RunState {
	switch m.Phase() {
	case PhaseRunning:
		return lifecycle.Running
	case PhaseDone, PhaseFailed:
		return lifecycle.Done
	default:
		return lifecycle.NotStarted
	}
}

// LaunchError returns the error from a failed launch, if any.
func (m *Manager) LaunchError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.launchErr
}

// CleanUp runs the launcher's clean up once the monitor is done.
func (m *Manager) CleanUp(ctx context.Context) error {
	m.mu.Lock()
	l, mon := m.launcher, m.monitor
	m.mu.Unlock()
	if l == nil || mon == nil || !mon.IsDone() {
		return nil
	}
	return l.CleanUp(ctx)
}
