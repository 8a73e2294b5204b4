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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/tombee/orca/internal/config"
	"github.com/tombee/orca/internal/eventbus"
	"github.com/tombee/orca/internal/launcher"
	"github.com/tombee/orca/internal/lifecycle"
	orcalog "github.com/tombee/orca/internal/log"
	"github.com/tombee/orca/internal/loggermgr"
	"github.com/tombee/orca/internal/metrics"
	"github.com/tombee/orca/internal/monitor"
	"github.com/tombee/orca/internal/scheduler"
	"github.com/tombee/orca/internal/workflow"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// Run states written to the store.
const (
	StateConfigured = "configured"
	StateRunning    = "running"
	StateStopping   = "stopping"
	StateFinished   = "finished"
	StateStopped    = "stopped"
	StateFailed     = "failed"
)

const checkProblemsMsg = "problems encountered while checking configuration"

// Options configures a Manager.
type Options struct {
	Config *config.Config

	// RunID overrides Config.Production.RunID. When both are empty a uuid
	// is generated.
	RunID string

	// Registry resolves workflow plugins. Default: launcher.NewRegistry().
	Registry *launcher.Registry

	// Bus is shared by every monitor. Default: a new bus owned by the
	// manager.
	Bus *eventbus.Bus

	// Runner overrides how scheduler commands run.
	Runner scheduler.CommandRunner

	// LookPath overrides command lookup during configuration checks.
	LookPath func(string) (string, error)

	// Store records run state. When nil and Config.Production.StateDB is
	// set, the manager opens and owns one.
	Store *Store

	// Level, when set, is raised to match a positive verbosity.
	Level *slog.LevelVar

	Logger *slog.Logger
}

// Manager owns every workflow of one production run.
type Manager struct {
	cfg    *config.Config
	runID  string
	opts   Options
	logger *slog.Logger

	bus      *eventbus.Bus
	ownBus   bool
	store    *Store
	ownStore bool
	loggers  *loggermgr.Manager
	lock     *lifecycle.RunLock

	// mu serializes configure and run.
	mu         sync.Mutex
	configured bool
	launched   bool
	workflows  []*workflow.Manager
	monitors   []*monitor.Monitor
	endpoint   *Endpoint

	// stateMu guards the run-level flags only.
	stateMu sync.Mutex
	running bool
	done    bool

	// stopMu is held for the whole of a StopProduction call.
	stopMu sync.Mutex

	finishOnce sync.Once
}

// New creates a Manager for cfg. It does not configure anything yet.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	runID := opts.RunID
	if runID == "" {
		runID = opts.Config.Production.RunID
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	if opts.Registry == nil {
		opts.Registry = launcher.NewRegistry()
	}

	m := &Manager{
		cfg:    opts.Config,
		runID:  runID,
		opts:   opts,
		logger: orcalog.WithRunContext(orcalog.WithComponent(opts.Logger, "production"), runID, ""),
		bus:    opts.Bus,
		store:  opts.Store,
	}
	if m.bus == nil {
		m.bus = eventbus.NewBus(0)
		m.ownBus = true
	}
	if m.store == nil && opts.Config.Production.StateDB != "" {
		store, err := OpenStore(ctx, opts.Config.Production.StateDB)
		if err != nil {
			return nil, err
		}
		m.store = store
		m.ownStore = true
	}

	lc := opts.Config.Production.Logger
	if lc.Enabled {
		m.loggers = loggermgr.New(loggermgr.Options{
			Command: lc.Command,
			Broker:  lc.Broker,
			RunID:   runID,
			DBHost:  lc.DBHost,
			DBPort:  lc.DBPort,
			DBName:  lc.DBName,
			Logger:  opts.Logger,
		})
	}
	return m, nil
}

// RunID returns the production's run id.
func (m *Manager) RunID() string {
	return m.runID
}

// Bus returns the event bus monitors listen on.
func (m *Manager) Bus() *eventbus.Bus {
	return m.bus
}

// Configure builds every workflow manager once. Later calls do nothing.
func (m *Manager) Configure(verbosity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configureLocked(verbosity)
}

func (m *Manager) configureLocked(verbosity int) error {
	if m.configured {
		m.logger.Debug("production already configured")
		return nil
	}
	if verbosity > 0 && m.opts.Level != nil {
		m.opts.Level.Set(orcalog.ParseLevel(orcalog.VerbosityLevel(verbosity)))
	}

	env := launcher.Environment{
		RunID:       m.runID,
		Bus:         m.bus,
		LoggerGrace: m.cfg.Production.Logger.Grace,
		Runner:      m.opts.Runner,
		LookPath:    m.opts.LookPath,
		Logger:      m.opts.Logger,
	}
	if m.loggers != nil {
		env.Loggers = m.loggers
	}

	managers := make([]*workflow.Manager, 0, len(m.cfg.Workflows))
	for _, wf := range m.cfg.Workflows {
		configurator, err := m.opts.Registry.New(wf, env)
		if err != nil {
			return err
		}
		wm := workflow.NewManager(wf.Name, configurator, m.opts.Logger)
		if _, err := wm.Configure(); err != nil {
			return orcaerrors.NewMultiIssueConfigurationError("", fmt.Sprintf("error configuring workflow %s: %v", wf.Name, err))
		}
		managers = append(managers, wm)
	}

	m.workflows = managers
	m.configured = true
	m.record(RunRecord{RunID: m.runID, ShortName: m.cfg.Production.ShortName, State: StateConfigured})
	m.logger.Info("production configured", slog.Int("workflows", len(managers)))
	return nil
}

// CheckConfiguration checks the production and every workflow at the given
// care level, returning every problem at once.
func (m *Manager) CheckConfiguration(care int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkConfigurationLocked(care)
}

func (m *Manager) checkConfigurationLocked(care int) error {
	if !m.configured {
		return &orcaerrors.ConfigError{
			Reason: fmt.Sprintf("%s %s: production has not been configured yet", m.cfg.Production.ShortName, m.runID),
		}
	}

	problems := orcaerrors.NewMultiIssueConfigurationError(checkProblemsMsg, "")
	if err := m.cfg.Validate(); err != nil {
		var multi *orcaerrors.MultiIssueConfigurationError
		if orcaerrors.As(err, &multi) {
			for _, p := range multi.Problems() {
				problems.AddProblem(p)
			}
		} else {
			problems.AddProblem(err.Error())
		}
	}
	if care >= 2 && m.loggers != nil {
		lookPath := m.opts.LookPath
		if lookPath == nil {
			lookPath = exec.LookPath
		}
		if _, err := lookPath(firstField(m.cfg.Production.Logger.Command)); err != nil {
			problems.AddProblemf("logger command %q not found on PATH", m.cfg.Production.Logger.Command)
		}
	}
	for _, wm := range m.workflows {
		wm.CheckConfiguration(care, problems)
	}

	if problems.HasProblems() {
		return problems
	}
	return nil
}

// IsRunnable reports whether RunProduction may start the run.
func (m *Manager) IsRunnable() bool {
	return !m.IsRunning() && !m.IsDone()
}

// RunProduction launches every workflow in declared order and starts the
// control endpoint. It returns false without error when the production is
// already running or done. It does not wait for the workflows.
func (m *Manager) RunProduction(ctx context.Context, skipConfigCheck bool, verbosity int) (bool, error) {
	if !m.IsRunnable() {
		if m.IsRunning() {
			m.logger.Info("production is already running")
		}
		if m.IsDone() {
			m.logger.Info("production has already run; start with a new run id")
		}
		return false, nil
	}

	care := m.cfg.Production.CheckCare()
	if care < 0 {
		skipConfigCheck = true
	}

	m.mu.Lock()
	if m.launched {
		m.mu.Unlock()
		m.logger.Info("production is already running")
		return false, nil
	}
	err := m.launchLocked(ctx, skipConfigCheck, care, verbosity)
	m.mu.Unlock()
	if err != nil {
		m.record(RunRecord{RunID: m.runID, State: StateFailed, FinishedAt: time.Now()})
		return false, err
	}

	if err := m.startEndpoint(); err != nil {
		m.logger.Error("control endpoint unavailable, stopping production", orcalog.Error(err))
		m.StopProduction(ctx, lifecycle.Now, m.cfg.Production.StopTimeout)
		return false, err
	}

	m.logger.Info("production launched", slog.String("control_addr", m.ControlAddr()))
	return true, nil
}

func (m *Manager) launchLocked(ctx context.Context, skipConfigCheck bool, care, verbosity int) error {
	m.setRunning(true)

	if err := m.configureLocked(verbosity); err != nil {
		m.setRunning(false)
		return err
	}
	if len(m.workflows) == 0 {
		m.setRunning(false)
		return &orcaerrors.ConfigError{Reason: "no workflows were configured"}
	}
	if !skipConfigCheck {
		if err := m.checkConfigurationLocked(care); err != nil {
			m.setRunning(false)
			return err
		}
	}

	if path := m.cfg.Production.LockFile; path != "" {
		lock, err := lifecycle.AcquireRunLock(path, os.Getpid())
		if err != nil {
			m.setRunning(false)
			return orcaerrors.Wrap(err, "acquiring production lock")
		}
		m.lock = lock
	}

	if m.loggers != nil {
		if err := m.loggers.Start(); err != nil {
			m.setRunning(false)
			m.releaseLock()
			return orcaerrors.Wrap(err, "starting logger")
		}
	}

	m.launched = true
	m.record(RunRecord{RunID: m.runID, ShortName: m.cfg.Production.ShortName, State: StateRunning, StartedAt: time.Now()})

	for i, wm := range m.workflows {
		listener := &statusRecorder{
			manager:  m,
			sequence: i + 1,
			log:      monitor.LogListener{Logger: m.logger},
		}
		mon, ok, err := wm.RunWorkflow(ctx, listener)
		if err != nil {
			m.abortLaunch(ctx)
			return err
		}
		if !ok {
			continue
		}
		m.monitors = append(m.monitors, mon)
		m.recordWorkflow(WorkflowRecord{Workflow: wm.Name(), Sequence: i + 1, JobID: mon.JobID(), State: string(lifecycle.Running)})
	}
	return nil
}

// abortLaunch stops workflows launched before a later one failed so that no
// job is left without a monitor.
func (m *Manager) abortLaunch(ctx context.Context) {
	for _, wm := range m.workflows {
		if err := wm.StopWorkflow(ctx, lifecycle.Now); err != nil {
			m.logger.Warn("failed to stop workflow after launch failure", slog.String(orcalog.WorkflowKey, wm.Name()), orcalog.Error(err))
		}
	}
	if m.loggers != nil {
		_ = m.loggers.Stop()
	}
	m.releaseLock()
}

func (m *Manager) releaseLock() {
	if m.lock == nil {
		return
	}
	if err := m.lock.Release(); err != nil {
		m.logger.Warn("failed to release production lock", slog.String("path", m.lock.Path()), orcalog.Error(err))
	}
}

func (m *Manager) startEndpoint() error {
	ctrl := m.cfg.Production.Control
	ep := NewEndpoint(EndpointConfig{
		Host:  ctrl.Host,
		Port:  ctrl.Port,
		RunID: m.runID,
		Stop: func(u lifecycle.Urgency) {
			m.StopProduction(context.Background(), u, m.cfg.Production.StopTimeout)
		},
		Running: m.IsRunning,
		Logger:  m.opts.Logger,
	})
	if err := ep.Start(); err != nil {
		return err
	}

	m.mu.Lock()
	m.endpoint = ep
	m.mu.Unlock()

	addr := ep.Addr()
	m.record(RunRecord{RunID: m.runID, State: StateRunning, ControlAddr: addr})
	if ctrl.EndpointFile != "" {
		if err := renameio.WriteFile(ctrl.EndpointFile, []byte(FormatEndpointFile(addr, m.runID)), 0o644); err != nil {
			m.logger.Warn("failed to write endpoint file", slog.String("path", ctrl.EndpointFile), orcalog.Error(err))
		}
	}
	return nil
}

// WaitForWorkflowsToRun blocks until the job of every launched workflow is
// running, checking workflows in declared order at their status check
// interval.
func (m *Manager) WaitForWorkflowsToRun(ctx context.Context) error {
	for _, wm := range m.snapshotWorkflows() {
		if wm.Monitor() == nil {
			continue
		}
		opts := scheduler.WaitOptions{Logger: orcalog.WithRunContext(m.logger, m.runID, wm.Name())}
		if wf, ok := m.cfg.Workflow(wm.Name()); ok {
			opts.Interval = wf.StatusCheckInterval
		}
		if err := wm.WaitUntilRunning(ctx, opts); err != nil {
			return orcaerrors.Wrapf(err, "waiting for workflow %s to run", wm.Name())
		}
	}
	m.logger.Info("every workflow is running")
	return nil
}

// ControlAddr returns the control endpoint's bound address, or "".
func (m *Manager) ControlAddr() string {
	m.mu.Lock()
	ep := m.endpoint
	m.mu.Unlock()
	if ep == nil {
		return ""
	}
	return ep.Addr()
}

// Endpoint returns the control endpoint once the production is launched.
func (m *Manager) Endpoint() *Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint
}

// IsRunning reports whether any workflow monitor has yet to finish. Once
// none has, the run-level running flag is cleared for good.
func (m *Manager) IsRunning() bool {
	m.stateMu.Lock()
	running := m.running
	m.stateMu.Unlock()
	if !running {
		return false
	}
	if m.anyMonitorActive() {
		return true
	}
	m.setRunning(false)
	return false
}

// IsDone reports whether a StopProduction completed.
func (m *Manager) IsDone() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.done
}

// StopProduction stops every workflow in declared order and waits up to
// timeout for all of them to finish. It returns false when the production
// was not running or did not finish in time; a timed out stop may be
// retried.
func (m *Manager) StopProduction(ctx context.Context, urgency lifecycle.Urgency, timeout time.Duration) bool {
	m.stopMu.Lock()
	defer m.stopMu.Unlock()

	if !m.IsRunning() {
		m.logger.Info("shutdown requested when production is not running")
		metrics.RecordProductionStop(metrics.StopSkipped)
		return false
	}
	if timeout <= 0 {
		timeout = m.cfg.Production.StopTimeout
	}

	m.logger.Info("shutting down production", slog.String(orcalog.UrgencyKey, urgency.String()), slog.Duration("timeout", timeout))
	m.record(RunRecord{RunID: m.runID, State: StateStopping, Urgency: urgency.String()})

	for _, wm := range m.snapshotWorkflows() {
		if err := wm.StopWorkflow(ctx, urgency); err != nil {
			m.logger.Warn("stop workflow failed", slog.String(orcalog.WorkflowKey, wm.Name()), orcalog.Error(err))
		}
	}

	poll := m.cfg.Production.StopPollInterval
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)
	running := m.anyMonitorActive()
	for running && time.Now().Before(deadline) {
		select {
		case <-time.After(poll):
		case <-ctx.Done():
			m.logger.Warn("shutdown wait cancelled", orcalog.Error(ctx.Err()))
			metrics.RecordProductionStop(metrics.StopTimedOut)
			return false
		}
		running = m.anyMonitorActive()
	}

	if running {
		m.logger.Warn("failed to shut down workflows within timeout", slog.Duration("timeout", timeout))
		metrics.RecordProductionStop(metrics.StopTimedOut)
		return false
	}

	m.stateMu.Lock()
	m.running = false
	m.done = true
	m.stateMu.Unlock()

	m.finish(ctx, StateStopped)
	metrics.RecordProductionStop(metrics.StopCompleted)
	m.logger.Info("production stopped")
	return true
}

// Wait blocks until no workflow is running, polling at the configured stop
// poll interval, then releases run resources.
func (m *Manager) Wait(ctx context.Context) error {
	poll := m.cfg.Production.StopPollInterval
	if poll <= 0 {
		poll = 200 * time.Millisecond
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for m.IsRunning() {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// An in-flight stop decides the final state.
	m.stopMu.Lock()
	state := StateFinished
	if m.IsDone() {
		state = StateStopped
	}
	m.stopMu.Unlock()
	m.finish(ctx, state)
	return nil
}

// finish stops the loggers, cleans up workflows and records the final state.
func (m *Manager) finish(ctx context.Context, state string) {
	m.finishOnce.Do(func() {
		if m.loggers != nil {
			if err := m.loggers.Stop(); err != nil {
				m.logger.Warn("failed to stop logger", orcalog.Error(err))
			}
		}
		for _, wm := range m.snapshotWorkflows() {
			if err := wm.CleanUp(ctx); err != nil {
				m.logger.Warn("workflow clean up failed", slog.String(orcalog.WorkflowKey, wm.Name()), orcalog.Error(err))
			}
		}
		m.releaseLock()
		m.record(RunRecord{RunID: m.runID, State: state, FinishedAt: time.Now()})
	})
}

// Close shuts the endpoint down and releases owned resources. It does not
// stop running workflows.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	if ep := m.Endpoint(); ep != nil {
		if err := ep.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		ep.WaitStops()
	}
	m.releaseLock()
	if m.ownStore && m.store != nil {
		if err := m.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if m.ownBus {
		m.bus.Close()
	}
	return orcaerrors.Join(errs...)
}

// WorkflowNames returns workflow names in declared order.
func (m *Manager) WorkflowNames() []string {
	if wms := m.snapshotWorkflows(); len(wms) > 0 {
		names := make([]string, len(wms))
		for i, wm := range wms {
			names[i] = wm.Name()
		}
		return names
	}
	names := make([]string, len(m.cfg.Workflows))
	for i, wf := range m.cfg.Workflows {
		names[i] = wf.Name
	}
	return names
}

// WorkflowManager returns the named manager, or nil before configuration
// or for an unknown name.
func (m *Manager) WorkflowManager(name string) *workflow.Manager {
	for _, wm := range m.snapshotWorkflows() {
		if wm.Name() == name {
			return wm
		}
	}
	return nil
}

// Store returns the state store, or nil when persistence is off.
func (m *Manager) Store() *Store {
	return m.store
}

// anyMonitorActive reports whether a polling goroutine is still live. A
// stopped monitor stays active until its current scheduler query returns.
func (m *Manager) anyMonitorActive() bool {
	for _, mon := range m.snapshotMonitors() {
		if !mon.IsDone() {
			return true
		}
	}
	return false
}

func (m *Manager) snapshotWorkflows() []*workflow.Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*workflow.Manager(nil), m.workflows...)
}

func (m *Manager) snapshotMonitors() []*monitor.Monitor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*monitor.Monitor(nil), m.monitors...)
}

func (m *Manager) setRunning(running bool) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.running = running
}

func (m *Manager) record(r RunRecord) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveRun(context.Background(), r); err != nil {
		m.logger.Warn("failed to record run state", orcalog.Error(err))
	}
}

func (m *Manager) recordWorkflow(w WorkflowRecord) {
	if m.store == nil {
		return
	}
	w.RunID = m.runID
	if err := m.store.SaveWorkflow(context.Background(), w); err != nil {
		m.logger.Warn("failed to record workflow state", slog.String(orcalog.WorkflowKey, w.Workflow), orcalog.Error(err))
	}
}

func firstField(s string) string {
	for i, r := range s {
		if r == ' ' || r == '\t' {
			return s[:i]
		}
	}
	return s
}
