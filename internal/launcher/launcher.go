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

package launcher

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/tombee/orca/internal/config"
	"github.com/tombee/orca/internal/eventbus"
	orcalog "github.com/tombee/orca/internal/log"
	"github.com/tombee/orca/internal/metrics"
	"github.com/tombee/orca/internal/monitor"
	"github.com/tombee/orca/internal/scheduler"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// Launcher submits one prepared workflow.
type Launcher interface {
	// Launch submits the workflow and returns its started monitor. The
	// listener is registered before the monitor starts.
	Launch(ctx context.Context, listener monitor.StatusListener) (*monitor.Monitor, error)

	// CleanUp runs after the monitor is done. Calling it more than once is
	// harmless.
	CleanUp(ctx context.Context) error
}

// RunWaiter is implemented by launchers that can tell when a submitted job
// has started running.
type RunWaiter interface {
	WaitUntilRunning(ctx context.Context, jobID string, opts scheduler.WaitOptions) error
}

// Configurator checks one workflow's configuration and builds its Launcher.
type Configurator interface {
	// CheckConfiguration appends every problem found at the given care
	// level. Care 1 checks input files; care 2 also checks that scheduler
	// commands are on PATH.
	CheckConfiguration(care int, problems *orcaerrors.MultiIssueConfigurationError)

	// Configure builds the Launcher.
	Configure() (Launcher, error)
}

// PIDSource reports the pids of running logger processes.
type PIDSource interface {
	PIDs() []int
}

// Environment carries run-wide collaborators into every launcher.
type Environment struct {
	RunID string

	// Bus is handed to every monitor. Optional.
	Bus *eventbus.Bus

	// Loggers names the logger processes every monitor must hear from.
	// It is read at launch time, after the loggers have started. Optional.
	Loggers PIDSource

	// LoggerGrace bounds the wait for loggers after a job leaves the queue.
	LoggerGrace time.Duration

	// Runner overrides how scheduler commands are run. Nil uses os/exec.
	Runner scheduler.CommandRunner

	// LookPath resolves commands during care level 2 checks.
	// Nil uses exec.LookPath.
	LookPath func(file string) (string, error)

	Logger *slog.Logger
}

func (e Environment) lookPath(file string) (string, error) {
	if e.LookPath != nil {
		return e.LookPath(file)
	}
	return exec.LookPath(file)
}

func (e Environment) loggerPIDs() []int {
	if e.Loggers == nil {
		return nil
	}
	return e.Loggers.PIDs()
}

func (e Environment) schedulerOptions(wf config.WorkflowConfig, logger *slog.Logger) []scheduler.Option {
	opts := []scheduler.Option{
		scheduler.WithLogger(logger),
		scheduler.WithQueryRate(wf.QueryRate),
	}
	if e.Runner != nil {
		opts = append(opts, scheduler.WithRunner(e.Runner))
	}
	return opts
}

// resolve interprets p relative to dir unless it is absolute.
func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func checkFile(problems *orcaerrors.MultiIssueConfigurationError, workflow, label, path string) {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		problems.AddProblemf("workflow %q: %s %s: %v", workflow, label, path, err)
	case info.IsDir():
		problems.AddProblemf("workflow %q: %s %s is a directory", workflow, label, path)
	}
}

func checkDir(problems *orcaerrors.MultiIssueConfigurationError, workflow, path string) {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		problems.AddProblemf("workflow %q: local_scratch %s: %v", workflow, path, err)
	case !info.IsDir():
		problems.AddProblemf("workflow %q: local_scratch %s is not a directory", workflow, path)
	}
}

// batchLauncher submits a DAG or DAX through a batch-capable adapter.
type batchLauncher struct {
	plugin   string
	workflow config.WorkflowConfig
	env      Environment
	adapter  scheduler.Adapter
	spec     scheduler.BatchSpec
	logger   *slog.Logger

	cleanOnce sync.Once
}

func (l *batchLauncher) Launch(ctx context.Context, listener monitor.StatusListener) (*monitor.Monitor, error) {
	if listener == nil {
		listener = monitor.NopListener{}
	}
	l.logger.Info("submitting workflow", slog.String("file", l.spec.File), slog.String("dir", l.spec.Dir))

	jobID, info, err := l.adapter.SubmitBatch(ctx, l.spec)
	if err != nil {
		metrics.RecordLaunch(l.plugin, metrics.ResultError)
		listener.WorkflowFailed(l.workflow.Name, err)
		return nil, orcaerrors.Wrapf(err, "launching workflow %s", l.workflow.Name)
	}

	logger := orcalog.WithJob(l.logger, jobID)
	if info.StatusCommand != "" {
		logger.Info("status hint", slog.String("command", info.StatusCommand))
	}
	if info.RemoveCommand != "" {
		logger.Info("remove hint", slog.String("command", info.RemoveCommand))
	}

	mon, err := monitor.New(monitor.Config{
		RunID:                l.env.RunID,
		Workflow:             l.workflow.Name,
		JobID:                jobID,
		Jobs:                 l.adapter,
		Bus:                  l.env.Bus,
		Interval:             l.workflow.StatusCheckInterval,
		LoggerPIDs:           l.env.loggerPIDs(),
		LoggerGrace:          l.env.LoggerGrace,
		FailureWarnThreshold: l.workflow.FailureWarnThreshold,
		Listener:             listener,
		Logger:               l.env.Logger,
	})
	if err != nil {
		metrics.RecordLaunch(l.plugin, metrics.ResultError)
		listener.WorkflowFailed(l.workflow.Name, err)
		return nil, orcaerrors.Wrapf(err, "creating monitor for %s", l.workflow.Name)
	}
	if err := mon.Start(); err != nil {
		metrics.RecordLaunch(l.plugin, metrics.ResultError)
		return nil, err
	}

	metrics.RecordLaunch(l.plugin, metrics.ResultSuccess)
	logger.Info("workflow launched")
	return mon, nil
}

func (l *batchLauncher) WaitUntilRunning(ctx context.Context, jobID string, opts scheduler.WaitOptions) error {
	if opts.Logger == nil {
		opts.Logger = orcalog.WithJob(l.logger, jobID)
	}
	_, err := scheduler.WaitForJobToRun(ctx, l.adapter, jobID, opts)
	return err
}

func (l *batchLauncher) CleanUp(ctx context.Context) error {
	l.cleanOnce.Do(func() {
		l.logger.Debug("clean up")
	})
	return nil
}
