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

package run

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tombee/orca/internal/commands/shared"
	"github.com/tombee/orca/internal/config"
	"github.com/tombee/orca/internal/lifecycle"
	orcalog "github.com/tombee/orca/internal/log"
	"github.com/tombee/orca/internal/production"
	"github.com/tombee/orca/internal/scheduler"
	"github.com/tombee/orca/internal/telemetry"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// closeTimeout bounds endpoint and telemetry shutdown after the run.
const closeTimeout = 10 * time.Second

type runOptions struct {
	configPath   string
	runID        string
	skipCheck    bool
	checkOnly    bool
	endpointFile string
	metricsAddr  string
	waitRunning  time.Duration
	verbosity    int
	json         bool

	stdout io.Writer
	stderr io.Writer

	// test hooks
	runner   scheduler.CommandRunner
	lookPath func(string) (string, error)
	signals  []os.Signal
	started  func(*production.Manager)
}

// Result summarizes a finished production for --json output.
type Result struct {
	RunID       string   `json:"run_id"`
	State       string   `json:"state"`
	ControlAddr string   `json:"control_addr,omitempty"`
	Workflows   []string `json:"workflows"`
}

func execute(ctx context.Context, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.stdout == nil {
		opts.stdout = os.Stdout
	}
	if opts.stderr == nil {
		opts.stderr = os.Stderr
	}
	if opts.configPath == "" {
		return shared.NewConfigError("no production config given", fmt.Errorf("pass --config or set ORCA_CONFIG"))
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return shared.NewConfigError("failed to load production config", err)
	}
	if opts.endpointFile != "" {
		cfg.Production.Control.EndpointFile = opts.endpointFile
	}
	if opts.metricsAddr != "" {
		cfg.Telemetry.MetricsAddr = opts.metricsAddr
	}

	logger, level := shared.NewLogger(opts.stderr)
	version, _, _ := shared.GetVersion()

	tel, err := telemetry.Setup(ctx, telemetry.Options{
		Config:    cfg.Telemetry,
		Version:   version,
		SetGlobal: true,
		Logger:    logger,
	})
	if err != nil {
		return shared.NewConfigError("failed to set up telemetry", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", orcalog.Error(err))
		}
	}()
	if cfg.Telemetry.MetricsAddr != "" {
		addr, err := tel.ServeMetrics(cfg.Telemetry.MetricsAddr)
		if err != nil {
			return shared.NewExecutionError("failed to serve metrics", err)
		}
		logger.Info("serving metrics", slog.String("addr", addr))
	}

	mgr, err := production.New(ctx, production.Options{
		Config:   cfg,
		RunID:    opts.runID,
		Runner:   opts.runner,
		LookPath: opts.lookPath,
		Level:    level,
		Logger:   logger,
	})
	if err != nil {
		return shared.NewExecutionError("failed to create production", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if err := mgr.Close(closeCtx); err != nil {
			logger.Warn("production close failed", orcalog.Error(err))
		}
	}()

	if opts.checkOnly {
		return check(mgr, cfg, opts)
	}

	launched, err := mgr.RunProduction(ctx, opts.skipCheck, opts.verbosity)
	if err != nil {
		var multi *orcaerrors.MultiIssueConfigurationError
		if orcaerrors.As(err, &multi) {
			return shared.NewConfigError("production configuration is invalid", err)
		}
		return shared.NewExecutionError("production failed to launch", err)
	}
	if !launched {
		return shared.NewExecutionError("production was already launched", nil)
	}
	if opts.started != nil {
		opts.started(mgr)
	}
	if !opts.json && !shared.GetQuiet() {
		fmt.Fprintln(opts.stdout, shared.RenderOK(fmt.Sprintf("production %s running, control endpoint %s", mgr.RunID(), mgr.ControlAddr())))
	}

	if opts.waitRunning > 0 {
		if err := waitForRunning(ctx, mgr, opts.waitRunning, logger); err != nil {
			return err
		}
		if !opts.json && !shared.GetQuiet() {
			fmt.Fprintln(opts.stdout, shared.RenderOK("every workflow is running"))
		}
	}

	timedOut, err := supervise(ctx, mgr, logger, opts.signals)
	if err != nil {
		return shared.NewExecutionError("production supervision failed", err)
	}
	if timedOut {
		return shared.NewTimeoutError("production did not stop in time", &orcaerrors.TimeoutError{
			Operation: "stop production",
			Duration:  cfg.Production.StopTimeout,
		})
	}

	state := production.StateFinished
	if mgr.IsDone() {
		state = production.StateStopped
	}
	return report(opts, Result{
		RunID:       mgr.RunID(),
		State:       state,
		ControlAddr: mgr.ControlAddr(),
		Workflows:   mgr.WorkflowNames(),
	})
}

// supervise waits for the production to end. A termination signal stops it
// at level now; if that stop times out the wait is abandoned.
func supervise(ctx context.Context, mgr *production.Manager, logger *slog.Logger, signals []os.Signal) (bool, error) {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	sigCtx, stopSignals := signal.NotifyContext(ctx, signals...)
	defer stopSignals()

	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()

	var timedOut atomic.Bool
	g := new(errgroup.Group)
	g.Go(func() error {
		defer stopSignals()
		err := mgr.Wait(waitCtx)
		if timedOut.Load() {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-sigCtx.Done()
		if ctx.Err() != nil || !mgr.IsRunning() {
			return nil
		}
		logger.Warn("signal received, stopping production", slog.String(orcalog.UrgencyKey, lifecycle.Now.String()))
		if !mgr.StopProduction(ctx, lifecycle.Now, 0) {
			timedOut.Store(true)
			cancelWait()
		}
		return nil
	})

	err := g.Wait()
	return timedOut.Load(), err
}

// waitForRunning gives the workflows limit to reach the running state. A
// production that misses it is stopped at level now.
func waitForRunning(ctx context.Context, mgr *production.Manager, limit time.Duration, logger *slog.Logger) error {
	waitCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	err := mgr.WaitForWorkflowsToRun(waitCtx)
	if err == nil {
		return nil
	}
	logger.Error("workflows did not start running, stopping production", orcalog.Error(err))
	mgr.StopProduction(context.Background(), lifecycle.Now, 0)

	if orcaerrors.Is(err, context.DeadlineExceeded) {
		return shared.NewTimeoutError("workflows did not start running in time", &orcaerrors.TimeoutError{
			Operation: "wait for workflows to run",
			Duration:  limit,
			Cause:     err,
		})
	}
	return shared.NewExecutionError("workflow will not run", err)
}

func check(mgr *production.Manager, cfg *config.Config, opts runOptions) error {
	if err := mgr.Configure(opts.verbosity); err != nil {
		return shared.NewConfigError("failed to configure production", err)
	}
	if err := mgr.CheckConfiguration(cfg.Production.CheckCare()); err != nil {
		return shared.NewConfigError("configuration check failed", err)
	}
	return report(opts, Result{
		RunID:     mgr.RunID(),
		State:     production.StateConfigured,
		Workflows: mgr.WorkflowNames(),
	})
}

func report(opts runOptions, res Result) error {
	if opts.json {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Fprintln(opts.stdout, string(data))
		return nil
	}
	if shared.GetQuiet() {
		return nil
	}
	fmt.Fprintln(opts.stdout, shared.RenderOK(fmt.Sprintf("production %s %s (%d workflows)", res.RunID, res.State, len(res.Workflows))))
	return nil
}
