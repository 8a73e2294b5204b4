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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/tombee/orca/internal/eventbus"
	"github.com/tombee/orca/internal/lifecycle"
	orcalog "github.com/tombee/orca/internal/log"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// JobController is the part of a scheduler adapter a monitor needs.
type JobController interface {
	IsAlive(ctx context.Context, jobID string) (bool, error)
	Kill(ctx context.Context, jobID string) error
}

// ErrAlreadyStarted is returned by Start on a second call.
var ErrAlreadyStarted = errors.New("monitor already started")

// Config configures a Monitor.
type Config struct {
	RunID    string
	Workflow string
	JobID    string

	// Jobs answers liveness queries and kills. Required.
	Jobs JobController

	// Bus carries logger status and shutdown commands. Optional; without it
	// the monitor relies on scheduler polling alone.
	Bus *eventbus.Bus

	// Interval is the status check period. Default: 5s.
	Interval time.Duration

	// ReceiveTimeout bounds each wait for a bus event. Default: the smaller
	// of Interval and 1s.
	ReceiveTimeout time.Duration

	// LoggerPIDs must all report end of life before the monitor finishes.
	LoggerPIDs []int

	// LoggerGrace bounds the wait for loggers once the job is gone.
	// Default: 30s.
	LoggerGrace time.Duration

	// FailureWarnThreshold is how many consecutive transient scheduler
	// failures pass between escalation records. Default: 10.
	FailureWarnThreshold int

	Listener StatusListener
	Logger   *slog.Logger
	Metrics  *MetricsCollector
}

// Monitor watches one external job.
type Monitor struct {
	cfg    Config
	logger *slog.Logger

	flag lifecycle.Flag

	mu      sync.Mutex
	loggers map[int]struct{}

	lastLoggerOnce sync.Once
	wake           chan struct{}
	done           chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	sub    *eventbus.Subscription

	// Loop-local state; only the monitor goroutine touches these.
	consecutiveFailures int
	goneSince           time.Time
	lastPoll            time.Time
	failure             error
}

// New creates a Monitor. It does not start polling.
func New(cfg Config) (*Monitor, error) {
	if cfg.Jobs == nil {
		return nil, fmt.Errorf("job controller is required")
	}
	if cfg.JobID == "" {
		return nil, fmt.Errorf("job id is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.ReceiveTimeout <= 0 {
		cfg.ReceiveTimeout = min(cfg.Interval, time.Second)
	}
	if cfg.LoggerGrace <= 0 {
		cfg.LoggerGrace = 30 * time.Second
	}
	if cfg.FailureWarnThreshold <= 0 {
		cfg.FailureWarnThreshold = 10
	}
	if cfg.Listener == nil {
		cfg.Listener = NopListener{}
	}
	if cfg.Metrics == nil {
		if mc, err := NewMetricsCollector(otel.GetMeterProvider()); err == nil {
			cfg.Metrics = mc
		}
	}

	logger := orcalog.WithRunContext(orcalog.WithComponent(cfg.Logger, "monitor"), cfg.RunID, cfg.Workflow)
	logger = orcalog.WithJob(logger, cfg.JobID)

	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		cfg:     cfg,
		logger:  logger,
		loggers: make(map[int]struct{}, len(cfg.LoggerPIDs)),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, pid := range cfg.LoggerPIDs {
		m.loggers[pid] = struct{}{}
	}
	return m, nil
}

// JobID returns the external job id this monitor owns.
func (m *Monitor) JobID() string {
	return m.cfg.JobID
}

// Workflow returns the workflow name.
func (m *Monitor) Workflow() string {
	return m.cfg.Workflow
}

// Start launches the polling goroutine and marks the monitor running.
func (m *Monitor) Start() error {
	if !m.flag.Start() {
		return ErrAlreadyStarted
	}
	if m.cfg.Bus != nil {
		m.sub = m.cfg.Bus.Subscribe(eventbus.Selector{
			RunID: m.cfg.RunID,
			Types: []eventbus.EventType{eventbus.TypeLoggerStatus, eventbus.TypeShutdownCommand},
		})
	}
	m.cfg.Metrics.MonitorStarted()
	m.logger.Info("monitor started", slog.Duration("interval", m.cfg.Interval))
	m.cfg.Listener.WorkflowStarted(m.cfg.Workflow)

	go m.run()
	return nil
}

// Stop kills the job, sends the last logger event and clears the running
// flag. It does not wait for the polling goroutine; Done and Wait do.
func (m *Monitor) Stop(ctx context.Context, urgency lifecycle.Urgency) error {
	m.logger.Info("stopping workflow", slog.String(orcalog.UrgencyKey, urgency.String()))

	err := m.cfg.Jobs.Kill(ctx, m.cfg.JobID)
	if err != nil {
		m.logger.Warn("kill request failed", orcalog.Error(err))
	}
	m.SendLastLoggerEvent()
	m.flag.Deactivate()
	m.signalWake()
	return err
}

// IsRunning reports the running half of the lifecycle flag.
func (m *Monitor) IsRunning() bool {
	return m.flag.Running()
}

// IsDone reports whether the polling loop has finished.
func (m *Monitor) IsDone() bool {
	return m.flag.Done()
}

// State maps the lifecycle flag onto a RunState.
func (m *Monitor) State() lifecycle.RunState {
	return m.flag.State()
}

// Done is closed once the polling goroutine exits.
func (m *Monitor) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the polling goroutine exits or ctx ends.
func (m *Monitor) Wait(ctx context.Context) error {
	select {
	case <-m.done:
		return m.failure
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterLogger adds a logger pid that must report end of life.
func (m *Monitor) RegisterLogger(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loggers[pid] = struct{}{}
}

// PendingLoggers returns how many registered loggers have not reported.
func (m *Monitor) PendingLoggers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loggers)
}

// SendLastLoggerEvent tells the run's loggers to finish. Only the first call
// publishes anything.
func (m *Monitor) SendLastLoggerEvent() {
	m.lastLoggerOnce.Do(func() {
		m.logger.Info("sending last logger event")
		if m.cfg.Bus != nil {
			m.cfg.Bus.Publish(eventbus.NewLastLoggerEvent(m.cfg.RunID))
		}
	})
}

func (m *Monitor) signalWake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Monitor) run() {
	defer m.finish()

	sleep := m.cfg.Interval
	for {
		if sleep > 0 && !m.pause(sleep) {
			return
		}
		if !m.flag.Running() {
			return
		}

		active := false
		if m.sub != nil {
			if e, ok := m.receive(); ok {
				active = true
				m.handleEvent(e)
			}
			// receive may have taken Stop's wake-up.
			if !m.flag.Running() {
				return
			}
		}

		if active {
			sleep = 0
		} else {
			sleep = m.cfg.Interval
		}

		// While events stream in the loop spins fast; keep scheduler
		// queries on the regular cadence.
		if !m.lastPoll.IsZero() && time.Since(m.lastPoll) < m.cfg.Interval && active {
			continue
		}
		if m.checkJob() {
			return
		}
	}
}

// pause waits d, returning early on Stop. It returns false once the monitor
// context is cancelled.
func (m *Monitor) pause(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-m.wake:
	case <-m.ctx.Done():
		return false
	}
	return true
}

func (m *Monitor) receive() (eventbus.Event, bool) {
	timer := time.NewTimer(m.cfg.ReceiveTimeout)
	defer timer.Stop()
	select {
	case e, ok := <-m.sub.C():
		return e, ok
	case <-timer.C:
	case <-m.wake:
	}
	return eventbus.Event{}, false
}

func (m *Monitor) handleEvent(e eventbus.Event) {
	m.cfg.Metrics.RecordEvent(m.ctx, m.cfg.Workflow, string(e.Type))

	switch e.Type {
	case eventbus.TypeShutdownCommand:
		m.logger.Info("shutdown command received", slog.String(orcalog.UrgencyKey, e.Urgency().String()))
		m.flag.Deactivate()

	case eventbus.TypeLoggerStatus:
		m.mu.Lock()
		if pid, ok := e.LoggerPID(); ok {
			delete(m.loggers, pid)
			m.logger.Debug("logger reported", slog.Int("logger_pid", pid), slog.String("status", e.Properties[eventbus.PropLoggerStatus]))
		}
		remaining := len(m.loggers)
		m.mu.Unlock()

		if remaining == 0 {
			m.logger.Info("all loggers finished")
			m.flag.Deactivate()
		}
	}
}

// checkJob polls the scheduler and reports whether the loop should end.
func (m *Monitor) checkJob() bool {
	start := time.Now()
	m.lastPoll = start
	alive, err := m.cfg.Jobs.IsAlive(m.ctx, m.cfg.JobID)
	elapsed := time.Since(start)

	if err != nil {
		m.cfg.Metrics.RecordPoll(m.ctx, m.cfg.Workflow, "error", elapsed)
		if m.ctx.Err() != nil {
			return true
		}
		if !orcaerrors.IsTransient(err) {
			m.logger.Error("scheduler query failed fatally", orcalog.Error(err))
			m.failure = err
			return true
		}
		m.consecutiveFailures++
		if m.consecutiveFailures%m.cfg.FailureWarnThreshold == 0 {
			m.logger.Error("scheduler unavailable, still assuming job is alive",
				slog.Int("consecutive_failures", m.consecutiveFailures), orcalog.Error(err))
		} else {
			m.logger.Warn("scheduler query failed, assuming job is alive", orcalog.Error(err))
		}
		return false
	}
	m.consecutiveFailures = 0

	if alive {
		m.cfg.Metrics.RecordPoll(m.ctx, m.cfg.Workflow, "alive", elapsed)
		return false
	}
	m.cfg.Metrics.RecordPoll(m.ctx, m.cfg.Workflow, "gone", elapsed)

	m.SendLastLoggerEvent()
	pending := m.PendingLoggers()
	if pending == 0 {
		m.logger.Info("job no longer in queue")
		return true
	}

	if m.goneSince.IsZero() {
		m.goneSince = time.Now()
		m.cfg.Listener.WorkflowWaiting(m.cfg.Workflow)
		m.logger.Info("job no longer in queue, waiting for loggers", slog.Int("pending_loggers", pending))
		return false
	}
	if time.Since(m.goneSince) >= m.cfg.LoggerGrace {
		m.logger.Warn("loggers did not report in time", slog.Int("pending_loggers", pending),
			slog.Duration("grace", m.cfg.LoggerGrace))
		return true
	}
	return false
}

func (m *Monitor) finish() {
	m.flag.Finish()
	if m.sub != nil {
		m.sub.Close()
	}
	m.cancel()
	m.cfg.Metrics.MonitorStopped()

	if m.failure != nil {
		m.cfg.Listener.WorkflowFailed(m.cfg.Workflow, m.failure)
	} else {
		m.cfg.Listener.WorkflowShutdown(m.cfg.Workflow)
	}
	m.logger.Info("monitor finished")
	close(m.done)
}
