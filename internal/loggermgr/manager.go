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

// Package loggermgr starts and stops the external per-run logger process.
//
// The logger listens on the event broker for a run's log messages and
// records them. Monitors wait for every logger to report end of life before
// they finish, so the production manager starts loggers before launching
// any workflow and stops them once the run is over.
package loggermgr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	orcalog "github.com/tombee/orca/internal/log"
)

// ErrNotStarted is returned by PID before Start.
var ErrNotStarted = errors.New("logger not started")

// Options configures a Manager.
type Options struct {
	// Command is the logger executable, optionally followed by leading
	// arguments ("python3 Logger.py").
	Command string

	Broker string
	RunID  string

	// DBHost, DBPort and DBName are passed only when DBHost is set.
	DBHost string
	DBPort int
	DBName string

	// LogPath receives the process's stdout and stderr. Empty discards them.
	LogPath string

	// StopTimeout bounds the wait for the process to exit after SIGKILL.
	// Default: 5s.
	StopTimeout time.Duration

	Logger *slog.Logger
}

// Manager owns one logger process.
type Manager struct {
	opts   Options
	logger *slog.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

// New creates a Manager. It does not start the process.
func New(opts Options) *Manager {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	return &Manager{
		opts:   opts,
		logger: orcalog.WithRunContext(orcalog.WithComponent(opts.Logger, "logger-manager"), opts.RunID, ""),
	}
}

// Args returns the arguments the logger is started with.
func (m *Manager) Args() []string {
	args := []string{"--broker", m.opts.Broker}
	if m.opts.DBHost == "" {
		return append(args, "--runid", m.opts.RunID)
	}
	return append(args,
		"--host", m.opts.DBHost,
		"--port", strconv.Itoa(m.opts.DBPort),
		"--runid", m.opts.RunID,
		"--database", m.opts.DBName,
	)
}

// Start launches the logger. Starting twice is a no-op.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != nil {
		return nil
	}

	fields := strings.Fields(m.opts.Command)
	if len(fields) == 0 {
		return fmt.Errorf("logger command is empty")
	}

	out := io.Discard
	var logFile *os.File
	if m.opts.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(m.opts.LogPath), 0o700); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(m.opts.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		out = f
	}

	cmd := exec.Command(fields[0], append(fields[1:], m.Args()...)...)
	cmd.Stdout = out
	cmd.Stderr = out
	// Own process group, so a terminal interrupt reaches orca first and
	// orca decides when the logger goes.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return fmt.Errorf("failed to start logger: %w", err)
	}

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		if logFile != nil {
			logFile.Close()
		}
		m.logger.Debug("logger exited", slog.Int("pid", cmd.Process.Pid), slog.Any("status", err))
		close(exited)
	}()

	m.cmd = cmd
	m.exited = exited
	m.logger.Info("logger started", slog.Int("pid", cmd.Process.Pid), slog.String("command", cmd.String()))
	return nil
}

// PID returns the logger's process id.
func (m *Manager) PID() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd == nil {
		return 0, ErrNotStarted
	}
	return m.cmd.Process.Pid, nil
}

// PIDs returns the pid of a running logger, or nothing.
func (m *Manager) PIDs() []int {
	if !m.Alive(context.Background()) {
		return nil
	}
	pid, err := m.PID()
	if err != nil {
		return nil
	}
	return []int{pid}
}

// Alive reports whether the logger process is still running.
func (m *Manager) Alive(ctx context.Context) bool {
	m.mu.Lock()
	cmd, exited := m.cmd, m.exited
	m.mu.Unlock()
	if cmd == nil {
		return false
	}
	select {
	case <-exited:
		return false
	default:
	}
	ok, err := process.PidExistsWithContext(ctx, int32(cmd.Process.Pid))
	return err == nil && ok
}

// Stop kills the logger and waits for it to be reaped. Stopping a logger
// that never started or already exited is not an error.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cmd, exited := m.cmd, m.exited
	m.mu.Unlock()
	if cmd == nil {
		return nil
	}

	select {
	case <-exited:
		return nil
	default:
	}

	if err := cmd.Process.Signal(syscall.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
		m.logger.Debug("tried to kill logger, but it did not exist", orcalog.Error(err))
	}

	select {
	case <-exited:
		m.logger.Info("logger stopped")
		return nil
	case <-time.After(m.opts.StopTimeout):
		return fmt.Errorf("logger %d did not exit within %v", cmd.Process.Pid, m.opts.StopTimeout)
	}
}
