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

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	orcalog "github.com/tombee/orca/internal/log"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// Option configures a Condor or Pegasus adapter.
type Option func(*Condor)

// WithRunner replaces the process runner.
func WithRunner(r CommandRunner) Option {
	return func(c *Condor) {
		c.runner = r
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Condor) {
		c.logger = logger
	}
}

// WithQueryRate caps condor_q invocations per second. Zero or less means
// unlimited.
func WithQueryRate(perSecond float64) Option {
	return func(c *Condor) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// Condor drives HTCondor through its command-line tools.
type Condor struct {
	runner  CommandRunner
	logger  *slog.Logger
	limiter *rate.Limiter

	mu   sync.Mutex
	seen map[string]bool
}

// NewCondor creates an HTCondor adapter.
func NewCondor(opts ...Option) *Condor {
	return newCondor("condor", opts)
}

func newCondor(component string, opts []Option) *Condor {
	c := &Condor{
		runner:  NewExecRunner(),
		limiter: rate.NewLimiter(rate.Inf, 0),
		seen:    make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = orcalog.WithComponent(c.logger, component)
	return c
}

// Submit runs condor_submit on a submit description file.
func (c *Condor) Submit(ctx context.Context, spec JobSpec) (string, error) {
	return c.submit(ctx, Command{Dir: spec.Dir, Name: "condor_submit", Args: []string{spec.File}})
}

// SubmitBatch runs condor_submit_dag on a DAG file. HTCondor prints no
// auxiliary hints, so BatchInfo is empty.
func (c *Condor) SubmitBatch(ctx context.Context, spec BatchSpec) (string, BatchInfo, error) {
	id, err := c.submit(ctx, Command{Dir: spec.Dir, Name: "condor_submit_dag", Args: []string{spec.File}})
	return id, BatchInfo{}, err
}

func (c *Condor) submit(ctx context.Context, cmd Command) (string, error) {
	lines, err := c.runner.Run(ctx, cmd)
	for _, line := range lines {
		orcalog.Trace(c.logger, "submit output", slog.String("line", line))
	}
	if err != nil {
		return "", err
	}

	id, ok := ParseClusterID(lines)
	if !ok {
		return "", &orcaerrors.SubmissionParseError{Command: cmd.String(), Output: lines}
	}
	c.logger.Info("submitted job", slog.String(orcalog.JobIDKey, id), slog.String("command", cmd.String()))
	return id, nil
}

// QueryRunState lists the queue and classifies the job's row. A job that has
// never been listed reports StateUnknown; one that was listed before and is
// now missing reports StateVanished.
func (c *Condor) QueryRunState(ctx context.Context, jobID string) (JobState, error) {
	lines, err := c.query(ctx, Command{Name: "condor_q"})
	if err != nil {
		return StateUnknown, err
	}

	state, present := classify(lines, jobID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if present {
		c.seen[jobID] = true
		return state, nil
	}
	if c.seen[jobID] {
		return StateVanished, nil
	}
	return StateUnknown, nil
}

// IsAlive lists cluster ids and reports whether jobID is among them.
func (c *Condor) IsAlive(ctx context.Context, jobID string) (bool, error) {
	lines, err := c.query(ctx, Command{Name: "condor_q", Args: []string{"-af", "ClusterId"}})
	if err != nil {
		return false, err
	}
	alive := containsCluster(lines, jobID)
	if alive {
		c.mu.Lock()
		c.seen[jobID] = true
		c.mu.Unlock()
	}
	return alive, nil
}

// Kill runs condor_rm. Removal is asynchronous on the scheduler side.
func (c *Condor) Kill(ctx context.Context, jobID string) error {
	c.logger.Info("removing job", slog.String(orcalog.JobIDKey, jobID))
	_, err := c.runner.Run(ctx, Command{Name: "condor_rm", Args: []string{jobID}})
	return err
}

func (c *Condor) query(ctx context.Context, cmd Command) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for %s rate limit: %w", cmd.Name, err)
	}
	return c.runner.Run(ctx, cmd)
}
