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
	"errors"
	"fmt"
	"log/slog"
	"time"

	orcalog "github.com/tombee/orca/internal/log"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// ErrJobNotRunning is wrapped by wait errors when a job reached a state it
// will not leave for Running on its own.
var ErrJobNotRunning = errors.New("job will not run")

// WaitOptions tune the wait helpers.
type WaitOptions struct {
	// Interval between queue queries. Default: 1s.
	Interval time.Duration
	// ProgressEvery controls how often a "still waiting" record is logged.
	// Default: 1m.
	ProgressEvery time.Duration
	Logger        *slog.Logger
}

func (o WaitOptions) withDefaults() WaitOptions {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = time.Minute
	}
	o.Logger = orcalog.OrDefault(o.Logger)
	return o
}

// WaitForJobToRun polls until jobID is Running. It returns the last state
// seen. Held, aborting, cancelled and vanished jobs end the wait with an
// error wrapping ErrJobNotRunning. Transient query failures are retried.
func WaitForJobToRun(ctx context.Context, a Adapter, jobID string, opts WaitOptions) (JobState, error) {
	opts = opts.withDefaults()
	start := time.Now()
	lastProgress := start

	for {
		state, err := a.QueryRunState(ctx, jobID)
		switch {
		case err != nil && !orcaerrors.IsTransient(err):
			return state, err
		case err != nil:
			opts.Logger.Warn("queue query failed, retrying", slog.String(orcalog.JobIDKey, jobID), orcalog.Error(err))
		case state == StateRunning:
			opts.Logger.Info("job is running", slog.String(orcalog.JobIDKey, jobID))
			return state, nil
		case state == StateHeld, state == StateAborting, state == StateCancelled, state == StateVanished:
			return state, fmt.Errorf("job %s is %s: %w", jobID, state, ErrJobNotRunning)
		}

		if time.Since(lastProgress) >= opts.ProgressEvery {
			lastProgress = time.Now()
			opts.Logger.Info("still waiting for job to run",
				slog.String(orcalog.JobIDKey, jobID),
				slog.Duration("waited", time.Since(start).Round(time.Second)),
			)
		}

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-time.After(opts.Interval):
		}
	}
}

// WaitForAllJobsToRun waits until every job in ids has been seen Running.
// Jobs are checked one at a time per round, so a job that runs briefly and
// finishes between rounds is reported as vanished.
func WaitForAllJobsToRun(ctx context.Context, a Adapter, ids []string, opts WaitOptions) error {
	opts = opts.withDefaults()
	pending := make(map[string]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}

	for len(pending) > 0 {
		for _, id := range ids {
			if !pending[id] {
				continue
			}
			state, err := a.QueryRunState(ctx, id)
			if err != nil {
				if !orcaerrors.IsTransient(err) {
					return err
				}
				opts.Logger.Warn("queue query failed, retrying", slog.String(orcalog.JobIDKey, id), orcalog.Error(err))
				continue
			}
			switch state {
			case StateRunning:
				delete(pending, id)
			case StateHeld, StateAborting, StateCancelled, StateVanished:
				return fmt.Errorf("job %s is %s: %w", id, state, ErrJobNotRunning)
			}
		}
		if len(pending) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(opts.Interval):
		}
	}
	return nil
}
