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

// Package mock provides in-memory stand-ins for external collaborators.
package mock

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/tombee/orca/internal/scheduler"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// Condor is a scheduler.CommandRunner that emulates an HTCondor queue.
// Submissions add a cluster to the queue, condor_rm removes it, and
// condor_q lists whatever is left.
type Condor struct {
	mu      sync.Mutex
	next    int
	queue   map[int]string
	calls   []scheduler.Command
	removed []string

	// SubmitErr fails every submission command when set.
	SubmitErr error
	// QueryErr fails every condor_q when set.
	QueryErr error
	// KeepOnRemove leaves jobs queued after condor_rm, as a scheduler
	// that ignores removal would.
	KeepOnRemove bool
	// Garbled makes submissions print no cluster acknowledgment.
	Garbled bool
	// MaxSubmissions, when positive, fails every submission after that many.
	MaxSubmissions int
	// Hold, when set, blocks every condor_q until it is closed or the
	// caller's context ends.
	Hold chan struct{}

	submitted int
}

// NewCondor returns an empty queue whose first cluster id is first.
func NewCondor(first int) *Condor {
	return &Condor{next: first, queue: make(map[int]string)}
}

// Run implements scheduler.CommandRunner.
func (c *Condor) Run(ctx context.Context, cmd scheduler.Command) ([]string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, cmd)
	hold := c.Hold
	c.mu.Unlock()

	if cmd.Name == "condor_q" && hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch cmd.Name {
	case "condor_submit", "condor_submit_dag", "pegasus-plan":
		return c.submit(cmd)
	case "condor_q":
		if c.QueryErr != nil {
			return nil, c.QueryErr
		}
		return c.list(cmd), nil
	case "condor_rm":
		if len(cmd.Args) == 0 {
			return nil, &orcaerrors.AdapterUnavailableError{Command: cmd.Name, ExitCode: 1, Stderr: "no job id"}
		}
		id := cmd.Args[0]
		c.removed = append(c.removed, id)
		if n, err := strconv.Atoi(id); err == nil && !c.KeepOnRemove {
			delete(c.queue, n)
		}
		return []string{fmt.Sprintf("All jobs in cluster %s have been marked for removal", id)}, nil
	default:
		return nil, &orcaerrors.AdapterUnavailableError{Command: cmd.Name, ExitCode: 127, Stderr: "command not found"}
	}
}

func (c *Condor) submit(cmd scheduler.Command) ([]string, error) {
	if c.SubmitErr != nil {
		return nil, c.SubmitErr
	}
	if c.MaxSubmissions > 0 && c.submitted >= c.MaxSubmissions {
		return nil, &orcaerrors.AdapterUnavailableError{Command: cmd.Name, ExitCode: 1, Stderr: "ERROR: schedd refused submission"}
	}
	if c.Garbled {
		return []string{"Submitting job(s)", "ERROR: something odd happened"}, nil
	}
	c.submitted++
	id := c.next
	c.next++
	c.queue[id] = "R"

	out := []string{
		"Submitting job(s).",
		fmt.Sprintf("1 job(s) submitted to cluster %d.", id),
	}
	if cmd.Name == "pegasus-plan" {
		submitDir := filepath.Join(cmd.Dir, "submit")
		out = append([]string{"2024.01.01 00:00:00.000 INFO: planning"}, out...)
		out = append(out,
			"pegasus-status -l "+submitDir,
			"pegasus-remove "+submitDir,
		)
	}
	return out, nil
}

func (c *Condor) list(cmd scheduler.Command) []string {
	ids := make([]int, 0, len(c.queue))
	for id := range c.queue {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	if len(cmd.Args) > 0 && cmd.Args[0] == "-af" {
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = strconv.Itoa(id)
		}
		return out
	}

	out := []string{
		"-- Submitter: orca@localhost : <127.0.0.1:9618> : localhost",
		" ID      OWNER            SUBMITTED     RUN_TIME ST PRI SIZE CMD",
	}
	for _, id := range ids {
		out = append(out, fmt.Sprintf("%d.0   orca            1/01 00:00   0+00:00:00 %s  0   0.0  condor_dagman", id, c.queue[id]))
	}
	return append(out, fmt.Sprintf("%d jobs", len(ids)))
}

// Finish drops a cluster from the queue as if it completed.
func (c *Condor) Finish(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, err := strconv.Atoi(id); err == nil {
		delete(c.queue, n)
	}
}

// SetState changes the status code a cluster is listed with.
func (c *Condor) SetState(id, code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n, err := strconv.Atoi(id); err == nil {
		if _, ok := c.queue[n]; ok {
			c.queue[n] = code
		}
	}
}

// Queued returns the cluster ids still listed.
func (c *Condor) Queued() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int, 0, len(c.queue))
	for id := range c.queue {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.Itoa(id)
	}
	return out
}

// Removed returns the ids passed to condor_rm, in call order.
func (c *Condor) Removed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.removed...)
}

// Calls returns every command line run so far.
func (c *Condor) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	for i, cmd := range c.calls {
		out[i] = cmd.String()
	}
	return out
}

// Count returns how many times a command name was run.
func (c *Condor) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cmd := range c.calls {
		if cmd.Name == name {
			n++
		}
	}
	return n
}
