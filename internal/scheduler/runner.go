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
	"bufio"
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tombee/orca/internal/metrics"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

const tracerName = "github.com/tombee/orca/internal/scheduler"

// Command is one scheduler process invocation.
type Command struct {
	Dir  string
	Name string
	Args []string
}

// String renders the command line for logs and errors.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// CommandRunner runs a command and returns its output split into trimmed,
// non-empty lines: stdout first, then stderr.
type CommandRunner interface {
	Run(ctx context.Context, cmd Command) ([]string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	tracer trace.Tracer
}

// NewExecRunner returns a runner that traces each invocation with the
// global tracer provider.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{tracer: otel.Tracer(tracerName)}
}

// Run implements CommandRunner. A command that cannot start or exits
// non-zero returns *errors.AdapterUnavailableError along with whatever
// lines it printed.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) ([]string, error) {
	tracer := r.tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	ctx, span := tracer.Start(ctx, "scheduler."+cmd.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("scheduler.command", cmd.String()),
			attribute.String("scheduler.dir", cmd.Dir),
		),
	)
	defer span.End()

	start := time.Now()
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	runErr := c.Run()
	lines := append(splitLines(stdout.Bytes()), splitLines(stderr.Bytes())...)
	span.SetAttributes(attribute.Int("scheduler.output_lines", len(lines)))

	if runErr != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		err := &orcaerrors.AdapterUnavailableError{
			Command:  cmd.Name,
			ExitCode: exitCode,
			Stderr:   strings.TrimSpace(stderr.String()),
			Cause:    runErr,
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordSchedulerCommand(cmd.Name, metrics.ResultError, time.Since(start))
		return lines, err
	}

	span.SetStatus(codes.Ok, "")
	metrics.RecordSchedulerCommand(cmd.Name, metrics.ResultSuccess, time.Since(start))
	return lines, nil
}

func splitLines(data []byte) []string {
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
