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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	orcaerrors "github.com/tombee/orca/pkg/errors"
)

func newTracedRunner(t *testing.T) (*ExecRunner, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return &ExecRunner{tracer: tp.Tracer("test")}, exporter
}

func TestExecRunner_Output(t *testing.T) {
	r, exporter := newTracedRunner(t)

	out, err := r.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo 'Submitting job(s).'; echo; echo '1 job(s) submitted to cluster 42.' >&2"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Submitting job(s).", "1 job(s) submitted to cluster 42."}, out)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "scheduler.sh", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

func TestExecRunner_ExitStatus(t *testing.T) {
	r, exporter := newTracedRunner(t)

	_, err := r.Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "echo 'no such job' >&2; exit 3"}})
	var unavailable *orcaerrors.AdapterUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "sh", unavailable.Command)
	assert.Equal(t, 3, unavailable.ExitCode)
	assert.Equal(t, "no such job", unavailable.Stderr)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r, _ := newTracedRunner(t)

	_, err := r.Run(context.Background(), Command{Name: "orca-definitely-not-installed"})
	var unavailable *orcaerrors.AdapterUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, -1, unavailable.ExitCode)
	assert.True(t, orcaerrors.IsTransient(err))
}

func TestCommand_String(t *testing.T) {
	assert.Equal(t, "condor_q", Command{Name: "condor_q"}.String())
	assert.Equal(t, "condor_rm 42", Command{Name: "condor_rm", Args: []string{"42"}}.String())
}
