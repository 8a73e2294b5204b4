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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/orca/internal/client"
	"github.com/tombee/orca/internal/commands/shared"
	"github.com/tombee/orca/internal/lifecycle"
	"github.com/tombee/orca/internal/production"
	"github.com/tombee/orca/internal/testing/mock"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ORCA_RUN_ID", "ORCA_STATE_DB", "ORCA_CONTROL_HOST", "ORCA_CONTROL_PORT", "ORCA_STOP_TIMEOUT", "ORCA_METRICS_ADDR", "OTEL_EXPORTER_OTLP_ENDPOINT", "ORCA_LOG_LEVEL", "ORCA_DEBUG"} {
		t.Setenv(k, "")
	}
}

// writeProduction writes a two-workflow condor production into a temp dir
// and returns the config path.
func writeProduction(t *testing.T, extra string) string {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wf.dag"), []byte("JOB a a.sub\n"), 0o600))

	content := fmt.Sprintf(`production:
  short_name: nightly
  run_id: run-9
  stop_timeout: 2s
  stop_poll_interval: 10ms
  control:
    host: 127.0.0.1
    port: 0
workflows:
  - name: calexp
    plugin: condor
    local_scratch: %[1]s
    status_check_interval: 10ms
    condor:
      dag_file: wf.dag
  - name: coadd
    plugin: condor
    local_scratch: %[1]s
    status_check_interval: 10ms
    condor:
      dag_file: wf.dag
%[2]s`, dir, extra)

	path := filepath.Join(dir, "production.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewCommand_Flags(t *testing.T) {
	cmd := NewCommand()
	assert.Equal(t, "run", cmd.Use)
	for _, name := range []string{"run-id", "skip-config-check", "check", "endpoint-file", "metrics-addr", "wait-running"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag %s", name)
	}
}

func TestExecute_MissingConfig(t *testing.T) {
	err := execute(context.Background(), runOptions{stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}})
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))
}

func TestExecute_InvalidConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "production.yaml")
	require.NoError(t, os.WriteFile(path, []byte("production:\n  short_name: x\nworkflows: []\n"), 0o600))

	err := execute(context.Background(), runOptions{configPath: path, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}})
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))
	assert.Contains(t, err.Error(), "at least one workflow is required")
}

func TestExecute_CheckOnly(t *testing.T) {
	path := writeProduction(t, "")
	queue := mock.NewCondor(1)
	var out bytes.Buffer

	err := execute(context.Background(), runOptions{
		configPath: path,
		checkOnly:  true,
		json:       true,
		runner:     queue,
		stdout:     &out,
		stderr:     &bytes.Buffer{},
	})
	require.NoError(t, err)

	var res Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "run-9", res.RunID)
	assert.Equal(t, production.StateConfigured, res.State)
	assert.Equal(t, []string{"calexp", "coadd"}, res.Workflows)
	assert.Zero(t, queue.Count("condor_submit_dag"), "check must not submit")
}

func TestExecute_CheckOnlyReportsProblems(t *testing.T) {
	path := writeProduction(t, "")
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(path), "wf.dag")))

	err := execute(context.Background(), runOptions{
		configPath: path,
		checkOnly:  true,
		runner:     mock.NewCondor(1),
		stdout:     &bytes.Buffer{},
		stderr:     &bytes.Buffer{},
	})
	require.Error(t, err)
	assert.Equal(t, shared.ExitInvalidConfig, shared.ExitCode(err))
}

func TestExecute_RunsUntilJobsLeaveQueue(t *testing.T) {
	path := writeProduction(t, "")
	queue := mock.NewCondor(1)
	endpointFile := filepath.Join(t.TempDir(), "endpoint")
	var out bytes.Buffer

	err := execute(context.Background(), runOptions{
		configPath:   path,
		endpointFile: endpointFile,
		json:         true,
		runner:       queue,
		stdout:       &out,
		stderr:       &bytes.Buffer{},
		started: func(m *production.Manager) {
			addr, runID, err := production.ReadEndpointFile(endpointFile)
			assert.NoError(t, err)
			assert.Equal(t, m.ControlAddr(), addr)
			assert.Equal(t, "run-9", runID)

			go func() {
				queue.Finish("1")
				queue.Finish("2")
			}()
		},
	})
	require.NoError(t, err)

	var res Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, production.StateFinished, res.State)
	assert.NotEmpty(t, res.ControlAddr)
}

func TestExecute_StoppedThroughEndpoint(t *testing.T) {
	path := writeProduction(t, "")
	queue := mock.NewCondor(1)
	var out bytes.Buffer

	err := execute(context.Background(), runOptions{
		configPath: path,
		runID:      "flag-run",
		json:       true,
		runner:     queue,
		stdout:     &out,
		stderr:     &bytes.Buffer{},
		started: func(m *production.Manager) {
			c, err := client.New(m.ControlAddr(), client.WithTimeout(2*time.Second))
			require.NoError(t, err)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				assert.NoError(t, c.Stop(ctx, "flag-run", lifecycle.Now))
			}()
		},
	})
	require.NoError(t, err)

	var res Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "flag-run", res.RunID)
	assert.Equal(t, production.StateStopped, res.State)
	assert.ElementsMatch(t, []string{"1", "2"}, queue.Removed())
}

func TestExecute_LaunchFailure(t *testing.T) {
	path := writeProduction(t, "")
	queue := mock.NewCondor(1)
	queue.MaxSubmissions = 1
	var errOut bytes.Buffer

	err := execute(context.Background(), runOptions{
		configPath: path,
		runner:     queue,
		stdout:     &bytes.Buffer{},
		stderr:     &errOut,
	})
	require.Error(t, err)
	assert.Equal(t, shared.ExitFailed, shared.ExitCode(err))
	assert.True(t, strings.Contains(err.Error(), "production failed to launch"), err.Error())
	assert.Equal(t, []string{"1"}, queue.Removed())
}

func TestExecute_WaitRunning(t *testing.T) {
	tests := []struct {
		name     string
		state    string
		wantCode int
		wantMsg  string
	}{
		{name: "running", state: "R"},
		{name: "held", state: "H", wantCode: shared.ExitFailed, wantMsg: "workflow will not run"},
		{name: "idle past deadline", state: "I", wantCode: shared.ExitTimeout, wantMsg: "did not start running in time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeProduction(t, "")
			queue := mock.NewCondor(1)
			var out bytes.Buffer

			err := execute(context.Background(), runOptions{
				configPath:  path,
				waitRunning: 200 * time.Millisecond,
				json:        true,
				runner:      queue,
				stdout:      &out,
				stderr:      &bytes.Buffer{},
				started: func(m *production.Manager) {
					queue.SetState("1", tt.state)
					if tt.state == "R" {
						go func() {
							time.Sleep(50 * time.Millisecond)
							queue.Finish("1")
							queue.Finish("2")
						}()
					}
				},
			})

			if tt.wantCode == 0 {
				require.NoError(t, err)
				var res Result
				require.NoError(t, json.Unmarshal(out.Bytes(), &res))
				assert.Equal(t, production.StateFinished, res.State)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, shared.ExitCode(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.ElementsMatch(t, []string{"1", "2"}, queue.Removed())
		})
	}
}
