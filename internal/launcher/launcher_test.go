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
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/orca/internal/config"
	orcalog "github.com/tombee/orca/internal/log"
	"github.com/tombee/orca/internal/testing/mock"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

type failureListener struct {
	mu     sync.Mutex
	failed []error
}

func (l *failureListener) WorkflowStarted(string)  {}
func (l *failureListener) WorkflowWaiting(string)  {}
func (l *failureListener) WorkflowShutdown(string) {}
func (l *failureListener) WorkflowFailed(_ string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, err)
}

func condorWorkflow(dir string) config.WorkflowConfig {
	return config.WorkflowConfig{
		Name:                "wf1",
		Plugin:              config.PluginCondor,
		LocalScratch:        dir,
		StatusCheckInterval: 10 * time.Millisecond,
		Condor:              &config.CondorConfig{DAGFile: "wf.dag"},
	}
}

func pegasusWorkflow(dir string) config.WorkflowConfig {
	return config.WorkflowConfig{
		Name:                "wf2",
		Plugin:              config.PluginPegasus,
		LocalScratch:        dir,
		StatusCheckInterval: 10 * time.Millisecond,
		Pegasus: &config.PegasusConfig{
			DAXFile:               "wf.dax",
			SiteCatalog:           "sites.xml",
			TransformationCatalog: "tc.txt",
		},
	}
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
}

func testEnv(queue *mock.Condor) Environment {
	return Environment{RunID: "run-1", Runner: queue, Logger: orcalog.Discard()}
}

func TestCondorLauncher_LaunchStartsMonitor(t *testing.T) {
	queue := mock.NewCondor(100)
	cfgr, err := NewRegistry().New(condorWorkflow(t.TempDir()), testEnv(queue))
	require.NoError(t, err)
	l, err := cfgr.Configure()
	require.NoError(t, err)

	mon, err := l.Launch(context.Background(), nil)
	require.NoError(t, err)
	require.NotNil(t, mon)
	assert.Equal(t, "100", mon.JobID())
	assert.True(t, mon.IsRunning(), "monitor is started before Launch returns")
	assert.Equal(t, 1, queue.Count("condor_submit_dag"))

	queue.Finish("100")
	select {
	case <-mon.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not observe job completion")
	}
	assert.NoError(t, l.CleanUp(context.Background()))
	assert.NoError(t, l.CleanUp(context.Background()))
}

func TestPegasusLauncher_Launch(t *testing.T) {
	queue := mock.NewCondor(5)
	dir := t.TempDir()
	cfgr, err := NewRegistry().New(pegasusWorkflow(dir), testEnv(queue))
	require.NoError(t, err)
	l, err := cfgr.Configure()
	require.NoError(t, err)

	mon, err := l.Launch(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "5", mon.JobID())
	require.NotEmpty(t, queue.Calls())
	assert.Contains(t, queue.Calls()[0], "--dax wf.dax --submit")
	assert.Contains(t, queue.Calls()[0], "--sites lsstvc")

	require.NoError(t, mon.Stop(context.Background(), 3))
	<-mon.Done()
	assert.Equal(t, []string{"5"}, queue.Removed())
}

func TestLauncher_SubmissionFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(q *mock.Condor)
		checkAs func(t *testing.T, err error)
	}{
		{
			name:  "unparseable acknowledgment",
			setup: func(q *mock.Condor) { q.Garbled = true },
			checkAs: func(t *testing.T, err error) {
				var parseErr *orcaerrors.SubmissionParseError
				assert.True(t, errors.As(err, &parseErr))
			},
		},
		{
			name: "submit command unavailable",
			setup: func(q *mock.Condor) {
				q.SubmitErr = &orcaerrors.AdapterUnavailableError{Command: "condor_submit_dag", ExitCode: 1}
			},
			checkAs: func(t *testing.T, err error) {
				var unavailable *orcaerrors.AdapterUnavailableError
				assert.True(t, errors.As(err, &unavailable))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := mock.NewCondor(1)
			tt.setup(queue)
			cfgr, err := NewCondorConfigurator(condorWorkflow(t.TempDir()), testEnv(queue))
			require.NoError(t, err)
			l, err := cfgr.Configure()
			require.NoError(t, err)

			listener := &failureListener{}
			mon, err := l.Launch(context.Background(), listener)
			require.Error(t, err)
			assert.Nil(t, mon)
			tt.checkAs(t, err)
			assert.Len(t, listener.failed, 1)
		})
	}
}

func TestConfigurator_CheckConfiguration(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "wf.dag", "wf.dax", "sites.xml")

	noPath := func(string) (string, error) { return "", errors.New("not found") }

	tests := []struct {
		name     string
		wf       config.WorkflowConfig
		care     int
		problems int
	}{
		{name: "care zero skips", wf: pegasusWorkflow("/does/not/exist"), care: 0, problems: 0},
		{name: "condor files present", wf: condorWorkflow(dir), care: 1, problems: 0},
		{name: "condor missing scratch", wf: condorWorkflow(filepath.Join(dir, "nope")), care: 1, problems: 2},
		{name: "pegasus missing tc", wf: pegasusWorkflow(dir), care: 1, problems: 1},
		{name: "condor commands missing", wf: condorWorkflow(dir), care: 2, problems: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := Environment{LookPath: noPath}
			cfgr, err := NewRegistry().New(tt.wf, env)
			require.NoError(t, err)

			problems := orcaerrors.NewMultiIssueConfigurationError("", "")
			cfgr.CheckConfiguration(tt.care, problems)
			assert.Len(t, problems.Problems(), tt.problems, problems.Problems())
		})
	}
}
