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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/orca/internal/config"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

type stubConfigurator struct{}

func (stubConfigurator) CheckConfiguration(int, *orcaerrors.MultiIssueConfigurationError) {}
func (stubConfigurator) Configure() (Launcher, error)                                     { return nil, nil }

func TestRegistry_Builtins(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"condor", "pegasus"}, r.Plugins())
}

func TestRegistry_UnknownPlugin(t *testing.T) {
	_, err := NewRegistry().New(config.WorkflowConfig{Name: "wf", Plugin: "slurm"}, Environment{})
	var cfgErr *orcaerrors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "workflows.wf.plugin", cfgErr.Key)
}

func TestRegistry_MissingSection(t *testing.T) {
	r := NewRegistry()
	_, err := r.New(config.WorkflowConfig{Name: "wf", Plugin: config.PluginCondor}, Environment{})
	assert.Error(t, err)
	_, err = r.New(config.WorkflowConfig{Name: "wf", Plugin: config.PluginPegasus}, Environment{})
	assert.Error(t, err)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	r.Register("stub", func(config.WorkflowConfig, Environment) (Configurator, error) {
		return stubConfigurator{}, nil
	})
	c, err := r.New(config.WorkflowConfig{Name: "wf", Plugin: "stub"}, Environment{})
	require.NoError(t, err)
	assert.IsType(t, stubConfigurator{}, c)
	assert.Contains(t, r.Plugins(), "stub")
}
