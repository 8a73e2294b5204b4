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
	"fmt"

	"github.com/tombee/orca/internal/config"
	orcalog "github.com/tombee/orca/internal/log"
	"github.com/tombee/orca/internal/scheduler"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// CondorConfigurator submits a DAG with condor_submit_dag.
type CondorConfigurator struct {
	workflow config.WorkflowConfig
	env      Environment
}

// NewCondorConfigurator is the Factory for the condor plugin.
func NewCondorConfigurator(wf config.WorkflowConfig, env Environment) (Configurator, error) {
	if wf.Condor == nil {
		return nil, &orcaerrors.ConfigError{
			Key:    fmt.Sprintf("workflows.%s.condor", wf.Name),
			Reason: "condor section is required for the condor plugin",
		}
	}
	return &CondorConfigurator{workflow: wf, env: env}, nil
}

func (c *CondorConfigurator) CheckConfiguration(care int, problems *orcaerrors.MultiIssueConfigurationError) {
	if care < 1 {
		return
	}
	checkDir(problems, c.workflow.Name, c.workflow.LocalScratch)
	checkFile(problems, c.workflow.Name, "dag_file", resolve(c.workflow.LocalScratch, c.workflow.Condor.DAGFile))

	if care < 2 {
		return
	}
	for _, cmd := range []string{"condor_submit_dag", "condor_q", "condor_rm"} {
		if _, err := c.env.lookPath(cmd); err != nil {
			problems.AddProblemf("workflow %q: %s not found on PATH", c.workflow.Name, cmd)
		}
	}
}

func (c *CondorConfigurator) Configure() (Launcher, error) {
	logger := orcalog.WithRunContext(orcalog.WithComponent(c.env.Logger, "launcher"), c.env.RunID, c.workflow.Name)
	return &batchLauncher{
		plugin:   config.PluginCondor,
		workflow: c.workflow,
		env:      c.env,
		adapter:  scheduler.NewCondor(c.env.schedulerOptions(c.workflow, c.env.Logger)...),
		spec: scheduler.BatchSpec{
			File: c.workflow.Condor.DAGFile,
			Dir:  c.workflow.LocalScratch,
		},
		logger: logger,
	}, nil
}
