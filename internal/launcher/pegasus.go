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

// PegasusConfigurator plans and submits a DAX with pegasus-plan.
type PegasusConfigurator struct {
	workflow config.WorkflowConfig
	env      Environment
}

// NewPegasusConfigurator is the Factory for the pegasus plugin.
func NewPegasusConfigurator(wf config.WorkflowConfig, env Environment) (Configurator, error) {
	if wf.Pegasus == nil {
		return nil, &orcaerrors.ConfigError{
			Key:    fmt.Sprintf("workflows.%s.pegasus", wf.Name),
			Reason: "pegasus section is required for the pegasus plugin",
		}
	}
	return &PegasusConfigurator{workflow: wf, env: env}, nil
}

func (c *PegasusConfigurator) CheckConfiguration(care int, problems *orcaerrors.MultiIssueConfigurationError) {
	if care < 1 {
		return
	}
	p := c.workflow.Pegasus
	dir := c.workflow.LocalScratch
	checkDir(problems, c.workflow.Name, dir)
	checkFile(problems, c.workflow.Name, "dax_file", resolve(dir, p.DAXFile))
	checkFile(problems, c.workflow.Name, "site_catalog", resolve(dir, p.SiteCatalog))
	checkFile(problems, c.workflow.Name, "transformation_catalog", resolve(dir, p.TransformationCatalog))

	if care < 2 {
		return
	}
	for _, cmd := range []string{"pegasus-plan", "condor_q", "condor_rm"} {
		if _, err := c.env.lookPath(cmd); err != nil {
			problems.AddProblemf("workflow %q: %s not found on PATH", c.workflow.Name, cmd)
		}
	}
}

func (c *PegasusConfigurator) Configure() (Launcher, error) {
	p := c.workflow.Pegasus
	logger := orcalog.WithRunContext(orcalog.WithComponent(c.env.Logger, "launcher"), c.env.RunID, c.workflow.Name)
	return &batchLauncher{
		plugin:   config.PluginPegasus,
		workflow: c.workflow,
		env:      c.env,
		adapter:  scheduler.NewPegasus(c.env.schedulerOptions(c.workflow, c.env.Logger)...),
		spec: scheduler.BatchSpec{
			File:                  p.DAXFile,
			Dir:                   c.workflow.LocalScratch,
			SiteCatalog:           p.SiteCatalog,
			TransformationCatalog: p.TransformationCatalog,
			Site:                  p.Site,
		},
		logger: logger,
	}, nil
}
