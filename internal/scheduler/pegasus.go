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
	"log/slog"

	orcalog "github.com/tombee/orca/internal/log"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

// DefaultPegasusSite is the execution site passed to pegasus-plan when a
// BatchSpec names none.
const DefaultPegasusSite = "lsstvc"

// Pegasus plans workflows with pegasus-plan and otherwise behaves like
// Condor, since Pegasus submits through DAGMan.
type Pegasus struct {
	*Condor
}

// NewPegasus creates a Pegasus adapter.
func NewPegasus(opts ...Option) *Pegasus {
	return &Pegasus{Condor: newCondor("pegasus", opts)}
}

// PlanCommand builds the pegasus-plan invocation for spec.
func PlanCommand(spec BatchSpec) Command {
	site := spec.Site
	if site == "" {
		site = DefaultPegasusSite
	}
	return Command{
		Dir:  spec.Dir,
		Name: "pegasus-plan",
		Args: []string{
			"-Dpegasus.transfer.links=true",
			"-Dpegasus.catalog.site.file=" + spec.SiteCatalog,
			"-Dpegasus.catalog.transformation.file=" + spec.TransformationCatalog,
			"-Dpegasus.data.configuration=sharedfs",
			"--sites", site,
			"--output-dir", "output",
			"--dir", "submit",
			"--dax", spec.File,
			"--submit",
		},
	}
}

// SubmitBatch plans and submits a DAX, returning the DAGMan cluster id and
// the status and remove hints pegasus-plan prints.
func (p *Pegasus) SubmitBatch(ctx context.Context, spec BatchSpec) (string, BatchInfo, error) {
	cmd := PlanCommand(spec)
	lines, err := p.runner.Run(ctx, cmd)
	for _, line := range lines {
		orcalog.Trace(p.logger, "pegasus-plan output", slog.String("line", line))
	}
	if err != nil {
		return "", BatchInfo{}, err
	}

	id, ok := ParseClusterID(lines)
	if !ok {
		return "", BatchInfo{}, &orcaerrors.SubmissionParseError{Command: cmd.String(), Output: lines}
	}
	info := parseBatchInfo(lines)
	p.logger.Info("planned and submitted workflow",
		slog.String(orcalog.JobIDKey, id),
		slog.String("status_command", info.StatusCommand),
		slog.String("remove_command", info.RemoveCommand),
	)
	return id, info, nil
}

var (
	_ Adapter = (*Condor)(nil)
	_ Adapter = (*Pegasus)(nil)
)
