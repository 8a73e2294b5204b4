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

import "context"

// JobState is what the scheduler's queue listing says about a job.
type JobState string

const (
	// StateUnknown means the job has not been listed yet.
	StateUnknown   JobState = "unknown"
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateHeld      JobState = "held"
	StateAborting  JobState = "aborting"
	StateCancelled JobState = "cancelled"
	// StateVanished means the job was listed before and no longer is.
	StateVanished JobState = "vanished"
)

// stateCodes maps condor_q ST column values onto JobState.
var stateCodes = map[string]JobState{
	"I": StateQueued,
	"R": StateRunning,
	"H": StateHeld,
	"X": StateAborting,
	"C": StateCancelled,
}

// JobSpec names a single-job submit description.
type JobSpec struct {
	// File is the condor submit file.
	File string
	// Dir is the working directory for the submit command.
	Dir string
}

// BatchSpec names a planned multi-job workflow.
type BatchSpec struct {
	// File is the DAG (HTCondor) or DAX (Pegasus) file.
	File string
	// Dir is the working directory for the submit command.
	Dir string

	// Pegasus only.
	SiteCatalog           string
	TransformationCatalog string
	Site                  string
}

// BatchInfo is what a batch submission reported besides the job id.
type BatchInfo struct {
	// StatusCommand is the suggested status command (pegasus-status -l ...).
	StatusCommand string
	// RemoveCommand is the suggested removal command (pegasus-remove ...).
	RemoveCommand string
}

// Adapter is one external scheduler.
type Adapter interface {
	// Submit submits a single job and returns its cluster id.
	Submit(ctx context.Context, spec JobSpec) (string, error)

	// SubmitBatch plans and submits a workflow, returning its cluster id.
	SubmitBatch(ctx context.Context, spec BatchSpec) (string, BatchInfo, error)

	// QueryRunState classifies the job's queue row.
	QueryRunState(ctx context.Context, jobID string) (JobState, error)

	// IsAlive reports whether the job id appears in a fresh queue listing.
	IsAlive(ctx context.Context, jobID string) (bool, error)

	// Kill asks the scheduler to remove the job. It does not wait for the
	// removal to take effect.
	Kill(ctx context.Context, jobID string) error
}
