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

/*
Package scheduler adapts external batch schedulers to a small typed API.

HTCondor and Pegasus only speak line-oriented text, so every call runs a
command through a CommandRunner and pattern-matches what it prints. Nothing
here blocks on anything but the command itself; callers own polling.

# Key Types

  - Adapter: Submit, SubmitBatch, QueryRunState, IsAlive, Kill.
  - Condor: the HTCondor adapter (condor_submit, condor_submit_dag, condor_q,
    condor_rm).
  - Pegasus: Condor plus pegasus-plan batch submission.
  - CommandRunner: the seam between adapters and processes. ExecRunner is
    the real implementation; tests substitute scripted output.

# Errors

A command that cannot be started or exits non-zero yields
*errors.AdapterUnavailableError. A submission whose output lacks the
"N job(s) submitted to cluster <id>." acknowledgment yields
*errors.SubmissionParseError. A query that ran fine but did not list the
job is not an error.
*/
package scheduler
