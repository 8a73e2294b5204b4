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
	"regexp"
	"strconv"
	"strings"
)

var (
	clusterExp = regexp.MustCompile(`\d+ job\(s\) submitted to cluster (\d+)\.`)
	statusExp  = regexp.MustCompile(`pegasus-status -l (.+)`)
	removeExp  = regexp.MustCompile(`pegasus-remove (.+)`)
)

// ParseClusterID scans every line for the submission acknowledgment and
// returns the first cluster id found. Tools may interleave the
// acknowledgment anywhere in their output, so no line position is assumed.
func ParseClusterID(lines []string) (string, bool) {
	for _, line := range lines {
		if m := clusterExp.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// parseBatchInfo extracts pegasus-status and pegasus-remove hints.
func parseBatchInfo(lines []string) BatchInfo {
	var info BatchInfo
	for _, line := range lines {
		if info.StatusCommand == "" {
			if m := statusExp.FindStringSubmatch(line); m != nil {
				info.StatusCommand = "pegasus-status -l " + strings.TrimSpace(m[1])
			}
		}
		if info.RemoveCommand == "" {
			if m := removeExp.FindStringSubmatch(line); m != nil {
				info.RemoveCommand = "pegasus-remove " + strings.TrimSpace(m[1])
			}
		}
	}
	return info
}

// QueueRow is one job line of a condor_q listing:
//
//	ID      OWNER   SUBMITTED     RUN_TIME ST PRI SIZE CMD
//	1016.0  srp     5/24 09:17  0+00:00:00 I  0   0.0  launch_joboffices_
type QueueRow struct {
	ID     string
	Owner  string
	Status string
}

// ParseQueueRow splits a listing line on whitespace. SUBMITTED spans two
// fields, so the status code is the sixth field. Lines with fewer fields
// (banners, blank lines, totals) are rejected.
func ParseQueueRow(line string) (QueueRow, bool) {
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return QueueRow{}, false
	}
	return QueueRow{ID: fields[0], Owner: fields[1], Status: fields[5]}, true
}

// rowID is the queue-listing id of a cluster's first process.
func rowID(jobID string) string {
	return jobID + ".0"
}

// classify returns the state of jobID within a listing and whether its row
// was present.
func classify(lines []string, jobID string) (JobState, bool) {
	want := rowID(jobID)
	for _, line := range lines {
		row, ok := ParseQueueRow(line)
		if !ok || row.ID != want {
			continue
		}
		if state, known := stateCodes[row.Status]; known {
			return state, true
		}
		return StateUnknown, true
	}
	return StateUnknown, false
}

// containsCluster reports whether a `condor_q -af ClusterId` listing names
// jobID. Ids are compared as integers so "042" matches "42".
func containsCluster(lines []string, jobID string) bool {
	want, err := strconv.Atoi(strings.TrimSpace(jobID))
	if err != nil {
		return false
	}
	for _, line := range lines {
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil && n == want {
			return true
		}
	}
	return false
}
