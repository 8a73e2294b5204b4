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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	orcalog "github.com/tombee/orca/internal/log"
	orcaerrors "github.com/tombee/orca/pkg/errors"
)

func row(id, status string) string {
	return id + ".0   srp   5/24 09:17   0+00:00:00 " + status + "  0   0.0  run"
}

func fastWait() WaitOptions {
	return WaitOptions{Interval: time.Millisecond, Logger: orcalog.Discard()}
}

func TestWaitForJobToRun(t *testing.T) {
	r := newFakeRunner().
		on("condor_q", nil, &orcaerrors.AdapterUnavailableError{Command: "condor_q", ExitCode: 1}).
		on("condor_q", []string{row("42", "I")}, nil).
		on("condor_q", []string{row("42", "R")}, nil)
	c := newTestCondor(r)

	state, err := WaitForJobToRun(context.Background(), c, "42", fastWait())
	require.NoError(t, err)
	assert.Equal(t, StateRunning, state)
	assert.Len(t, r.calls, 3)
}

func TestWaitForJobToRun_Stops(t *testing.T) {
	tests := []struct {
		name    string
		listing [][]string
		want    JobState
	}{
		{"held", [][]string{{row("42", "H")}}, StateHeld},
		{"aborting", [][]string{{row("42", "X")}}, StateAborting},
		{"cancelled", [][]string{{row("42", "C")}}, StateCancelled},
		{"vanished", [][]string{{row("42", "I")}, {}}, StateVanished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeRunner()
			for _, l := range tt.listing {
				r.on("condor_q", l, nil)
			}
			c := newTestCondor(r)

			state, err := WaitForJobToRun(context.Background(), c, "42", fastWait())
			assert.ErrorIs(t, err, ErrJobNotRunning)
			assert.Equal(t, tt.want, state)
		})
	}
}

func TestWaitForJobToRun_ContextCancel(t *testing.T) {
	r := newFakeRunner().on("condor_q", []string{row("42", "I")}, nil)
	c := newTestCondor(r)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := WaitForJobToRun(ctx, c, "42", fastWait())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForAllJobsToRun(t *testing.T) {
	r := newFakeRunner().
		on("condor_q", []string{row("1", "R"), row("2", "I")}, nil).
		on("condor_q", []string{row("1", "R"), row("2", "I")}, nil).
		on("condor_q", []string{row("1", "R"), row("2", "R")}, nil)
	c := newTestCondor(r)

	require.NoError(t, WaitForAllJobsToRun(context.Background(), c, []string{"1", "2"}, fastWait()))
}

func TestWaitForAllJobsToRun_Held(t *testing.T) {
	r := newFakeRunner().on("condor_q", []string{row("1", "R"), row("2", "H")}, nil)
	c := newTestCondor(r)

	err := WaitForAllJobsToRun(context.Background(), c, []string{"1", "2"}, fastWait())
	assert.ErrorIs(t, err, ErrJobNotRunning)
}
