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

package lifecycle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUrgency_Ordering(t *testing.T) {
	assert.Less(t, int(FinishPendingData), int(EndIteration))
	assert.Less(t, int(EndIteration), int(Checkpoint))
	assert.Less(t, int(Checkpoint), int(Now))
}

func TestParseUrgency(t *testing.T) {
	tests := []struct {
		in      string
		want    Urgency
		wantErr bool
	}{
		{in: "0", want: FinishPendingData},
		{in: "3", want: Now},
		{in: "checkpoint", want: Checkpoint},
		{in: "End-Iteration", want: EndIteration},
		{in: "4", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "later", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUrgency(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUrgency_String(t *testing.T) {
	assert.Equal(t, "now", Now.String())
	assert.Equal(t, "urgency(9)", Urgency(9).String())
}

func TestStopRequest_JSON(t *testing.T) {
	var req StopRequest
	require.NoError(t, json.Unmarshal([]byte(`{"runid":"R1","level":2}`), &req))
	assert.Equal(t, "R1", req.RunID)
	assert.Equal(t, Checkpoint, req.Urgency())
}

func TestUrgency_Description(t *testing.T) {
	for u := FinishPendingData; u <= Now; u++ {
		if u.Description() == "" {
			t.Errorf("%s has no description", u)
		}
	}
	if d := Urgency(7).Description(); d != "" {
		t.Errorf("Description() of an invalid level = %q, want empty", d)
	}
}
