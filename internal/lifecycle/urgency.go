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
	"fmt"
	"strconv"
	"strings"
)

// Urgency orders how hard a stop request pushes. Higher values stop sooner.
type Urgency int

const (
	// FinishPendingData lets in-flight data drain before stopping.
	FinishPendingData Urgency = iota
	// EndIteration stops at the end of the current iteration.
	EndIteration
	// Checkpoint stops at the next checkpoint.
	Checkpoint
	// Now stops immediately.
	Now
)

var urgencyNames = [...]string{"finish_pending_data", "end_iteration", "checkpoint", "now"}

var urgencyDescriptions = [...]string{
	"let in-flight data drain",
	"stop at the end of the current iteration",
	"stop at the next checkpoint",
	"remove every job immediately",
}

// String returns the snake_case name of u.
func (u Urgency) String() string {
	if u.Valid() {
		return urgencyNames[u]
	}
	return fmt.Sprintf("urgency(%d)", int(u))
}

// Description says what a stop at u does, for prompts and completion.
func (u Urgency) Description() string {
	if u.Valid() {
		return urgencyDescriptions[u]
	}
	return ""
}

// Valid reports whether u is one of the defined levels.
func (u Urgency) Valid() bool {
	return u >= FinishPendingData && u <= Now
}

// ParseUrgency accepts either a level number or its name.
func ParseUrgency(s string) (Urgency, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		u := Urgency(n)
		if !u.Valid() {
			return 0, fmt.Errorf("urgency level %d out of range [%d, %d]", n, FinishPendingData, Now)
		}
		return u, nil
	}
	for i, name := range urgencyNames {
		if s == name || strings.ReplaceAll(s, "-", "_") == name {
			return Urgency(i), nil
		}
	}
	return 0, fmt.Errorf("unknown urgency level %q", s)
}

// StopRequest is the body of a remote stop. Level is the numeric urgency.
type StopRequest struct {
	RunID string `json:"runid"`
	Level int    `json:"level"`
}

// Urgency returns the request level as an Urgency.
func (r StopRequest) Urgency() Urgency {
	return Urgency(r.Level)
}
