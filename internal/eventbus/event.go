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

// Package eventbus is the in-process pub/sub channel monitors listen on for
// logger status and shutdown commands. Subscriptions filter by run id the
// way a broker selector (RUNID = '<id>') would.
package eventbus

import (
	"strconv"
	"time"

	"github.com/tombee/orca/internal/lifecycle"
)

// EventType names an event stream.
type EventType string

const (
	// TypeLoggerStatus carries logger process status (logger.status, logger.pid).
	TypeLoggerStatus EventType = "logger_status"
	// TypeShutdownCommand asks monitors of a run to stop.
	TypeShutdownCommand EventType = "shutdown_command"
	// TypeLogging is the logging topic. The final "eol" message to loggers
	// goes here.
	TypeLogging EventType = "logging"
)

// Property keys.
const (
	PropLoggerStatus = "logger.status"
	PropLoggerPID    = "logger.pid"
	PropLogger       = "LOGGER"
	PropStatus       = "STATUS"
	PropUrgency      = "urgency"
)

// Values used by the last logger event.
const (
	ControlLoggerName = "orca.control"
	StatusEOL         = "eol"
)

// Event is one message on the bus.
type Event struct {
	Type       EventType         `json:"type"`
	RunID      string            `json:"runid"`
	Time       time.Time         `json:"timestamp"`
	Properties map[string]string `json:"properties,omitempty"`
}

// New creates an event stamped with the current time.
func New(t EventType, runID string, props map[string]string) Event {
	if props == nil {
		props = map[string]string{}
	}
	return Event{Type: t, RunID: runID, Time: time.Now(), Properties: props}
}

// NewLoggerStatus reports a logger's status, typically "eol" when it exits.
func NewLoggerStatus(runID string, pid int, status string) Event {
	return New(TypeLoggerStatus, runID, map[string]string{
		PropLoggerStatus: status,
		PropLoggerPID:    strconv.Itoa(pid),
	})
}

// NewShutdownCommand asks every monitor of runID to stop.
func NewShutdownCommand(runID string, urgency lifecycle.Urgency) Event {
	return New(TypeShutdownCommand, runID, map[string]string{
		PropUrgency: strconv.Itoa(int(urgency)),
	})
}

// NewLastLoggerEvent tells loggers of runID that orca is done with them.
func NewLastLoggerEvent(runID string) Event {
	return New(TypeLogging, runID, map[string]string{
		PropLogger: ControlLoggerName,
		PropStatus: StatusEOL,
	})
}

// LoggerPID returns the logger pid carried by a logger status event.
func (e Event) LoggerPID() (int, bool) {
	if _, ok := e.Properties[PropLoggerStatus]; !ok {
		return 0, false
	}
	pid, err := strconv.Atoi(e.Properties[PropLoggerPID])
	if err != nil {
		return 0, false
	}
	return pid, true
}

// Urgency returns the level carried by a shutdown command, or Now when it
// carries none.
func (e Event) Urgency() lifecycle.Urgency {
	n, err := strconv.Atoi(e.Properties[PropUrgency])
	if err != nil || !lifecycle.Urgency(n).Valid() {
		return lifecycle.Now
	}
	return lifecycle.Urgency(n)
}
