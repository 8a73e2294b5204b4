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

// Package metrics holds the prometheus collectors orca exports.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	schedulerCommands = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orca_scheduler_commands_total",
			Help: "Total scheduler command invocations by command and result",
		},
		[]string{"command", "result"},
	)

	schedulerCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orca_scheduler_command_duration_seconds",
			Help:    "Scheduler command wall time",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"command"},
	)

	workflowLaunches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orca_workflow_launches_total",
			Help: "Workflow launch attempts by plugin and result",
		},
		[]string{"plugin", "result"},
	)

	stopRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orca_stop_requests_total",
			Help: "Stop requests received on the control endpoint by result",
		},
		[]string{"result"},
	)

	productionStops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orca_production_stops_total",
			Help: "stopProduction outcomes",
		},
		[]string{"outcome"},
	)
)

// Result label values.
const (
	ResultSuccess  = "success"
	ResultError    = "error"
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
)

// Stop outcome label values.
const (
	StopCompleted = "completed"
	StopTimedOut  = "timed_out"
	StopSkipped   = "skipped"
)

// RecordSchedulerCommand counts one scheduler command and observes its duration.
// command is the executable name (e.g., condor_q), not the full command line.
func RecordSchedulerCommand(command, result string, elapsed time.Duration) {
	schedulerCommands.WithLabelValues(command, result).Inc()
	schedulerCommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

// RecordLaunch counts a workflow launch attempt.
func RecordLaunch(plugin, result string) {
	workflowLaunches.WithLabelValues(plugin, result).Inc()
}

// RecordStopRequest counts a control endpoint stop request.
func RecordStopRequest(result string) {
	stopRequests.WithLabelValues(result).Inc()
}

// RecordProductionStop counts a stopProduction outcome.
func RecordProductionStop(outcome string) {
	productionStops.WithLabelValues(outcome).Inc()
}
