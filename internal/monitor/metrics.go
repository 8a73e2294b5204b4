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

package monitor

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector records monitor activity through OpenTelemetry.
type MetricsCollector struct {
	pollsTotal    metric.Int64Counter
	eventsTotal   metric.Int64Counter
	pollLatency   metric.Float64Histogram
	activeMonitor int64
}

// NewMetricsCollector registers the monitor instruments on meterProvider.
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("github.com/tombee/orca/internal/monitor")
	mc := &MetricsCollector{}

	var err error
	mc.pollsTotal, err = meter.Int64Counter(
		"orca_monitor_polls_total",
		metric.WithDescription("Scheduler liveness polls by outcome"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return nil, err
	}

	mc.eventsTotal, err = meter.Int64Counter(
		"orca_monitor_events_total",
		metric.WithDescription("Event bus messages handled by monitors"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}

	mc.pollLatency, err = meter.Float64Histogram(
		"orca_monitor_poll_latency_seconds",
		metric.WithDescription("Liveness poll latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"orca_monitor_active",
		metric.WithDescription("Monitors whose polling loop is running"),
		metric.WithUnit("{monitor}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(atomic.LoadInt64(&mc.activeMonitor))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// RecordPoll records one liveness poll. outcome is alive, gone, or error.
func (mc *MetricsCollector) RecordPoll(ctx context.Context, workflow, outcome string, elapsed time.Duration) {
	if mc == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("outcome", outcome),
	)
	mc.pollsTotal.Add(ctx, 1, attrs)
	mc.pollLatency.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordEvent records one handled bus event.
func (mc *MetricsCollector) RecordEvent(ctx context.Context, workflow, eventType string) {
	if mc == nil {
		return
	}
	mc.eventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("workflow", workflow),
		attribute.String("type", eventType),
	))
}

// MonitorStarted increments the active gauge.
func (mc *MetricsCollector) MonitorStarted() {
	if mc != nil {
		atomic.AddInt64(&mc.activeMonitor, 1)
	}
}

// MonitorStopped decrements the active gauge.
func (mc *MetricsCollector) MonitorStopped() {
	if mc != nil {
		atomic.AddInt64(&mc.activeMonitor, -1)
	}
}
