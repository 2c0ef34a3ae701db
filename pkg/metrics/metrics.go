// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics provides Prometheus instrumentation for the task-graph
// orchestrator. Metrics cover task outcomes, task duration, checkpoint
// write latency, and in-flight run/worker gauges.
//
// # Integration
//
// Metrics register against the default Prometheus registry the first
// time Default is called. Expose them with a promhttp.Handler on
// whatever server embeds this package; codeforge itself has no HTTP
// surface (SPEC_FULL.md §1), so it never serves /metrics on its own -
// a deployment that wants that endpoint wires the handler up itself.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "codeforge"
	subsystem = "orchestrator"
)

// OrchestratorMetrics holds every Prometheus instrument the orchestrator
// emits. Construct once via Default (or New, for tests) and share across runs.
type OrchestratorMetrics struct {
	TasksTotal          *prometheus.CounterVec
	TaskDurationSeconds *prometheus.HistogramVec
	ActiveTasks         prometheus.Gauge
	CheckpointsTotal    prometheus.Counter
	CheckpointLatency   prometheus.Histogram
	RunsTotal           *prometheus.CounterVec
	RunDurationSeconds  prometheus.Histogram
}

var (
	defaultMetrics *OrchestratorMetrics
	once           sync.Once
)

// Default returns the process-wide OrchestratorMetrics, registered
// against the default Prometheus registry on first use. Safe for
// concurrent callers.
func Default() *OrchestratorMetrics {
	once.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New constructs an OrchestratorMetrics registered against reg. Tests
// pass a fresh prometheus.NewRegistry() to avoid colliding with the
// process-wide default registry across test runs.
func New(reg prometheus.Registerer) *OrchestratorMetrics {
	factory := promauto.With(reg)
	return &OrchestratorMetrics{
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "tasks_total",
				Help:      "Total tasks reaching a terminal state, by outcome",
			},
			[]string{"outcome"},
		),
		TaskDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "task_duration_seconds",
				Help:      "Time spent running a single task's lifecycle",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),
		ActiveTasks: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "active_tasks",
				Help:      "Number of tasks currently executing",
			},
		),
		CheckpointsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkpoints_total",
				Help:      "Total checkpoint files written",
			},
		),
		CheckpointLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkpoint_write_seconds",
				Help:      "Latency of a single checkpoint write",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "runs_total",
				Help:      "Total orchestrator runs, by exit status",
			},
			[]string{"exit_status"},
		),
		RunDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "run_duration_seconds",
				Help:      "Total wall-clock duration of a single orchestrator run",
				Buckets:   []float64{1, 5, 15, 30, 60, 180, 600, 1800},
			},
		),
	}
}
