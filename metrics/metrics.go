// Copyright 2024 The docai Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package metrics defines Prometheus collectors of the DAG run tracker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "docai"
	subsystem = "dagrun_tracker"
)

// Results of signalling the executor.
const (
	SignalOk     = "ok"
	SignalFailed = "failed"
)

// Metrics groups collectors updated by the tracker. Nil *Metrics is valid and
// records nothing.
type Metrics struct {
	created        *prometheus.CounterVec
	taskUpdates    *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	signals        *prometheus.CounterVec
	updateDuration prometheus.Histogram
}

// New creates collectors and registers them in given registerer. When reg is
// nil collectors are created but not registered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "created_total",
				Help:      "number of created DAG runs",
			}, []string{"dag"}),
		taskUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "task_updates_total",
				Help:      "number of task status callbacks merged into DAG runs",
			}, []string{"dag"}),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "status_transitions_total",
				Help:      "number of DAG run status transitions",
			}, []string{"from", "to"}),
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "executor_signals_total",
				Help:      "number of start signals sent to the executor",
			}, []string{"result"}),
		updateDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "task_update_duration_seconds",
				Help:      "duration of merging a task status callback",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			}),
	}
	if reg != nil {
		reg.MustRegister(m.created, m.taskUpdates, m.transitions, m.signals,
			m.updateDuration)
	}
	return m
}

// DagRunCreated increments number of created DAG runs of given DAG.
func (m *Metrics) DagRunCreated(dagName string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(dagName).Inc()
}

// TaskUpdated records merged task status callback and its duration.
func (m *Metrics) TaskUpdated(dagName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskUpdates.WithLabelValues(dagName).Inc()
	m.updateDuration.Observe(duration.Seconds())
}

// StatusChanged records status transition. Calls with equal statuses are
// ignored.
func (m *Metrics) StatusChanged(from, to string) {
	if m == nil || from == to {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// ExecutorSignalled records result of signalling the executor.
func (m *Metrics) ExecutorSignalled(err error) {
	if m == nil {
		return
	}
	result := SignalOk
	if err != nil {
		result = SignalFailed
	}
	m.signals.WithLabelValues(result).Inc()
}
