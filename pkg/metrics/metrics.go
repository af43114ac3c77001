/*
Copyright © contributors to fleetdeck.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.

SPDX-License-Identifier: Apache-2.0
*/

// Package metrics contains the metrics of the operations performed on the
// fleet. They can be written to a file in the text exposition format, to
// be collected by the textfile collector of the node exporter.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
)

// Result is the result of an operation
type Result string

// Operation results for metrics
const (
	ResultSuccess        Result = "success"
	ResultPartialFailure Result = "partial_failure"
	ResultAborted        Result = "aborted"
)

var (
	// Registry contains the metrics of fleetdeck
	Registry = prometheus.NewRegistry()

	// OperationsTotal counts the operations by kind and result
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdeck_operations_total",
			Help: "Total number of operations performed on the fleet",
		},
		[]string{"service", "operation", "result"},
	)

	// OperationDuration is the duration of the operations
	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetdeck_operation_duration_seconds",
			Help:    "Duration of the operations performed on the fleet in seconds",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"service", "operation"},
	)

	// BootEventsTotal counts the boot events by role and outcome
	BootEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetdeck_boot_events_total",
			Help: "Total number of containers booted by outcome",
		},
		[]string{"service", "role", "outcome"},
	)

	// HealthCheckAttempts is the number of probes needed by a container
	// to become healthy, or to be declared unhealthy
	HealthCheckAttempts = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetdeck_healthcheck_attempts",
			Help:    "Number of health probes issued before a container became healthy or unhealthy",
			Buckets: []float64{1, 2, 3, 5, 7, 10, 20},
		},
		[]string{"service", "role", "state"},
	)

	// LockWaitSeconds is the time spent waiting for the deploy lock
	LockWaitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetdeck_lock_wait_seconds",
			Help:    "Time spent acquiring the deploy lock in seconds",
			Buckets: []float64{0.1, 1, 5, 15, 60, 300},
		},
		[]string{"service"},
	)
)

func init() {
	Registry.MustRegister(
		OperationsTotal,
		OperationDuration,
		BootEventsTotal,
		HealthCheckAttempts,
		LockWaitSeconds,
	)
}

// RecordOperation counts an operation and records its duration
func RecordOperation(service string, operation apiv1.OperationKind, result Result, duration time.Duration) {
	OperationsTotal.WithLabelValues(service, string(operation), string(result)).Inc()
	OperationDuration.WithLabelValues(service, string(operation)).Observe(duration.Seconds())
}

// RecordBootEvent counts a boot event
func RecordBootEvent(service string, event apiv1.BootEvent) {
	BootEventsTotal.WithLabelValues(service, event.Role, string(event.Outcome)).Inc()
}

// RecordHealthCheck records the probes issued by a health gate
func RecordHealthCheck(service, role, state string, attempts int) {
	HealthCheckAttempts.WithLabelValues(service, role, state).Observe(float64(attempts))
}

// RecordLockWait records the time spent acquiring the lock
func RecordLockWait(service string, wait time.Duration) {
	LockWaitSeconds.WithLabelValues(service).Observe(wait.Seconds())
}

// WriteTextfile writes every metric to a file in the text exposition
// format
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
