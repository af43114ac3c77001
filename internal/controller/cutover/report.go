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

package cutover

import (
	"time"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
)

// TargetOutcome is what happened to a target during an operation
type TargetOutcome string

const (
	// TargetBooted means the target runs the new version
	TargetBooted TargetOutcome = "booted"

	// TargetUnchanged means the target was already running the version,
	// and it is still healthy
	TargetUnchanged TargetOutcome = "unchanged"

	// TargetFailed means the target kept running its previous version
	TargetFailed TargetOutcome = "failed"

	// TargetRemoved means the containers of the target were removed
	TargetRemoved TargetOutcome = "removed"
)

// TargetReport is the result of an operation on a target
type TargetReport struct {
	Role string `json:"role"`

	Host string `json:"host"`

	Outcome TargetOutcome `json:"outcome"`

	// Attempts is the number of health probes issued
	Attempts int `json:"attempts,omitempty"`

	Error string `json:"error,omitempty"`

	// Logs are the last lines of the log of an unhealthy container
	Logs []string `json:"logs,omitempty"`

	err error

	// started is false for the targets never touched
	started bool
}

// Err is the cause of the failure of the target
func (r TargetReport) Err() error {
	return r.err
}

// Report is the result of a state-mutating operation
type Report struct {
	Operation apiv1.OperationKind `json:"operation"`

	OperationID string `json:"operationID"`

	Version apiv1.Version `json:"version,omitempty"`

	StartedAt time.Time `json:"startedAt"`

	CompletedAt time.Time `json:"completedAt"`

	// Targets are kept in completion order
	Targets []TargetReport `json:"targets,omitempty"`

	// Warnings are the failures not aborting the operation, like the ones
	// of the post-deploy hooks
	Warnings []string `json:"warnings,omitempty"`
}

// Duration is how long the operation took
func (r *Report) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// Failed returns the reports of the failed targets
func (r *Report) Failed() []TargetReport {
	var result []TargetReport
	for _, target := range r.Targets {
		if target.Outcome == TargetFailed {
			result = append(result, target)
		}
	}
	return result
}

// Outcomes maps every target, as role@host, to its outcome
func (r *Report) Outcomes() map[string]TargetOutcome {
	result := make(map[string]TargetOutcome, len(r.Targets))
	for _, target := range r.Targets {
		result[target.Role+"@"+target.Host] = target.Outcome
	}
	return result
}
