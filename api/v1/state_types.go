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

package v1

import (
	"time"
)

// Version is an opaque and immutable identifier of a deploy unit.
// Versions can only be compared for equality, the ledger provides
// the recency ordering.
type Version string

// String implements fmt.Stringer
func (v Version) String() string {
	return string(v)
}

// IsEmpty is true when no version is set
func (v Version) IsEmpty() bool {
	return v == ""
}

// Host is a machine of the fleet. Liveness is never stored, it is
// derived by reaching the host.
type Host struct {
	// Address is the host name or IP address
	Address string `json:"address"`

	// User is the remote user
	User string `json:"user,omitempty"`

	// Port is the SSH port
	Port int `json:"port,omitempty"`
}

// String implements fmt.Stringer
func (h Host) String() string {
	return h.Address
}

// Role is a resolved group of hosts running the same workload
type Role struct {
	Name string `json:"name"`

	// Hosts are kept in declaration order
	Hosts []Host `json:"hosts"`

	// CommandTemplate identifies the producer of the commands for this role
	CommandTemplate string `json:"commandTemplate"`

	// Cmd is the container command, if overridden
	Cmd string `json:"cmd,omitempty"`

	// HealthCheck is nil when the role has no health check
	HealthCheck *HealthCheckConfiguration `json:"healthcheck,omitempty"`

	Env map[string]string `json:"env,omitempty"`

	Labels map[string]string `json:"labels,omitempty"`
}

// Target is a (role, host) pair acted upon by an operation
type Target struct {
	Role Role `json:"role"`
	Host Host `json:"host"`
}

// Key is a printable identifier of the target
func (t Target) Key() string {
	return t.Role.Name + "@" + t.Host.Address
}

// OperationKind is the kind of a state-mutating operation
type OperationKind string

const (
	// OperationDeploy builds, pushes and cuts over a new version
	OperationDeploy OperationKind = "deploy"

	// OperationRedeploy cuts over without the preliminary setup
	OperationRedeploy OperationKind = "redeploy"

	// OperationRollback cuts over to a previously pushed version
	OperationRollback OperationKind = "rollback"

	// OperationRemove stops and removes everything from the fleet
	OperationRemove OperationKind = "remove"
)

// BootOutcome is the result of booting a version on a host
type BootOutcome string

const (
	// BootOutcomeBooted means the new container passed its health check
	// and is the active one
	BootOutcomeBooted BootOutcome = "booted"

	// BootOutcomeFailed means the new container never became active
	BootOutcomeFailed BootOutcome = "failed"
)

// BootEvent records the outcome of booting a version on a host. Boot
// events are immutable once appended to the ledger.
type BootEvent struct {
	// Sequence is assigned by the ledger on append
	Sequence int64 `json:"sequence,omitempty"`

	Host string `json:"host"`

	Role string `json:"role"`

	Version Version `json:"version"`

	Timestamp time.Time `json:"timestamp"`

	Outcome BootOutcome `json:"outcome"`

	Operation OperationKind `json:"operation,omitempty"`

	// OperationID correlates the events of the same operation
	OperationID string `json:"operationID,omitempty"`

	// Performer is the identity of the operator
	Performer string `json:"performer,omitempty"`

	Message string `json:"message,omitempty"`
}

// IsBooted is true when the event marks a successful boot
func (e BootEvent) IsBooted() bool {
	return e.Outcome == BootOutcomeBooted
}

// LockRecord is the fleet-wide deploy lock. At most one valid record
// exists at any time.
type LockRecord struct {
	// Holder is the identity of the operator owning the lock
	Holder string `json:"holder"`

	// Token identifies this acquisition, and is required to release it
	Token string `json:"token"`

	// Message explains why the lock is held
	Message string `json:"message,omitempty"`

	// Version is the version being deployed while the lock is held
	Version Version `json:"version,omitempty"`

	AcquiredAt time.Time `json:"acquiredAt"`

	// ExpiresAt is zero when the lock has no lease
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// IsExpired is true when the lock has a lease and the lease is over
func (r LockRecord) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Age is the time elapsed since the lock was acquired
func (r LockRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.AcquiredAt)
}

// BuilderMode tells whether an operation builds a new image
type BuilderMode string

const (
	// BuilderModeBuildAndPush builds and pushes the target version
	BuilderModeBuildAndPush BuilderMode = "build-and-push"

	// BuilderModeReuseImage reuses an image already pushed
	BuilderModeReuseImage BuilderMode = "reuse-image"
)

// DeployPlan is the in-memory aggregate built for one operation
type DeployPlan struct {
	Operation OperationKind `json:"operation"`

	TargetVersion Version `json:"targetVersion"`

	Targets []Target `json:"targets"`

	// Hooks are the hook points run by the operation, in order
	Hooks []string `json:"hooks"`

	BuilderMode BuilderMode `json:"builderMode"`
}

// Hosts returns the distinct hosts of the plan, in target order
func (p DeployPlan) Hosts() []Host {
	seen := make(map[string]struct{}, len(p.Targets))
	result := make([]Host, 0, len(p.Targets))
	for _, target := range p.Targets {
		if _, ok := seen[target.Host.Address]; ok {
			continue
		}
		seen[target.Host.Address] = struct{}{}
		result = append(result, target.Host)
	}
	return result
}

// RoleNames returns the distinct role names of the plan, in target order
func (p DeployPlan) RoleNames() []string {
	seen := make(map[string]struct{})
	var result []string
	for _, target := range p.Targets {
		if _, ok := seen[target.Role.Name]; ok {
			continue
		}
		seen[target.Role.Name] = struct{}{}
		result = append(result, target.Role.Name)
	}
	return result
}

// TargetsOfRole returns the targets belonging to the passed role
func (p DeployPlan) TargetsOfRole(role string) []Target {
	var result []Target
	for _, target := range p.Targets {
		if target.Role.Name == role {
			result = append(result, target)
		}
	}
	return result
}
