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
	"context"
	"fmt"
	"strings"

	"github.com/cloudnative-pg/machinery/pkg/log"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/ledger"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

// ContainerDetails describes a container found on a host
type ContainerDetails struct {
	Name    string        `json:"name"`
	Version apiv1.Version `json:"version"`
	State   string        `json:"state"`
}

// TargetDetails describes what a target is running
type TargetDetails struct {
	Role string `json:"role"`

	Host string `json:"host"`

	// CurrentVersion is the version of the last successful boot
	// recorded in the history, empty when there is none
	CurrentVersion apiv1.Version `json:"currentVersion,omitempty"`

	Containers []ContainerDetails `json:"containers"`

	// Error is set when the host can't be inspected
	Error string `json:"error,omitempty"`
}

// Details inspects the targets. Unreachable hosts are reported in
// their details and are not an error.
func (o *Orchestrator) Details(ctx context.Context, options Options) ([]TargetDetails, error) {
	targets, err := o.registry.Targets(options.Roles, options.Hosts)
	if err != nil {
		return nil, err
	}

	events, err := o.Ledger.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("while reading the history: %w", err)
	}
	current := ledger.CurrentVersions(events)

	result := make([]TargetDetails, len(targets))
	errs := executor.Fanout(ctx, o.Executor.Concurrency(), targets,
		func(ctx context.Context, i int, target apiv1.Target) error {
			result[i] = TargetDetails{
				Role:           target.Role.Name,
				Host:           target.Host.Address,
				CurrentVersion: current[ledger.Key{Host: target.Host.Address, Role: target.Role.Name}],
				Containers:     []ContainerDetails{},
			}

			stdout, err := o.exec(ctx, specs.KindListContainers, target, "")
			if err != nil {
				return err
			}
			result[i].Containers = parseContainers(stdout)
			return nil
		})
	for i, err := range errs {
		if err != nil {
			log.FromContext(ctx).Warning("Cannot inspect host", "host", targets[i].Host.Address, "error", err.Error())
			result[i].Role = targets[i].Role.Name
			result[i].Host = targets[i].Host.Address
			result[i].Error = err.Error()
		}
	}

	return result, nil
}

// parseContainers parses the name, version and state of the
// containers, one per line and separated by tabs
func parseContainers(stdout string) []ContainerDetails {
	result := []ContainerDetails{}
	for _, line := range strings.Split(stdout, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		for len(fields) < 3 {
			fields = append(fields, "")
		}
		result = append(result, ContainerDetails{
			Name:    fields[0],
			Version: apiv1.Version(fields[1]),
			State:   strings.TrimSpace(fields[2]),
		})
	}
	return result
}

// Audit returns the boot events in append order
func (o *Orchestrator) Audit(ctx context.Context) ([]apiv1.BootEvent, error) {
	return o.Ledger.Events(ctx)
}

// CurrentVersion returns the version a role runs on a host, according
// to the history. The boolean is false when nothing was ever booted.
func (o *Orchestrator) CurrentVersion(ctx context.Context, host, role string) (apiv1.Version, bool, error) {
	return ledger.CurrentVersion(ctx, o.Ledger, host, role)
}

// RoleSummary describes a role of the deployment
type RoleSummary struct {
	Name        string                          `json:"name"`
	Hosts       []string                        `json:"hosts"`
	Cmd         string                          `json:"cmd,omitempty"`
	HealthCheck *apiv1.HealthCheckConfiguration `json:"healthcheck,omitempty"`
}

// ConfigReport is the resolved configuration of the deployment
type ConfigReport struct {
	Service     string        `json:"service"`
	Version     apiv1.Version `json:"version,omitempty"`
	Destination string        `json:"destination,omitempty"`

	Roles       []RoleSummary `json:"roles"`
	Hosts       []string      `json:"hosts"`
	PrimaryHost string        `json:"primaryHost,omitempty"`

	// Repository is the image without tag, AbsoluteImage carries the
	// resolved version
	Repository         string `json:"repository"`
	AbsoluteImage      string `json:"absoluteImage,omitempty"`
	ServiceWithVersion string `json:"serviceWithVersion,omitempty"`

	Volumes     []string                        `json:"volumes"`
	LogOptions  map[string]string               `json:"logOptions,omitempty"`
	SSH         apiv1.SSHConfiguration          `json:"ssh"`
	Builder     apiv1.BuilderConfiguration      `json:"builder"`
	HealthCheck *apiv1.HealthCheckConfiguration `json:"healthcheck,omitempty"`
	Boot        apiv1.BootConfiguration         `json:"boot"`
}

// Config describes the resolved configuration. The version and the
// names depending on it are left empty when it can't be resolved.
func (o *Orchestrator) Config(ctx context.Context) *ConfigReport {
	report := &ConfigReport{
		Service:     o.deployment.Service,
		Destination: o.destination,
		Hosts:       []string{},
		Repository:  o.deployment.Image,
		Volumes:     append([]string{}, o.deployment.Volumes...),
		LogOptions:  o.deployment.LogOptions,
		SSH:         o.deployment.SSH,
		Builder:     o.deployment.Builder,
		HealthCheck: o.deployment.HealthCheck,
		Boot:        o.deployment.Boot,
	}

	if version, err := o.resolveVersion(ctx, ""); err == nil {
		report.Version = version
		report.AbsoluteImage = o.deployment.AbsoluteImage(version)
		report.ServiceWithVersion = o.deployment.ServiceWithVersion(version)
	} else {
		log.FromContext(ctx).Debug("Cannot resolve the version", "error", err.Error())
	}

	if primary, ok := o.registry.PrimaryHost(); ok {
		report.PrimaryHost = primary.Address
	}
	for _, host := range o.registry.AllHosts() {
		report.Hosts = append(report.Hosts, host.Address)
	}

	for _, role := range o.registry.Roles() {
		summary := RoleSummary{
			Name:        role.Name,
			Hosts:       make([]string, 0, len(role.Hosts)),
			Cmd:         role.Cmd,
			HealthCheck: role.HealthCheck,
		}
		for _, host := range role.Hosts {
			summary.Hosts = append(summary.Hosts, host.Address)
		}
		report.Roles = append(report.Roles, summary)
	}
	return report
}

// LockStatus returns the deploy lock, nil when it is free
func (o *Orchestrator) LockStatus(ctx context.Context) (*apiv1.LockRecord, error) {
	return o.Lock.Status(ctx)
}

// AcquireLock takes the deploy lock manually, preventing every
// operation until it is released
func (o *Orchestrator) AcquireLock(ctx context.Context, message string) (apiv1.LockRecord, error) {
	return o.Lock.Acquire(ctx, o.performer, message, "", 0)
}

// ReleaseLock releases the deploy lock whoever holds it. It is the
// escape hatch for the locks left behind by crashed operations.
func (o *Orchestrator) ReleaseLock(ctx context.Context) (*apiv1.LockRecord, error) {
	record, err := o.Lock.ForceRelease(ctx)
	if err == nil && record != nil {
		log.FromContext(ctx).Info("Deploy lock released", "holder", record.Holder)
	}
	return record, err
}
