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

// Package healthgate decides whether a freshly started container can
// receive the traffic of a host, probing it until it answers or the
// attempts are exhausted
package healthgate

import (
	"context"
	"strings"
	"time"

	"github.com/cloudnative-pg/machinery/pkg/log"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/fleeterrors"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

// State is a state of the health gate
type State string

const (
	// StateStarting is the state before the first probe
	StateStarting State = "starting"

	// StatePolling is the state between the probes
	StatePolling State = "polling"

	// StateHealthy is the final state of a container passing a probe
	StateHealthy State = "healthy"

	// StateUnhealthy is the final state of a container never passing
	// a probe
	StateUnhealthy State = "unhealthy"
)

// IsFinal is true for the states ending the gate
func (s State) IsFinal() bool {
	return s == StateHealthy || s == StateUnhealthy
}

// Probe checks the health of a container once
type Probe interface {
	Probe(ctx context.Context) error
}

// ProbeFunc is a function implementing Probe
type ProbeFunc func(ctx context.Context) error

// Probe implements Probe
func (f ProbeFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// Result is the outcome of a gate
type Result struct {
	State State

	// Attempts is the number of probes issued
	Attempts int

	// Err is the error of the last failed probe
	Err error

	// Logs are the last log lines of an unhealthy container
	Logs []string
}

// AsError converts an unhealthy result into a HealthCheckTimeoutError
func (r Result) AsError(host string) error {
	if r.State == StateHealthy {
		return nil
	}
	return &fleeterrors.HealthCheckTimeoutError{
		Host:     host,
		Attempts: r.Attempts,
		Logs:     r.Logs,
		Err:      r.Err,
	}
}

// Gate probes a container until it is healthy
type Gate struct {
	Probe Probe

	MaxAttempts int

	Interval time.Duration

	// CollectLogs returns the log lines of the container, and is called
	// when the container is unhealthy
	CollectLogs func(ctx context.Context) ([]string, error)

	// Sleep waits between two probes
	Sleep func(ctx context.Context, d time.Duration) error

	// Observer is notified of every state transition
	Observer func(state State, attempt int)
}

// New creates a gate applying a health check configuration. A nil
// configuration creates a gate which is immediately healthy.
func New(configuration *apiv1.HealthCheckConfiguration, probe Probe) *Gate {
	gate := &Gate{Probe: probe, Sleep: sleep}
	if configuration != nil {
		gate.MaxAttempts = configuration.MaxAttempts
		gate.Interval = configuration.GetInterval()
	} else {
		gate.Probe = nil
	}
	return gate
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (g *Gate) transition(state State, attempt int) {
	if g.Observer != nil {
		g.Observer(state, attempt)
	}
}

// Run probes the container up to MaxAttempts times, waiting Interval
// between two probes. The context cancellation is reported as an
// unhealthy result.
func (g *Gate) Run(ctx context.Context) Result {
	contextLogger := log.FromContext(ctx)
	g.transition(StateStarting, 0)

	if g.Probe == nil {
		g.transition(StateHealthy, 0)
		return Result{State: StateHealthy}
	}

	sleepFunc := g.Sleep
	if sleepFunc == nil {
		sleepFunc = sleep
	}

	result := Result{State: StateUnhealthy}
	for attempt := 1; attempt <= max(g.MaxAttempts, 1); attempt++ {
		if attempt > 1 {
			g.transition(StatePolling, attempt-1)
			if err := sleepFunc(ctx, g.Interval); err != nil {
				result.Err = err
				break
			}
		}

		result.Attempts = attempt
		err := g.Probe.Probe(ctx)
		if err == nil {
			contextLogger.Debug("Container healthy", "attempts", attempt)
			g.transition(StateHealthy, attempt)
			return Result{State: StateHealthy, Attempts: attempt}
		}

		result.Err = err
		contextLogger.Debug("Container not healthy yet", "attempt", attempt, "error", err.Error())
		if ctx.Err() != nil {
			break
		}
	}

	if g.CollectLogs != nil {
		logs, err := g.CollectLogs(context.WithoutCancel(ctx))
		if err != nil {
			contextLogger.Warning("Cannot collect the container logs", "error", err.Error())
		}
		result.Logs = logs
	}

	g.transition(StateUnhealthy, result.Attempts)
	return result
}

// CommandProbe runs a health probe command on a host
type CommandProbe struct {
	Executor *executor.Executor
	Host     apiv1.Host
	Command  specs.Command
}

// Probe implements Probe
func (p CommandProbe) Probe(ctx context.Context) error {
	return p.Executor.Execute(ctx, p.Host, p.Command).AsError()
}

// CommandLogs returns a log collector running a command on a host
func CommandLogs(e *executor.Executor, host apiv1.Host, command specs.Command) func(context.Context) ([]string, error) {
	return func(ctx context.Context) ([]string, error) {
		outcome := e.Execute(ctx, host, command)
		if err := outcome.AsError(); err != nil {
			return nil, err
		}
		output := strings.TrimRight(outcome.Stdout, "\n")
		if output == "" {
			return nil, nil
		}
		return strings.Split(output, "\n"), nil
	}
}
