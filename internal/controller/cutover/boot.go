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
	"github.com/fleetdeck/fleetdeck/pkg/healthgate"
	"github.com/fleetdeck/fleetdeck/pkg/metrics"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

// command produces a command for a target
func (o *Orchestrator) command(kind specs.Kind, target apiv1.Target, version apiv1.Version) (specs.Command, error) {
	request := specs.Request{Kind: kind, Role: target.Role, Version: version}
	if kind == specs.KindLogs && target.Role.HealthCheck != nil {
		request.Lines = target.Role.HealthCheck.LogLines
	}
	return o.Commands.Build(request)
}

// exec runs a command on a target, mapping failures to errors
func (o *Orchestrator) exec(
	ctx context.Context,
	kind specs.Kind,
	target apiv1.Target,
	version apiv1.Version,
) (string, error) {
	command, err := o.command(kind, target, version)
	if err != nil {
		return "", err
	}

	outcome := o.Executor.Execute(ctx, target.Host, command)
	if err := outcome.AsError(); err != nil {
		return outcome.Stdout, err
	}
	return outcome.Stdout, nil
}

// boot cuts a target over to the version of the operation. The previous
// container is stopped only when the new one is healthy, otherwise the
// new one is removed and the target keeps running the previous version.
func (o *Orchestrator) boot(ctx context.Context, op *operation, target apiv1.Target) TargetReport {
	contextLogger := log.FromContext(ctx).WithValues("host", target.Host.Address, "role", target.Role.Name)
	ctx = log.IntoContext(ctx, contextLogger)
	version := op.plan.TargetVersion

	report := TargetReport{Role: target.Role.Name, Host: target.Host.Address, started: true}
	fail := func(err error) TargetReport {
		contextLogger.Warning("Cutover failed", "error", err.Error())
		report.Outcome = TargetFailed
		report.Error = err.Error()
		report.err = err
		return report
	}

	imageKind := specs.KindPull
	if op.plan.BuilderMode == apiv1.BuilderModeReuseImage {
		imageKind = specs.KindEnsureImage
	}
	fetch, err := o.command(imageKind, target, version)
	if err != nil {
		return fail(err)
	}
	check, err := o.command(specs.KindContainerRunning, target, version)
	if err != nil {
		return fail(err)
	}
	outcomes, err := o.Executor.Sequence(ctx, target.Host, fetch, check)
	if err != nil {
		if len(outcomes) == 1 {
			return fail(fmt.Errorf("while fetching the image: %w", err))
		}
		return fail(err)
	}
	alreadyRunning := strings.TrimSpace(outcomes[1].Stdout) != ""

	if alreadyRunning {
		contextLogger.Info("Version already running, checking its health")
	} else {
		contextLogger.Info("Starting container")

		// A stopped container with the same name would conflict
		command, err := o.command(specs.KindRemoveContainer, target, version)
		if err != nil {
			return fail(err)
		}
		if outcome := o.Executor.Execute(ctx, target.Host, command); outcome.Err != nil {
			return fail(outcome.AsError())
		}

		if _, err := o.exec(ctx, specs.KindRun, target, version); err != nil {
			return fail(fmt.Errorf("while starting the container: %w", err))
		}
	}

	result := o.gate(ctx, target, version).Run(ctx)
	report.Attempts = result.Attempts
	metrics.RecordHealthCheck(o.deployment.Service, target.Role.Name, string(result.State), result.Attempts)

	if result.State != healthgate.StateHealthy {
		report.Logs = result.Logs
		if !alreadyRunning {
			o.discard(ctx, target, version)
		}
		return fail(result.AsError(target.Host.Address))
	}

	if _, err := o.exec(ctx, specs.KindStopOld, target, version); err != nil {
		if !alreadyRunning {
			o.discard(ctx, target, version)
		}
		return fail(fmt.Errorf("while stopping the previous containers: %w", err))
	}

	if alreadyRunning {
		report.Outcome = TargetUnchanged
	} else {
		contextLogger.Info("Container booted", "attempts", result.Attempts)
		report.Outcome = TargetBooted
	}
	return report
}

// gate creates the health gate of the new container of a target
func (o *Orchestrator) gate(ctx context.Context, target apiv1.Target, version apiv1.Version) *healthgate.Gate {
	contextLogger := log.FromContext(ctx)

	var probe healthgate.Probe
	if target.Role.HealthCheck != nil {
		command, err := o.command(specs.KindHealthProbe, target, version)
		if err != nil {
			probe = healthgate.ProbeFunc(func(context.Context) error { return err })
		} else {
			probe = healthgate.CommandProbe{Executor: o.Executor, Host: target.Host, Command: command}
		}
	}

	gate := healthgate.New(target.Role.HealthCheck, probe)
	if o.healthSleep != nil {
		gate.Sleep = o.healthSleep
	}
	if logs, err := o.command(specs.KindLogs, target, version); err == nil {
		gate.CollectLogs = healthgate.CommandLogs(o.Executor, target.Host, logs)
	}
	gate.Observer = func(state healthgate.State, attempt int) {
		if state.IsFinal() {
			contextLogger.Debug("Health gate done", "state", state, "attempts", attempt)
			return
		}
		contextLogger.Trace("Health gate transition", "state", state, "attempt", attempt)
	}
	return gate
}

// discard removes the new container of a failed target, leaving the
// previous one active. It runs even when the operation is cancelled.
func (o *Orchestrator) discard(ctx context.Context, target apiv1.Target, version apiv1.Version) {
	ctx = context.WithoutCancel(ctx)
	if _, err := o.exec(ctx, specs.KindRemoveContainer, target, version); err != nil {
		log.FromContext(ctx).Error(err, "Cannot remove the new container")
	}
}

// bootEvent is the ledger record of the cutover of a target
func (o *Orchestrator) bootEvent(op *operation, report TargetReport) apiv1.BootEvent {
	event := apiv1.BootEvent{
		Host:        report.Host,
		Role:        report.Role,
		Version:     op.plan.TargetVersion,
		Timestamp:   o.now().UTC(),
		Outcome:     apiv1.BootOutcomeBooted,
		Operation:   op.plan.Operation,
		OperationID: op.id,
		Performer:   o.performer,
	}
	if report.Outcome == TargetFailed {
		event.Outcome = apiv1.BootOutcomeFailed
		event.Message = report.Error
	}
	return event
}
