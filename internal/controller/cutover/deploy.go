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
	"errors"
	"fmt"
	"sync"

	"github.com/cloudnative-pg/machinery/pkg/log"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/controller/rollout"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/fleeterrors"
	"github.com/fleetdeck/fleetdeck/pkg/hooks"
	"github.com/fleetdeck/fleetdeck/pkg/ledger"
	"github.com/fleetdeck/fleetdeck/pkg/metrics"
	"github.com/fleetdeck/fleetdeck/pkg/sourceversion"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

// Deploy builds and pushes the current version, then cuts every
// targeted host over to it
func (o *Orchestrator) Deploy(ctx context.Context, options Options) (*Report, error) {
	return o.deploy(ctx, apiv1.OperationDeploy, options)
}

// Redeploy is a deploy skipping the preliminary setup. The image is
// reused as is when SkipBuild is set. Hosts already running the
// version only have their health checked.
func (o *Orchestrator) Redeploy(ctx context.Context, options Options) (*Report, error) {
	return o.deploy(ctx, apiv1.OperationRedeploy, options)
}

// Rollback cuts every targeted host over to a version already pushed.
// Nothing is touched when the image of the version is not available.
func (o *Orchestrator) Rollback(ctx context.Context, version apiv1.Version, options Options) (*Report, error) {
	if version.IsEmpty() {
		return nil, fmt.Errorf("rollback: %w", sourceversion.ErrEmptyVersion)
	}

	op, err := o.newOperation(apiv1.OperationRollback, version, options)
	if err != nil {
		return nil, err
	}

	return o.run(ctx, op, func(ctx context.Context) error {
		if err := o.runHook(ctx, op, hooks.PreConnect); err != nil {
			return err
		}

		return o.withLock(ctx, op, options.Message, func(ctx context.Context) error {
			if err := o.preflight(ctx, op); err != nil {
				return err
			}
			if err := o.verifyVersion(ctx, op); err != nil {
				return err
			}
			if err := o.runHook(ctx, op, hooks.PreDeploy); err != nil {
				return err
			}
			return o.cutover(ctx, op)
		})
	})
}

func (o *Orchestrator) deploy(ctx context.Context, kind apiv1.OperationKind, options Options) (*Report, error) {
	version, err := o.resolveVersion(ctx, options.Version)
	if err != nil {
		return nil, err
	}

	op, err := o.newOperation(kind, version, options)
	if err != nil {
		return nil, err
	}

	return o.run(ctx, op, func(ctx context.Context) error {
		if err := o.runHook(ctx, op, hooks.PreConnect); err != nil {
			return err
		}

		return o.withLock(ctx, op, options.Message, func(ctx context.Context) error {
			if err := o.preflight(ctx, op); err != nil {
				return err
			}
			if err := o.publish(ctx, op); err != nil {
				return err
			}
			if err := o.runHook(ctx, op, hooks.PreDeploy); err != nil {
				return err
			}
			return o.cutover(ctx, op)
		})
	})
}

func (o *Orchestrator) resolveVersion(ctx context.Context, requested apiv1.Version) (apiv1.Version, error) {
	if !requested.IsEmpty() {
		return requested, nil
	}
	if o.Resolver == nil {
		return "", errors.New("no version requested and no version resolver configured")
	}

	version, err := o.Resolver.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("while resolving the version: %w", err)
	}
	return version, nil
}

// publish makes the image of the version available in the registry,
// building it unless the plan reuses an existing image
func (o *Orchestrator) publish(ctx context.Context, op *operation) error {
	version := op.plan.TargetVersion

	if op.plan.BuilderMode == apiv1.BuilderModeReuseImage {
		if o.Builder == nil {
			return nil
		}
		exists, err := o.Builder.Exists(ctx, version)
		if err != nil {
			return fmt.Errorf("while looking for the image of %s: %w", version, err)
		}
		if !exists {
			return &fleeterrors.UnknownVersionError{Version: version.String()}
		}
		return nil
	}

	if o.Builder == nil {
		return errors.New("building images requires a builder")
	}
	if err := o.runHook(ctx, op, hooks.PreBuild); err != nil {
		return err
	}
	if err := o.Builder.Prepare(ctx); err != nil {
		return fmt.Errorf("while preparing the builder: %w", err)
	}
	return o.Builder.BuildAndPush(ctx, version)
}

// verifyVersion checks that the image of the version is available to
// every host of the plan, either locally or in the registry
func (o *Orchestrator) verifyVersion(ctx context.Context, op *operation) error {
	version := op.plan.TargetVersion

	var m sync.Mutex
	var missing []string
	hosts := op.plan.Hosts()
	roles := make(map[string]apiv1.Target, len(hosts))
	for _, target := range op.plan.Targets {
		if _, ok := roles[target.Host.Address]; !ok {
			roles[target.Host.Address] = target
		}
	}

	errs := o.Executor.Dispatch(ctx, hosts, func(ctx context.Context, host apiv1.Host) error {
		command, err := o.command(specs.KindImageExists, roles[host.Address], version)
		if err != nil {
			return err
		}
		outcome := o.Executor.Execute(ctx, host, command)
		if outcome.Err != nil {
			return outcome.AsError()
		}
		if outcome.ExitCode != 0 {
			m.Lock()
			missing = append(missing, host.Address)
			m.Unlock()
		}
		return nil
	})
	if err := executor.FirstError(hosts, errs); err != nil {
		return fmt.Errorf("while looking for the image of %s: %w", version, err)
	}
	if len(missing) == 0 {
		return nil
	}

	if o.Builder != nil {
		exists, err := o.Builder.Exists(ctx, version)
		if err != nil {
			return fmt.Errorf("while looking for the image of %s: %w", version, err)
		}
		if exists {
			return nil
		}
	}

	// Report the hosts in plan order
	missingHosts := make([]string, 0, len(missing))
	for _, host := range hosts {
		for _, address := range missing {
			if address == host.Address {
				missingHosts = append(missingHosts, address)
			}
		}
	}
	return &fleeterrors.UnknownVersionError{
		Version: version.String(),
		Hosts:   missingHosts,
		Known:   o.knownVersions(ctx),
	}
}

// knownVersions lists the versions booted in the past, or nothing when
// the history can't be read
func (o *Orchestrator) knownVersions(ctx context.Context) []string {
	events, err := o.Ledger.Events(ctx)
	if err != nil {
		log.FromContext(ctx).Debug("Cannot read the history", "error", err.Error())
		return nil
	}

	var result []string
	for _, version := range ledger.KnownVersions(events) {
		result = append(result, version.String())
	}
	return result
}

// cutover boots the version on every target, role after role and batch
// after batch. Once started, the cutover of a target runs to completion
// even if the operation is cancelled; cancelled operations only refuse
// to start new targets.
func (o *Orchestrator) cutover(ctx context.Context, op *operation) error {
	contextLogger := log.FromContext(ctx)

	type roleBatches struct {
		role    string
		batches [][]apiv1.Target
	}
	var plan []roleBatches
	for _, role := range op.plan.RoleNames() {
		targets := op.plan.TargetsOfRole(role)
		size, err := o.deployment.Boot.GetBatchSize(len(targets))
		if err != nil {
			return err
		}
		plan = append(plan, roleBatches{role: role, batches: rollout.Batches(targets, size)})
	}

	var m sync.Mutex
	var events []apiv1.BootEvent
	record := func(report TargetReport) {
		m.Lock()
		defer m.Unlock()
		op.report.Targets = append(op.report.Targets, report)
		if report.started && report.Outcome != TargetUnchanged {
			events = append(events, o.bootEvent(op, report))
		}
	}
	notStarted := func(target apiv1.Target, err error) {
		err = fmt.Errorf("cutover not started: %w", err)
		record(TargetReport{
			Role:    target.Role.Name,
			Host:    target.Host.Address,
			Outcome: TargetFailed,
			Error:   err.Error(),
			err:     err,
		})
	}

	for _, role := range plan {
		for i, batch := range role.batches {
			if err := o.pacer.Wait(ctx, role.role, i); err != nil {
				for _, target := range batch {
					notStarted(target, err)
				}
				continue
			}

			contextLogger.Info("Cutting over", "role", role.role, "batch", i+1, "of", len(role.batches))
			errs := executor.Fanout(ctx, o.Executor.Concurrency(), batch,
				func(ctx context.Context, _ int, target apiv1.Target) error {
					record(o.boot(context.WithoutCancel(ctx), op, target))
					return nil
				})
			for j, err := range errs {
				if err != nil {
					notStarted(batch[j], err)
				}
			}
		}
	}

	// From now on the work is recorded even if the operation is cancelled
	ctx = context.WithoutCancel(ctx)

	if err := o.runHook(ctx, op, hooks.PostDeploy); err != nil {
		return err
	}

	var ledgerErrors []error
	for _, event := range events {
		if err := o.Ledger.Append(ctx, event); err != nil {
			ledgerErrors = append(ledgerErrors, err)
			continue
		}
		metrics.RecordBootEvent(o.deployment.Service, event)
	}

	var result []error
	if failure := partialFailure(op.report.Targets); failure != nil {
		result = append(result, failure)
	}
	if len(ledgerErrors) > 0 {
		result = append(result, fmt.Errorf("while recording the boot events: %w", errors.Join(ledgerErrors...)))
	}
	return errors.Join(result...)
}

// partialFailure aggregates the failed targets by host
func partialFailure(targets []TargetReport) error {
	failures := make(map[string]error)
	for _, target := range targets {
		if target.Outcome != TargetFailed {
			continue
		}
		failures[target.Host] = errors.Join(failures[target.Host], target.err)
	}
	if len(failures) == 0 {
		return nil
	}
	return &fleeterrors.PartialFailureError{Failures: failures}
}
