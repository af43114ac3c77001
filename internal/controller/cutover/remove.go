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

	"github.com/cloudnative-pg/machinery/pkg/log"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/fleeterrors"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

// Remove stops and removes the containers of the targets. When the
// whole fleet is targeted the images of the service are removed too,
// and the history is cleared. Removing a fleet where nothing is
// deployed succeeds.
func (o *Orchestrator) Remove(ctx context.Context, confirm bool, options Options) (*Report, error) {
	if !confirm {
		return nil, fmt.Errorf("remove: %w", fleeterrors.ErrNotConfirmed)
	}

	op, err := o.newOperation(apiv1.OperationRemove, "", options)
	if err != nil {
		return nil, err
	}
	whole := len(options.Roles) == 0 && len(options.Hosts) == 0

	return o.run(ctx, op, func(ctx context.Context) error {
		return o.withLock(ctx, op, options.Message, func(ctx context.Context) error {
			return o.remove(ctx, op, whole)
		})
	})
}

func (o *Orchestrator) remove(ctx context.Context, op *operation, whole bool) error {
	contextLogger := log.FromContext(ctx)
	targets := op.plan.Targets

	reports := make([]TargetReport, len(targets))
	errs := executor.Fanout(ctx, o.Executor.Concurrency(), targets,
		func(ctx context.Context, i int, target apiv1.Target) error {
			reports[i] = TargetReport{Role: target.Role.Name, Host: target.Host.Address, Outcome: TargetRemoved}
			if _, err := o.exec(ctx, specs.KindRemoveContainers, target, ""); err != nil {
				return err
			}
			contextLogger.Info("Containers removed", "host", target.Host.Address, "role", target.Role.Name)
			return nil
		})
	for i, err := range errs {
		if err != nil {
			reports[i] = TargetReport{
				Role:    targets[i].Role.Name,
				Host:    targets[i].Host.Address,
				Outcome: TargetFailed,
				Error:   err.Error(),
				err:     err,
			}
		}
	}

	if whole {
		hosts := op.plan.Hosts()
		first := make(map[string]apiv1.Target, len(hosts))
		for _, target := range targets {
			if _, ok := first[target.Host.Address]; !ok {
				first[target.Host.Address] = target
			}
		}

		imageErrs := o.Executor.Dispatch(ctx, hosts, func(ctx context.Context, host apiv1.Host) error {
			_, err := o.exec(ctx, specs.KindRemoveImages, first[host.Address], "")
			return err
		})
		for i := range reports {
			if err := imageErrs[targets[i].Host]; err != nil && reports[i].Outcome != TargetFailed {
				reports[i].Outcome = TargetFailed
				reports[i].err = fmt.Errorf("while removing the images: %w", err)
				reports[i].Error = reports[i].err.Error()
			}
		}
	}
	op.report.Targets = reports

	failure := partialFailure(reports)
	if failure != nil || !whole {
		return failure
	}

	// Nothing is left on the fleet, the history can go too
	if err := o.Ledger.Clear(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("while clearing the history: %w", err)
	}
	if o.Builder != nil {
		if err := o.Builder.Remove(ctx); err != nil {
			contextLogger.Warning("Cannot remove the builder", "error", err.Error())
			op.report.Warnings = append(op.report.Warnings, err.Error())
		}
	}
	return nil
}
