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
	"strings"

	"github.com/blang/semver"
	"github.com/cloudnative-pg/machinery/pkg/log"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/fleeterrors"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

// preflight checks that every host of the plan is reachable and runs a
// supported container engine. Nothing is changed on the hosts.
func (o *Orchestrator) preflight(ctx context.Context, op *operation) error {
	contextLogger := log.FromContext(ctx)

	// The first role of each host decides which engine is queried
	roles := make(map[string]apiv1.Role)
	for _, target := range op.plan.Targets {
		if _, ok := roles[target.Host.Address]; !ok {
			roles[target.Host.Address] = target.Role
		}
	}

	hosts := op.plan.Hosts()
	errs := o.Executor.Dispatch(ctx, hosts, func(ctx context.Context, host apiv1.Host) error {
		command, err := o.Commands.Build(specs.Request{
			Kind: specs.KindEngineVersion,
			Role: roles[host.Address],
		})
		if err != nil {
			return err
		}

		outcome := o.Executor.Execute(ctx, host, command)
		if err := outcome.AsError(); err != nil {
			return err
		}
		return o.checkEngineVersion(host, outcome)
	})

	var failures []error
	for _, host := range hosts {
		if err := errs[host]; err != nil {
			contextLogger.Warning("Preflight check failed", "host", host.Address, "error", err.Error())
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("preflight checks failed: %w", errors.Join(failures...))
	}
	return nil
}

func (o *Orchestrator) checkEngineVersion(host apiv1.Host, outcome executor.Outcome) error {
	if o.minEngineVersion == nil {
		return nil
	}

	output := strings.TrimSpace(outcome.Stdout)
	version, err := semver.ParseTolerant(output)
	if err != nil {
		return fmt.Errorf("%w on %s: cannot parse version %q: %w",
			fleeterrors.ErrUnsupportedEngine, host.Address, output, err)
	}
	if version.LT(*o.minEngineVersion) {
		return fmt.Errorf("%w on %s: version %s is older than %s",
			fleeterrors.ErrUnsupportedEngine, host.Address, version, o.minEngineVersion)
	}
	return nil
}
