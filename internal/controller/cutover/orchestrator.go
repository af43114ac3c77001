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

// Package cutover contains the orchestrator of the operations changing
// the state of the fleet. Every operation holds the deploy lock, runs
// the lifecycle hooks and cuts the targeted hosts over to the new
// version, gating each one on the health of its new container.
package cutover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blang/semver"
	"github.com/cloudnative-pg/machinery/pkg/log"
	"github.com/google/uuid"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/controller/rollout"
	"github.com/fleetdeck/fleetdeck/pkg/builder"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/fleeterrors"
	"github.com/fleetdeck/fleetdeck/pkg/hooks"
	"github.com/fleetdeck/fleetdeck/pkg/ledger"
	"github.com/fleetdeck/fleetdeck/pkg/lock"
	"github.com/fleetdeck/fleetdeck/pkg/metrics"
	"github.com/fleetdeck/fleetdeck/pkg/sourceversion"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

// ErrNoTargets is returned when the role and host filters match nothing
var ErrNoTargets = errors.New("no host matches the requested roles and hosts")

// Components are the collaborators of the orchestrator
type Components struct {
	// Executor runs the commands on the hosts
	Executor *executor.Executor

	// Commands produces the commands of every role. Defaults to the
	// catalog of the deployment.
	Commands specs.Catalog

	Lock *lock.Manager

	Ledger ledger.Ledger

	// Hooks may be nil when no hook is configured
	Hooks *hooks.Runner

	Builder builder.Builder

	// Resolver computes the version to deploy when it is not requested
	// explicitly
	Resolver sourceversion.Resolver
}

// Orchestrator runs the operations on the fleet of a deployment
type Orchestrator struct {
	Components

	deployment *apiv1.Deployment
	registry   *apiv1.Registry

	performer        string
	destination      string
	lockTimeout      time.Duration
	minEngineVersion *semver.Version
	pacer            *rollout.Manager
	healthSleep      func(ctx context.Context, d time.Duration) error
	now              func() time.Time
}

// Option configures the orchestrator
type Option func(*Orchestrator)

// WithPerformer sets the identity recorded in the lock and in the ledger
func WithPerformer(performer string) Option {
	return func(o *Orchestrator) {
		o.performer = performer
	}
}

// WithDestination sets the destination passed to the hooks
func WithDestination(destination string) Option {
	return func(o *Orchestrator) {
		o.destination = destination
	}
}

// WithLockTimeout sets how long to wait for a lock held by someone else
func WithLockTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.lockTimeout = timeout
	}
}

// WithMinEngineVersion rejects the hosts running an older container engine
func WithMinEngineVersion(version semver.Version) Option {
	return func(o *Orchestrator) {
		o.minEngineVersion = &version
	}
}

// WithRollout replaces the manager pacing the batches of hosts
func WithRollout(pacer *rollout.Manager) Option {
	return func(o *Orchestrator) {
		o.pacer = pacer
	}
}

// WithHealthSleep replaces the wait between two health probes
func WithHealthSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		o.healthSleep = sleep
	}
}

// WithClock replaces the clock used for the boot events
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an orchestrator. The deployment is expected to be
// defaulted and validated.
func New(deployment *apiv1.Deployment, components Components, options ...Option) (*Orchestrator, error) {
	switch {
	case deployment == nil:
		return nil, errors.New("missing deployment")
	case components.Executor == nil:
		return nil, errors.New("missing executor")
	case components.Lock == nil:
		return nil, errors.New("missing deploy lock")
	case components.Ledger == nil:
		return nil, errors.New("missing ledger")
	}

	if components.Commands == nil {
		components.Commands = specs.NewCatalog(deployment)
	}

	o := &Orchestrator{
		Components: components,
		deployment: deployment,
		registry:   apiv1.NewRegistry(deployment),
		performer:  "unknown",
		now:        time.Now,
	}
	for _, option := range options {
		option(o)
	}
	if o.pacer == nil {
		o.pacer = rollout.New(0, deployment.Boot.GetWait())
	}

	return o, nil
}

// Options restrict and tune a state-mutating operation
type Options struct {
	// Roles restricts the operation to these roles, all when empty
	Roles []string

	// Hosts restricts the operation to these hosts, all when empty
	Hosts []string

	// Version overrides the version computed by the resolver
	Version apiv1.Version

	// SkipBuild reuses the image already pushed for the version
	// instead of building it
	SkipBuild bool

	// Message is recorded in the deploy lock
	Message string
}

// operation is the state of a running operation
type operation struct {
	plan      apiv1.DeployPlan
	id        string
	startedAt time.Time
	report    *Report
}

func (o *Orchestrator) newOperation(
	kind apiv1.OperationKind,
	version apiv1.Version,
	options Options,
) (*operation, error) {
	targets, err := o.registry.Targets(options.Roles, options.Hosts)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}

	plan := apiv1.DeployPlan{
		Operation:     kind,
		TargetVersion: version,
		Targets:       targets,
		BuilderMode:   apiv1.BuilderModeReuseImage,
	}
	switch kind {
	case apiv1.OperationDeploy, apiv1.OperationRedeploy:
		plan.Hooks = []string{hooks.PreConnect, hooks.PreDeploy, hooks.PostDeploy}
		if !options.SkipBuild {
			plan.BuilderMode = apiv1.BuilderModeBuildAndPush
			plan.Hooks = []string{hooks.PreConnect, hooks.PreBuild, hooks.PreDeploy, hooks.PostDeploy}
		}
	case apiv1.OperationRollback:
		plan.Hooks = []string{hooks.PreConnect, hooks.PreDeploy, hooks.PostDeploy}
	}

	now := o.now()
	id := uuid.NewString()
	return &operation{
		plan:      plan,
		id:        id,
		startedAt: now,
		report: &Report{
			Operation:   kind,
			OperationID: id,
			Version:     version,
			StartedAt:   now,
		},
	}, nil
}

func (op *operation) runsHook(name string) bool {
	for _, hook := range op.plan.Hooks {
		if hook == name {
			return true
		}
	}
	return false
}

// hookContext describes the operation to the hooks
func (o *Orchestrator) hookContext(op *operation) hooks.Context {
	hosts := op.plan.Hosts()
	addresses := make([]string, 0, len(hosts))
	for _, host := range hosts {
		addresses = append(addresses, host.Address)
	}

	return hooks.Context{
		Service:     o.deployment.Service,
		Version:     op.plan.TargetVersion.String(),
		Performer:   o.performer,
		Command:     string(op.plan.Operation),
		Hosts:       addresses,
		Roles:       op.plan.RoleNames(),
		Destination: o.destination,
		RecordedAt:  op.startedAt,
	}
}

// runHook runs a hook point of the operation, if planned
func (o *Orchestrator) runHook(ctx context.Context, op *operation, name string) error {
	if !op.runsHook(name) {
		return nil
	}

	hookContext := o.hookContext(op)
	if name == hooks.PostDeploy {
		hookContext.Runtime = o.now().Sub(op.startedAt)
	}

	warning, err := o.Hooks.Fire(ctx, name, hookContext)
	if warning != nil {
		op.report.Warnings = append(op.report.Warnings, warning.Error())
	}
	return err
}

// withLock runs the function holding the deploy lock, which is released
// on every exit path
func (o *Orchestrator) withLock(
	ctx context.Context,
	op *operation,
	message string,
	f func(ctx context.Context) error,
) error {
	contextLogger := log.FromContext(ctx)

	if message == "" {
		message = fmt.Sprintf("Automatic %s lock", op.plan.Operation)
	}

	start := o.now()
	record, err := o.Lock.Acquire(ctx, o.performer, message, op.plan.TargetVersion, o.lockTimeout)
	metrics.RecordLockWait(o.deployment.Service, o.now().Sub(start))
	if err != nil {
		return fmt.Errorf("while acquiring the deploy lock: %w", err)
	}
	contextLogger.Debug("Deploy lock acquired")

	defer func() {
		if err := o.Lock.Release(context.WithoutCancel(ctx), record); err != nil {
			contextLogger.Error(err, "Cannot release the deploy lock")
			return
		}
		contextLogger.Debug("Deploy lock released")
	}()

	return f(ctx)
}

// run executes a state-mutating operation, recording its metrics
func (o *Orchestrator) run(
	ctx context.Context,
	op *operation,
	f func(ctx context.Context) error,
) (*Report, error) {
	contextLogger := log.FromContext(ctx).WithValues(
		"operation", op.plan.Operation,
		"operationID", op.id,
		"version", op.plan.TargetVersion,
	)
	ctx = log.IntoContext(ctx, contextLogger)
	contextLogger.Info("Starting operation", "targets", len(op.plan.Targets))

	err := f(ctx)
	op.report.CompletedAt = o.now()

	result := metrics.ResultSuccess
	switch {
	case errors.Is(err, fleeterrors.ErrPartialFailure):
		result = metrics.ResultPartialFailure
	case err != nil:
		result = metrics.ResultAborted
	}
	metrics.RecordOperation(o.deployment.Service, op.plan.Operation, result, op.report.Duration())

	if err != nil {
		contextLogger.Info("Operation failed", "error", err.Error())
	} else {
		contextLogger.Info("Operation completed", "duration", op.report.Duration().Round(time.Second))
	}
	return op.report, err
}
