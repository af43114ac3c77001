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

package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cloudnative-pg/machinery/pkg/log"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/configuration"
	"github.com/fleetdeck/fleetdeck/internal/controller/cutover"
	"github.com/fleetdeck/fleetdeck/pkg/builder"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/executor/local"
	"github.com/fleetdeck/fleetdeck/pkg/executor/ssh"
	"github.com/fleetdeck/fleetdeck/pkg/hooks"
	"github.com/fleetdeck/fleetdeck/pkg/ledger"
	"github.com/fleetdeck/fleetdeck/pkg/lock"
	"github.com/fleetdeck/fleetdeck/pkg/sourceversion"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
	"github.com/fleetdeck/fleetdeck/pkg/store/sqlstore"
)

// Fleet is an orchestrator ready to be used by a subcommand, with the
// resources to be released when the subcommand is done
type Fleet struct {
	*cutover.Orchestrator
	Deployment *apiv1.Deployment

	closers []io.Closer
}

// Close releases the connections opened by the fleet
func (f *Fleet) Close() error {
	var errs []error
	for i := len(f.closers) - 1; i >= 0; i-- {
		errs = append(errs, f.closers[i].Close())
	}
	return errors.Join(errs...)
}

// NewFleet loads the deploy file and creates the orchestrator, honoring
// the global flags, the environment configuration and the settings of
// the deploy file
func NewFleet(ctx context.Context) (*Fleet, error) {
	deployment, err := LoadDeployment()
	if err != nil {
		return nil, err
	}
	return newFleet(ctx, deployment, applySettings(configuration.Current, deployment))
}

// applySettings reads the configuration again, letting the settings of the
// deploy file override the environment
func applySettings(config *configuration.Data, deployment *apiv1.Deployment) *configuration.Data {
	if len(deployment.Settings) > 0 {
		config.ReadConfigMap(deployment.Settings)
	}
	return config
}

func newFleet(ctx context.Context, deployment *apiv1.Deployment, config *configuration.Data) (*Fleet, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	fleet := &Fleet{Deployment: deployment}
	components, err := fleet.components(ctx, config)
	if err != nil {
		_ = fleet.Close()
		return nil, err
	}

	minEngineVersion, err := config.GetMinDockerVersion()
	if err != nil {
		_ = fleet.Close()
		return nil, fmt.Errorf("invalid minimum container engine version: %w", err)
	}

	fleet.Orchestrator, err = cutover.New(
		deployment,
		components,
		cutover.WithPerformer(config.GetPerformer()),
		cutover.WithDestination(Destination),
		cutover.WithLockTimeout(config.GetLockTimeout()),
		cutover.WithMinEngineVersion(minEngineVersion),
	)
	if err != nil {
		_ = fleet.Close()
		return nil, err
	}
	return fleet, nil
}

func (f *Fleet) components(ctx context.Context, config *configuration.Data) (cutover.Components, error) {
	contextLogger := log.FromContext(ctx)

	transport, err := f.transport(config)
	if err != nil {
		return cutover.Components{}, err
	}
	remote := executor.New(
		transport,
		executor.WithConcurrency(config.Concurrency),
		executor.WithCommandTimeout(config.GetCommandTimeout()),
		executor.WithRetry(uint(config.RetryAttempts), time.Second), // #nosec G115
	)

	imageBuilder, err := builder.New(f.Deployment, executor.New(&local.Transport{}))
	if err != nil {
		return cutover.Components{}, err
	}

	lockStore, history, err := f.state(ctx, config, remote)
	if err != nil {
		return cutover.Components{}, err
	}
	contextLogger.Debug("State driver selected", "driver", config.StateDriver)

	return cutover.Components{
		Executor: remote,
		Lock:     lock.NewManager(lockStore, lock.WithTTL(config.GetLockTTL())),
		Ledger:   history,
		Hooks:    hooks.NewRunner(f.hookSources(config)),
		Builder:  imageBuilder,
		Resolver: resolver(),
	}, nil
}

// transport connects to the hosts over SSH. With the memory state driver
// nothing outlives the process, and the commands run on this machine
// against the local container engine.
func (f *Fleet) transport(config *configuration.Data) (executor.Transport, error) {
	if config.StateDriver == configuration.StateDriverMemory {
		return &local.Transport{}, nil
	}

	sshConfig, err := ssh.NewConfig(f.Deployment.SSH)
	if err != nil {
		return nil, err
	}
	transport, err := ssh.New(sshConfig)
	if err != nil {
		return nil, err
	}
	f.closers = append(f.closers, transport)
	return transport, nil
}

// state creates the store of the deploy lock and the ledger
func (f *Fleet) state(
	ctx context.Context,
	config *configuration.Data,
	remote *executor.Executor,
) (lock.Store, ledger.Ledger, error) {
	switch config.StateDriver {
	case configuration.StateDriverHost, "":
		primary, ok := apiv1.NewRegistry(f.Deployment).PrimaryHost()
		if !ok {
			return nil, nil, fmt.Errorf("the deployment has no host to keep the state on")
		}
		files := specs.NewStateFiles(f.Deployment)
		return lock.NewHostStore(remote, primary, files), ledger.NewHostLedger(remote, primary, files), nil

	case configuration.StateDriverSQLite, configuration.StateDriverPostgres:
		db, err := sqlstore.Open(ctx, sqlstore.Dialect(config.StateDriver), config.StateDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("opening the state database: %w", err)
		}
		f.closers = append(f.closers, db)
		return &sqlstore.LockStore{DB: db, Service: f.Deployment.Service},
			sqlstore.NewLedger(db, f.Deployment.Service), nil

	case configuration.StateDriverMemory:
		return lock.NewMemoryStore(), ledger.NewMemoryLedger(), nil

	default:
		return nil, nil, fmt.Errorf("unknown state driver %q", config.StateDriver)
	}
}

// hookSources reads the hooks from the hooks directory first, and from
// the deploy file then
func (f *Fleet) hookSources(config *configuration.Data) hooks.Source {
	path := config.HooksPath
	if path == "" {
		path = f.Deployment.HooksPath
	}
	if path == "" {
		path = apiv1.DefaultHooksPath
	}
	return hooks.MultiSource{
		hooks.DirectorySource{Directory: path},
		hooks.CommandSource(f.Deployment.Hooks),
	}
}

func resolver() sourceversion.Resolver {
	if Version != "" {
		return sourceversion.StaticResolver{Version: apiv1.Version(Version)}
	}
	return sourceversion.GitResolver{Path: "."}
}
