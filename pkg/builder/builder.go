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

// Package builder builds the image of a version with the container
// engine of the operator machine and pushes it to the registry
package builder

import (
	"context"
	"fmt"
	"sort"

	"github.com/cloudnative-pg/machinery/pkg/log"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/executor/local"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

// Builder builds and pushes the images
type Builder interface {
	// Prepare creates what the builder needs, if anything
	Prepare(ctx context.Context) error

	// BuildAndPush builds the image of the version and pushes it,
	// together with the latest tag
	BuildAndPush(ctx context.Context, version apiv1.Version) error

	// Exists is true when the registry has the image of the version
	Exists(ctx context.Context, version apiv1.Version) (bool, error)

	// Remove deletes what Prepare created
	Remove(ctx context.Context) error
}

// Commands produces the command lines of a build strategy
type Commands interface {
	Prepare() specs.Command
	Build(version apiv1.Version) specs.Command
	Remove() specs.Command
}

// New creates the builder configured in the deployment, running its
// commands on the operator machine through the passed executor
func New(deployment *apiv1.Deployment, e *executor.Executor) (*CommandBuilder, error) {
	var commands Commands
	switch deployment.Builder.Driver {
	case apiv1.BuilderDriverNative, "":
		commands = Native{Deployment: deployment}
	case apiv1.BuilderDriverCached:
		commands = Cached{Deployment: deployment}
	case apiv1.BuilderDriverRemote:
		commands = Remote{Deployment: deployment}
	default:
		return nil, fmt.Errorf("unsupported builder driver %q", deployment.Builder.Driver)
	}

	return &CommandBuilder{
		Commands:   commands,
		Deployment: deployment,
		Executor:   e,
	}, nil
}

// CommandBuilder implements Builder running the commands of a strategy
type CommandBuilder struct {
	Commands   Commands
	Deployment *apiv1.Deployment
	Executor   *executor.Executor
}

func (b *CommandBuilder) run(ctx context.Context, command specs.Command) error {
	if command.IsEmpty() {
		return nil
	}
	return b.Executor.Execute(ctx, local.Host, command).AsError()
}

// Prepare implements Builder
func (b *CommandBuilder) Prepare(ctx context.Context) error {
	return b.run(ctx, b.Commands.Prepare())
}

// BuildAndPush implements Builder
func (b *CommandBuilder) BuildAndPush(ctx context.Context, version apiv1.Version) error {
	log.FromContext(ctx).Info("Building image", "image", b.Deployment.AbsoluteImage(version))
	if err := b.run(ctx, b.Commands.Build(version)); err != nil {
		return fmt.Errorf("while building %s: %w", b.Deployment.AbsoluteImage(version), err)
	}
	return nil
}

// Exists implements Builder
func (b *CommandBuilder) Exists(ctx context.Context, version apiv1.Version) (bool, error) {
	outcome := b.Executor.Execute(ctx, local.Host,
		specs.New("docker", "manifest", "inspect", b.Deployment.AbsoluteImage(version)))
	if outcome.Err != nil {
		return false, outcome.AsError()
	}
	return outcome.ExitCode == 0, nil
}

// Remove implements Builder
func (b *CommandBuilder) Remove(ctx context.Context) error {
	return b.run(ctx, b.Commands.Remove())
}

// buildOptions are the options shared by every strategy
func buildOptions(deployment *apiv1.Deployment, version apiv1.Version) []string {
	options := []string{
		"--tag", deployment.AbsoluteImage(version),
		"--tag", deployment.LatestImage(),
		"--label", specs.ServiceLabelName + "=" + deployment.Service,
	}

	if arch := deployment.Builder.Arch; arch != "" {
		options = append(options, "--platform", "linux/"+arch)
	}

	keys := make([]string, 0, len(deployment.Builder.Args))
	for key := range deployment.Builder.Args {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		options = append(options, "--build-arg", key+"="+deployment.Builder.Args[key])
	}

	if dockerfile := deployment.Builder.Dockerfile; dockerfile != "" {
		options = append(options, "--file", dockerfile)
	}

	return options
}

func buildContext(deployment *apiv1.Deployment) string {
	if deployment.Builder.Context != "" {
		return deployment.Builder.Context
	}
	return "."
}
