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

package builder

import (
	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

// Native builds with the local engine and pushes both tags
type Native struct {
	Deployment *apiv1.Deployment
}

// Prepare implements Commands
func (Native) Prepare() specs.Command {
	return specs.Command{}
}

// Build implements Commands
func (n Native) Build(version apiv1.Version) specs.Command {
	args := append([]string{"docker", "build"}, buildOptions(n.Deployment, version)...)
	args = append(args, buildContext(n.Deployment))
	return specs.All(
		specs.New(args...),
		specs.New("docker", "push", n.Deployment.AbsoluteImage(version)),
		specs.New("docker", "push", n.Deployment.LatestImage()),
	)
}

// Remove implements Commands
func (Native) Remove() specs.Command {
	return specs.Command{}
}

// Cached builds with buildx, exporting the layers to a registry cache
type Cached struct {
	Deployment *apiv1.Deployment
}

func (c Cached) builderName() string {
	return "fleetdeck-" + c.Deployment.Service + "-cached"
}

func (c Cached) cacheRef() string {
	if c.Deployment.Builder.Cache != "" {
		return c.Deployment.Builder.Cache
	}
	return c.Deployment.Image + "-build-cache"
}

// Prepare implements Commands
func (c Cached) Prepare() specs.Command {
	return specs.Any(
		specs.New("docker", "buildx", "inspect", c.builderName()),
		specs.New("docker", "buildx", "create", "--name", c.builderName(), "--driver", "docker-container"),
	)
}

// Build implements Commands
func (c Cached) Build(version apiv1.Version) specs.Command {
	args := []string{"docker", "buildx", "build", "--push", "--builder", c.builderName()}
	args = append(args, buildOptions(c.Deployment, version)...)
	args = append(args,
		"--cache-from", "type=registry,ref="+c.cacheRef(),
		"--cache-to", "type=registry,ref="+c.cacheRef()+",mode=max",
		buildContext(c.Deployment),
	)
	return specs.New(args...)
}

// Remove implements Commands
func (c Cached) Remove() specs.Command {
	return specs.New("docker", "buildx", "rm", c.builderName())
}

// Remote builds on a remote engine reached over SSH
type Remote struct {
	Deployment *apiv1.Deployment
}

func (r Remote) builderName() string {
	return "fleetdeck-" + r.Deployment.Service + "-remote"
}

// Prepare implements Commands
func (r Remote) Prepare() specs.Command {
	return specs.Any(
		specs.New("docker", "buildx", "inspect", r.builderName()),
		specs.New("docker", "buildx", "create", "--name", r.builderName(),
			"--driver", "docker-container", r.Deployment.Builder.Remote),
	)
}

// Build implements Commands
func (r Remote) Build(version apiv1.Version) specs.Command {
	args := []string{"docker", "buildx", "build", "--push", "--builder", r.builderName()}
	args = append(args, buildOptions(r.Deployment, version)...)
	args = append(args, buildContext(r.Deployment))
	return specs.New(args...)
}

// Remove implements Commands
func (r Remote) Remove() specs.Command {
	return specs.New("docker", "buildx", "rm", r.builderName())
}
