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

package specs

import (
	"fmt"
	"sort"

	"github.com/google/shlex"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
)

const (
	// ServiceLabelName is the label marking every container and image
	// of a service
	ServiceLabelName = "service"

	// RoleLabelName is the label with the role of a container
	RoleLabelName = "role"

	// VersionLabelName is the label with the version of a container
	VersionLabelName = "version"

	dockerBinary = "docker"
)

// DockerProducer produces the docker commands of a deployment
type DockerProducer struct {
	deployment *apiv1.Deployment
}

// NewDockerProducer creates a producer for the passed deployment
func NewDockerProducer(deployment *apiv1.Deployment) *DockerProducer {
	return &DockerProducer{deployment: deployment}
}

// Command implements Producer
func (p *DockerProducer) Command(request Request) (Command, error) {
	role := request.Role
	version := request.Version
	image := p.deployment.AbsoluteImage(version)
	container := p.deployment.ContainerName(role.Name, version)

	switch request.Kind {
	case KindEngineVersion:
		return New(dockerBinary, "version", "--format", "{{.Server.Version}}"), nil

	case KindPull:
		return New(dockerBinary, "pull", image), nil

	case KindImageExists:
		return New(dockerBinary, "image", "inspect", "--format", "{{.Id}}", image), nil

	case KindEnsureImage:
		return Any(
			New(dockerBinary, "image", "inspect", "--format", "{{.Id}}", image),
			New(dockerBinary, "pull", image),
		), nil

	case KindContainerRunning:
		return New(dockerBinary, "ps", "--quiet",
			"--filter", "name=^"+container+"$",
			"--filter", "status=running"), nil

	case KindRun:
		return p.run(role, version)

	case KindHealthProbe:
		if role.HealthCheck == nil {
			return Command{}, fmt.Errorf("role %s has no health check", role.Name)
		}
		// the check may rely on shell operators
		return New(dockerBinary, "exec", container, "sh", "-c", role.HealthCheck.GetCommand()), nil

	case KindLogs:
		lines := request.Lines
		if lines <= 0 {
			lines = apiv1.DefaultHealthCheckLogLines
		}
		return New(dockerBinary, "logs", "--tail", fmt.Sprint(lines), container).WithStderr(), nil

	case KindStopOld:
		return Pipe(
			p.listRoleContainers(role, "{{.Names}}"),
			New("grep", "-v", "-x", container),
			New("xargs", "-r", dockerBinary, "rm", "--force"),
		).Group(), nil

	case KindRemoveContainer:
		return New(dockerBinary, "rm", "--force", container), nil

	case KindListContainers:
		return p.listRoleContainers(role,
			fmt.Sprintf("{{.Names}}\t{{.Label %q}}\t{{.State}}", VersionLabelName)), nil

	case KindRemoveContainers:
		return Pipe(
			p.listRoleContainers(role, "{{.ID}}"),
			New("xargs", "-r", dockerBinary, "rm", "--force"),
		), nil

	case KindRemoveImages:
		return New(dockerBinary, "image", "prune", "--all", "--force",
			"--filter", "label="+ServiceLabelName+"="+p.deployment.Service), nil
	}

	return Command{}, fmt.Errorf("%w: %s", ErrUnsupportedKind, request.Kind)
}

func (p *DockerProducer) listRoleContainers(role apiv1.Role, format string) Command {
	return New(dockerBinary, "ps", "--all",
		"--filter", "label="+ServiceLabelName+"="+p.deployment.Service,
		"--filter", "label="+RoleLabelName+"="+role.Name,
		"--format", format)
}

func (p *DockerProducer) run(role apiv1.Role, version apiv1.Version) (Command, error) {
	args := []string{
		dockerBinary, "run",
		"--detach",
		"--restart", "unless-stopped",
		"--name", p.deployment.ContainerName(role.Name, version),
	}

	labels := p.deployment.MergedLabels(role)
	labels[ServiceLabelName] = p.deployment.Service
	labels[RoleLabelName] = role.Name
	labels[VersionLabelName] = version.String()
	for _, key := range sortedKeys(labels) {
		args = append(args, "--label", key+"="+labels[key])
	}

	env := p.deployment.MergedEnv(role)
	for _, key := range sortedKeys(env) {
		args = append(args, "--env", key+"="+env[key])
	}

	for _, volume := range p.deployment.Volumes {
		args = append(args, "--volume", volume)
	}

	for _, key := range sortedKeys(p.deployment.LogOptions) {
		args = append(args, "--log-opt", key+"="+p.deployment.LogOptions[key])
	}

	args = append(args, p.deployment.AbsoluteImage(version))

	if role.Cmd != "" {
		cmd, err := shlex.Split(role.Cmd)
		if err != nil {
			return Command{}, fmt.Errorf("invalid command of role %s: %w", role.Name, err)
		}
		args = append(args, cmd...)
	}

	return New(args...), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
