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
	"errors"
	"fmt"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
)

// Kind is the kind of a command requested to a producer
type Kind string

const (
	// KindEngineVersion prints the version of the container engine
	KindEngineVersion Kind = "engine-version"

	// KindPull pulls the image of a version
	KindPull Kind = "pull"

	// KindImageExists succeeds when the image of a version is available
	// on the host
	KindImageExists Kind = "image-exists"

	// KindEnsureImage pulls the image of a version unless already available
	KindEnsureImage Kind = "ensure-image"

	// KindContainerRunning prints the container of a version when running
	KindContainerRunning Kind = "container-running"

	// KindRun starts the container of a version
	KindRun Kind = "run"

	// KindHealthProbe probes the health of the container of a version
	KindHealthProbe Kind = "health-probe"

	// KindLogs prints the last lines of the log of the container of a version
	KindLogs Kind = "logs"

	// KindStopOld stops and removes the containers of the role not
	// running the requested version
	KindStopOld Kind = "stop-old"

	// KindRemoveContainer removes the container of a version
	KindRemoveContainer Kind = "remove-container"

	// KindListContainers prints the containers of the role, one per line
	// as "name<TAB>version<TAB>state"
	KindListContainers Kind = "list-containers"

	// KindRemoveContainers removes every container of the role
	KindRemoveContainers Kind = "remove-containers"

	// KindRemoveImages removes every image of the service
	KindRemoveImages Kind = "remove-images"
)

// ErrUnsupportedKind is returned by producers not knowing how to build a
// command
var ErrUnsupportedKind = errors.New("unsupported command kind")

// Request contains the parameters of a command
type Request struct {
	Kind Kind

	// Role is the role the command acts upon
	Role apiv1.Role

	// Version is the version the command acts upon, when relevant
	Version apiv1.Version

	// Lines is the number of log lines requested by KindLogs
	Lines int
}

// Producer turns a command request into an executable command. The
// producer of a role is chosen by its command template.
type Producer interface {
	Command(request Request) (Command, error)
}

// ProducerFunc is a function implementing Producer
type ProducerFunc func(request Request) (Command, error)

// Command implements Producer
func (f ProducerFunc) Command(request Request) (Command, error) {
	return f(request)
}

// Catalog maps the command templates to their producers
type Catalog map[string]Producer

// NewCatalog creates the catalog of the producers available for a
// deployment
func NewCatalog(deployment *apiv1.Deployment) Catalog {
	return Catalog{
		apiv1.DefaultCommandTemplate: NewDockerProducer(deployment),
	}
}

// For returns the producer of a role
func (c Catalog) For(role apiv1.Role) (Producer, error) {
	template := role.CommandTemplate
	if template == "" {
		template = apiv1.DefaultCommandTemplate
	}
	producer, ok := c[template]
	if !ok {
		return nil, fmt.Errorf("role %s: unknown command template %q", role.Name, template)
	}
	return producer, nil
}

// Build requests a command to the producer of the role
func (c Catalog) Build(request Request) (Command, error) {
	producer, err := c.For(request.Role)
	if err != nil {
		return Command{}, err
	}
	command, err := producer.Command(request)
	if err != nil {
		return Command{}, fmt.Errorf("building %s command for role %s: %w", request.Kind, request.Role.Name, err)
	}
	return command, nil
}
