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

// Package fake contains an in-memory fleet of hosts, acting both as the
// producer and as the transport of the commands. It keeps track of the
// containers and images of every host and of the images pushed to the
// registry, and is used to test the orchestration without a container
// engine.
package fake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/kballard/go-shellquote"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

const binary = "fake"

// ErrUnreachable is returned when executing commands on an unreachable
// host
var ErrUnreachable = errors.New("dial tcp: connect: connection refused")

// Container is a container running on a fake host
type Container struct {
	Role    string
	Version apiv1.Version
	Running bool
}

// Name is the name of the container
func (c Container) Name() string {
	return c.Role + "-" + c.Version.String()
}

type machine struct {
	containers map[string]*Container
	images     map[apiv1.Version]struct{}
}

// Fleet is a set of fake hosts. The zero value is not usable, use
// NewFleet.
type Fleet struct {
	m sync.Mutex

	machines map[string]*machine
	registry map[apiv1.Version]struct{}

	// EngineVersion is the container engine version reported by every host
	EngineVersion string

	unhealthy   map[string]struct{}
	unreachable map[string]struct{}
	commands    map[string][]string
	builds      []apiv1.Version
}

// NewFleet creates an empty fleet
func NewFleet() *Fleet {
	return &Fleet{
		machines:      make(map[string]*machine),
		registry:      make(map[apiv1.Version]struct{}),
		EngineVersion: "27.3.1",
		unhealthy:     make(map[string]struct{}),
		unreachable:   make(map[string]struct{}),
		commands:      make(map[string][]string),
	}
}

func (f *Fleet) machine(address string) *machine {
	result, ok := f.machines[address]
	if !ok {
		result = &machine{
			containers: make(map[string]*Container),
			images:     make(map[apiv1.Version]struct{}),
		}
		f.machines[address] = result
	}
	return result
}

// SetUnhealthy makes the containers started on the host fail their
// health probes
func (f *Fleet) SetUnhealthy(address string, unhealthy bool) {
	f.m.Lock()
	defer f.m.Unlock()
	if unhealthy {
		f.unhealthy[address] = struct{}{}
	} else {
		delete(f.unhealthy, address)
	}
}

// SetUnreachable makes the transport fail on the host
func (f *Fleet) SetUnreachable(address string, unreachable bool) {
	f.m.Lock()
	defer f.m.Unlock()
	if unreachable {
		f.unreachable[address] = struct{}{}
	} else {
		delete(f.unreachable, address)
	}
}

// Push adds the image of a version to the registry
func (f *Fleet) Push(version apiv1.Version) {
	f.m.Lock()
	defer f.m.Unlock()
	f.registry[version] = struct{}{}
}

// Containers returns the containers of a host, sorted by name
func (f *Fleet) Containers(address string) []Container {
	f.m.Lock()
	defer f.m.Unlock()

	result := make([]Container, 0)
	for _, container := range f.machine(address).containers {
		result = append(result, *container)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

// Running returns the versions of the running containers of a role on
// a host
func (f *Fleet) Running(address, role string) []apiv1.Version {
	var result []apiv1.Version
	for _, container := range f.Containers(address) {
		if container.Role == role && container.Running {
			result = append(result, container.Version)
		}
	}
	return result
}

// Images returns the versions whose image is available on a host
func (f *Fleet) Images(address string) []apiv1.Version {
	f.m.Lock()
	defer f.m.Unlock()

	result := make([]apiv1.Version, 0)
	for version := range f.machine(address).images {
		result = append(result, version)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Commands returns the command kinds executed on a host, in order
func (f *Fleet) Commands(address string) []string {
	f.m.Lock()
	defer f.m.Unlock()
	return append([]string(nil), f.commands[address]...)
}

// Builds returns the versions built, in order
func (f *Fleet) Builds() []apiv1.Version {
	f.m.Lock()
	defer f.m.Unlock()
	return append([]apiv1.Version(nil), f.builds...)
}

// Command implements specs.Producer
func (f *Fleet) Command(request specs.Request) (specs.Command, error) {
	args := []string{binary, string(request.Kind), request.Role.Name, request.Version.String()}
	if request.Kind == specs.KindLogs {
		args = append(args, strconv.Itoa(request.Lines))
	}
	return specs.New(args...), nil
}

// Execute implements executor.Transport
func (f *Fleet) Execute(ctx context.Context, host apiv1.Host, command specs.Command) (executor.Result, error) {
	if err := ctx.Err(); err != nil {
		return executor.Result{}, err
	}

	f.m.Lock()
	defer f.m.Unlock()

	if _, ok := f.unreachable[host.Address]; ok {
		return executor.Result{}, ErrUnreachable
	}

	fields, err := shellquote.Split(command.String())
	if err != nil || len(fields) < 4 || fields[0] != binary {
		return executor.Result{}, fmt.Errorf("unexpected command %q", command.String())
	}
	kind, role, version := specs.Kind(fields[1]), fields[2], apiv1.Version(fields[3])
	f.commands[host.Address] = append(f.commands[host.Address], string(kind))

	m := f.machine(host.Address)
	name := Container{Role: role, Version: version}.Name()
	_, hasImage := m.images[version]

	switch kind {
	case specs.KindEngineVersion:
		return executor.Result{Stdout: f.EngineVersion + "\n"}, nil

	case specs.KindPull:
		return f.pull(m, version), nil

	case specs.KindImageExists:
		if !hasImage {
			return executor.Result{ExitCode: 1, Stderr: "No such image\n"}, nil
		}
		return executor.Result{}, nil

	case specs.KindEnsureImage:
		if hasImage {
			return executor.Result{}, nil
		}
		return f.pull(m, version), nil

	case specs.KindContainerRunning:
		if container, ok := m.containers[name]; ok && container.Running {
			return executor.Result{Stdout: name + "\n"}, nil
		}
		return executor.Result{}, nil

	case specs.KindRun:
		if !hasImage {
			return executor.Result{ExitCode: 125, Stderr: "Unable to find image\n"}, nil
		}
		if _, ok := m.containers[name]; ok {
			return executor.Result{ExitCode: 125, Stderr: "Conflict. The container name is already in use\n"}, nil
		}
		m.containers[name] = &Container{Role: role, Version: version, Running: true}
		return executor.Result{Stdout: name + "\n"}, nil

	case specs.KindHealthProbe:
		if _, ok := f.unhealthy[host.Address]; ok {
			return executor.Result{ExitCode: 1, Stderr: "connection refused\n"}, nil
		}
		if container, ok := m.containers[name]; !ok || !container.Running {
			return executor.Result{ExitCode: 1, Stderr: "container not running\n"}, nil
		}
		return executor.Result{}, nil

	case specs.KindLogs:
		return executor.Result{Stdout: "booting " + name + "\nlistening\n"}, nil

	case specs.KindStopOld:
		for key, container := range m.containers {
			if container.Role == role && key != name {
				delete(m.containers, key)
			}
		}
		return executor.Result{}, nil

	case specs.KindRemoveContainer:
		delete(m.containers, name)
		return executor.Result{}, nil

	case specs.KindListContainers:
		var stdout strings.Builder
		for _, key := range sortedNames(m.containers) {
			container := m.containers[key]
			if container.Role != role {
				continue
			}
			state := "exited"
			if container.Running {
				state = "running"
			}
			fmt.Fprintf(&stdout, "%s\t%s\t%s\n", key, container.Version, state)
		}
		return executor.Result{Stdout: stdout.String()}, nil

	case specs.KindRemoveContainers:
		for key, container := range m.containers {
			if container.Role == role {
				delete(m.containers, key)
			}
		}
		return executor.Result{}, nil

	case specs.KindRemoveImages:
		m.images = make(map[apiv1.Version]struct{})
		return executor.Result{}, nil
	}

	return executor.Result{ExitCode: 127, Stderr: "unknown command " + string(kind) + "\n"}, nil
}

func (f *Fleet) pull(m *machine, version apiv1.Version) executor.Result {
	if _, ok := f.registry[version]; !ok {
		return executor.Result{ExitCode: 1, Stderr: "manifest unknown\n"}
	}
	m.images[version] = struct{}{}
	return executor.Result{}
}

func sortedNames(containers map[string]*Container) []string {
	result := make([]string, 0, len(containers))
	for name := range containers {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Prepare implements builder.Builder
func (f *Fleet) Prepare(context.Context) error {
	return nil
}

// BuildAndPush implements builder.Builder
func (f *Fleet) BuildAndPush(_ context.Context, version apiv1.Version) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.builds = append(f.builds, version)
	f.registry[version] = struct{}{}
	return nil
}

// Exists implements builder.Builder
func (f *Fleet) Exists(_ context.Context, version apiv1.Version) (bool, error) {
	f.m.Lock()
	defer f.m.Unlock()
	_, ok := f.registry[version]
	return ok, nil
}

// Remove implements builder.Builder
func (f *Fleet) Remove(context.Context) error {
	return nil
}
