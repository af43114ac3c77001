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

// Package v1 contains the data model of fleetdeck: the deployment
// configuration, the role/host registry and the records persisted on
// the fleet (boot events and the deploy lock)
package v1

const (
	// DefaultRoleName is the name given to the role when the servers
	// are listed without grouping them into roles
	DefaultRoleName = "web"

	// DefaultCommandTemplate is the command template used by every role
	// that doesn't specify one
	DefaultCommandTemplate = "docker"

	// DefaultRunDirectory is the directory, relative to the home of the
	// remote user, where the lock and the audit log are kept
	DefaultRunDirectory = ".fleetdeck"

	// DefaultHooksPath is the directory, on the operator machine, where
	// lifecycle hooks are discovered
	DefaultHooksPath = ".fleetdeck/hooks"

	// DefaultSSHUser is the remote user used when not specified
	DefaultSSHUser = "root"

	// DefaultSSHPort is the SSH port used when not specified
	DefaultSSHPort = 22

	// DefaultSSHKeepaliveInterval is the interval between two keepalive
	// requests sent over an idle connection
	DefaultSSHKeepaliveInterval = "30s"

	// DefaultHealthCheckPath is the HTTP path probed inside the container
	DefaultHealthCheckPath = "/up"

	// DefaultHealthCheckPort is the port probed inside the container
	DefaultHealthCheckPort = 3000

	// DefaultHealthCheckInterval is the time between two probes
	DefaultHealthCheckInterval = "1s"

	// DefaultHealthCheckMaxAttempts is the number of probes issued before
	// declaring the container unhealthy
	DefaultHealthCheckMaxAttempts = 7

	// DefaultHealthCheckLogLines is the number of container log lines
	// collected when a container fails its health check
	DefaultHealthCheckLogLines = 50
)

// BuilderDriver is the strategy used to build and push images
type BuilderDriver string

const (
	// BuilderDriverNative builds with the local container engine and
	// pushes the result
	BuilderDriverNative BuilderDriver = "native"

	// BuilderDriverCached builds with buildx, exporting and importing a
	// registry cache
	BuilderDriverCached BuilderDriver = "cached"

	// BuilderDriverRemote builds on a remote builder host reached by
	// buildx over SSH
	BuilderDriverRemote BuilderDriver = "remote"
)

// Deployment is the configuration of one service deployed across
// the fleet. It is read once per operation and treated as immutable.
type Deployment struct {
	// Service is the name of the deployed service, used to name
	// containers and the persisted state
	Service string `json:"service" yaml:"service"`

	// Image is the image repository, without tag
	Image string `json:"image" yaml:"image"`

	// Registry is the registry where images are pushed
	Registry RegistryConfiguration `json:"registry,omitempty" yaml:"registry,omitempty"`

	// Roles lists the roles in declaration order. The first host of the
	// first role is the primary host.
	Roles []RoleConfiguration `json:"roles" yaml:"roles"`

	// SSH contains the parameters used to reach every host
	SSH SSHConfiguration `json:"ssh,omitempty" yaml:"ssh,omitempty"`

	// Builder configures how images are built and pushed
	Builder BuilderConfiguration `json:"builder,omitempty" yaml:"builder,omitempty"`

	// HealthCheck is the health check applied to the primary role. Other
	// roles are only checked if they declare their own.
	HealthCheck *HealthCheckConfiguration `json:"healthcheck,omitempty" yaml:"healthcheck,omitempty"`

	// Boot controls how many hosts of a role are booted at once
	Boot BootConfiguration `json:"boot,omitempty" yaml:"boot,omitempty"`

	// Env is the clear environment passed to every container
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Labels are added to every container
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`

	// Volumes are mounted in every container
	Volumes []string `json:"volumes,omitempty" yaml:"volumes,omitempty"`

	// LogOptions are passed to the container engine log driver
	LogOptions map[string]string `json:"logOptions,omitempty" yaml:"logOptions,omitempty"`

	// RunDirectory is where the lock and the audit log live on the
	// primary host
	RunDirectory string `json:"runDirectory,omitempty" yaml:"runDirectory,omitempty"`

	// HooksPath is the directory where hooks are discovered
	HooksPath string `json:"hooksPath,omitempty" yaml:"hooksPath,omitempty"`

	// Hooks maps a hook name to a command line, in addition to the hooks
	// discovered in HooksPath
	Hooks map[string]string `json:"hooks,omitempty" yaml:"hooks,omitempty"`

	// Settings overrides the tool configuration, keyed by the name of
	// the corresponding environment variable
	Settings map[string]string `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// RegistryConfiguration is the registry where images are stored
type RegistryConfiguration struct {
	// Server is the registry host, inferred from the image when empty
	Server string `json:"server,omitempty" yaml:"server,omitempty"`

	// Username is used to log into the registry
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
}

// RoleConfiguration is a named group of hosts running the same workload
type RoleConfiguration struct {
	// Name is the unique name of the role
	Name string `json:"name" yaml:"name"`

	// Hosts are the addresses of the hosts in this role, in order
	Hosts []string `json:"hosts" yaml:"hosts"`

	// Cmd overrides the container command
	Cmd string `json:"cmd,omitempty" yaml:"cmd,omitempty"`

	// CommandTemplate selects the command template producer
	CommandTemplate string `json:"commandTemplate,omitempty" yaml:"commandTemplate,omitempty"`

	// HealthCheck overrides the health check for this role
	HealthCheck *HealthCheckConfiguration `json:"healthcheck,omitempty" yaml:"healthcheck,omitempty"`

	// Env is merged on top of the deployment env
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// Labels are merged on top of the deployment labels
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// SSHConfiguration contains the connection parameters of the hosts
type SSHConfiguration struct {
	User string `json:"user,omitempty" yaml:"user,omitempty"`

	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// Keepalive enables keepalive requests on idle connections
	Keepalive *bool `json:"keepalive,omitempty" yaml:"keepalive,omitempty"`

	KeepaliveInterval string `json:"keepaliveInterval,omitempty" yaml:"keepaliveInterval,omitempty"`

	// Proxy is a jump host, in the user@host:port form
	Proxy string `json:"proxy,omitempty" yaml:"proxy,omitempty"`

	// KeyFiles are private keys tried after the SSH agent
	KeyFiles []string `json:"keyFiles,omitempty" yaml:"keyFiles,omitempty"`

	// InsecureIgnoreHostKey disables the known_hosts verification
	InsecureIgnoreHostKey bool `json:"insecureIgnoreHostKey,omitempty" yaml:"insecureIgnoreHostKey,omitempty"`
}

// BuilderConfiguration configures the image builder
type BuilderConfiguration struct {
	Driver BuilderDriver `json:"driver,omitempty" yaml:"driver,omitempty"`

	// Arch is the target platform architecture, e.g. amd64
	Arch string `json:"arch,omitempty" yaml:"arch,omitempty"`

	// Remote is the builder host used by the remote driver, as an
	// ssh:// URL
	Remote string `json:"remote,omitempty" yaml:"remote,omitempty"`

	// Cache is the cache reference used by the cached driver
	Cache string `json:"cache,omitempty" yaml:"cache,omitempty"`

	Context string `json:"context,omitempty" yaml:"context,omitempty"`

	Dockerfile string `json:"dockerfile,omitempty" yaml:"dockerfile,omitempty"`

	Args map[string]string `json:"args,omitempty" yaml:"args,omitempty"`
}

// HealthCheckConfiguration is the command-based readiness check of a
// freshly started container
type HealthCheckConfiguration struct {
	// Cmd is executed inside the container. When empty an HTTP request
	// to Port and Path is issued.
	Cmd string `json:"cmd,omitempty" yaml:"cmd,omitempty"`

	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// Interval is the time between two probes, e.g. "1s"
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`

	MaxAttempts int `json:"maxAttempts,omitempty" yaml:"maxAttempts,omitempty"`

	// LogLines is the number of container log lines reported when the
	// check fails
	LogLines int `json:"logLines,omitempty" yaml:"logLines,omitempty"`
}

// BootConfiguration limits how many hosts of a role are cut over at once
type BootConfiguration struct {
	// Limit is either a number of hosts or a percentage like "25%".
	// Empty means every host at once.
	Limit string `json:"limit,omitempty" yaml:"limit,omitempty"`

	// Wait is the pause between two batches, e.g. "10s"
	Wait string `json:"wait,omitempty" yaml:"wait,omitempty"`
}
