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

// Package configuration contains the configuration of fleetdeck, reading
// it from environment variables and from the settings of the deploy file
package configuration

import (
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/blang/semver"

	"github.com/fleetdeck/fleetdeck/pkg/configparser"
)

const (
	// StateDriverHost keeps the lock and the ledger on the primary host
	StateDriverHost = "host"

	// StateDriverSQLite keeps the lock and the ledger in a SQLite database
	StateDriverSQLite = "sqlite"

	// StateDriverPostgres keeps the lock and the ledger in PostgreSQL
	StateDriverPostgres = "postgres"

	// StateDriverMemory keeps the lock and the ledger in the process
	// memory. Only useful for dry runs and tests.
	StateDriverMemory = "memory"
)

// DefaultMinDockerVersion is the oldest container engine supported
const DefaultMinDockerVersion = "20.10.0"

// Data is the struct containing the configuration of fleetdeck.
// Usually the fleetdeck code will use the "Current" configuration.
type Data struct {
	// Concurrency is the maximum number of hosts contacted at the
	// same time
	Concurrency int `json:"concurrency" env:"FLEETDECK_CONCURRENCY"`

	// CommandTimeout is the maximum duration of a single remote command,
	// in seconds. Zero means no limit.
	CommandTimeout int `json:"commandTimeout" env:"FLEETDECK_COMMAND_TIMEOUT"`

	// RetryAttempts is the number of times a command is tried when the
	// transport fails with a transient error
	RetryAttempts int `json:"retryAttempts" env:"FLEETDECK_RETRY_ATTEMPTS"`

	// LockTimeout is the time, in seconds, spent waiting for a deploy lock
	// held by someone else. Zero means failing immediately.
	LockTimeout int `json:"lockTimeout" env:"FLEETDECK_LOCK_TIMEOUT"`

	// LockTTL is the lease of the deploy lock, in seconds. Zero means the
	// lock never expires and needs to be released explicitly.
	LockTTL int `json:"lockTTL" env:"FLEETDECK_LOCK_TTL"`

	// StateDriver is where the deploy lock and the ledger are kept
	StateDriver string `json:"stateDriver" env:"FLEETDECK_STATE_DRIVER"`

	// StateDSN is the data source name of the SQL state drivers
	StateDSN string `json:"stateDSN" env:"FLEETDECK_STATE_DSN"`

	// HooksPath overrides the hooks directory of the deploy file
	HooksPath string `json:"hooksPath" env:"FLEETDECK_HOOKS_PATH"`

	// MinDockerVersion is the oldest container engine version accepted on
	// the hosts
	MinDockerVersion string `json:"minDockerVersion" env:"FLEETDECK_MIN_DOCKER_VERSION"`

	// Performer is the identity recorded in the lock and in the ledger.
	// Defaults to the name of the local user.
	Performer string `json:"performer" env:"FLEETDECK_PERFORMER"`
}

// Current is the configuration used by fleetdeck
var Current = NewConfiguration()

// newDefaultConfig creates a configuration holding the defaults
func newDefaultConfig() *Data {
	return &Data{
		Concurrency:      10,
		CommandTimeout:   600,
		RetryAttempts:    3,
		LockTimeout:      0,
		LockTTL:          0,
		StateDriver:      StateDriverHost,
		MinDockerVersion: DefaultMinDockerVersion,
	}
}

// NewConfiguration create a new fleetdeck configuration by reading
// the environment variables
func NewConfiguration() *Data {
	configuration := newDefaultConfig()
	configuration.ReadConfigMap(nil)
	return configuration
}

// ReadConfigMap reads the configuration from the environment and the
// passed settings, the settings having the precedence
func (config *Data) ReadConfigMap(data map[string]string) {
	configparser.ReadConfigMap(config, newDefaultConfig(), data)
}

// ReadConfigMapWithEnv is like ReadConfigMap, but reads the environment
// from the passed source
func (config *Data) ReadConfigMapWithEnv(data map[string]string, env configparser.EnvironmentSource) {
	configparser.ReadConfigMapWithEnv(config, newDefaultConfig(), data, env)
}

// GetCommandTimeout returns the maximum duration of a remote command
func (config *Data) GetCommandTimeout() time.Duration {
	return time.Duration(config.CommandTimeout) * time.Second
}

// GetLockTimeout returns the time spent waiting for the deploy lock
func (config *Data) GetLockTimeout() time.Duration {
	return time.Duration(config.LockTimeout) * time.Second
}

// GetLockTTL returns the lease of the deploy lock
func (config *Data) GetLockTTL() time.Duration {
	return time.Duration(config.LockTTL) * time.Second
}

// GetMinDockerVersion returns the parsed minimum container engine version
func (config *Data) GetMinDockerVersion() (semver.Version, error) {
	return semver.ParseTolerant(config.MinDockerVersion)
}

// GetPerformer returns the identity of the operator
func (config *Data) GetPerformer() string {
	if config.Performer != "" {
		return config.Performer
	}
	if current, err := user.Current(); err == nil && current.Username != "" {
		return current.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

// Validate checks the configuration is usable
func (config *Data) Validate() error {
	if config.Concurrency < 1 {
		return fmt.Errorf("FLEETDECK_CONCURRENCY must be at least 1, got %d", config.Concurrency)
	}
	if config.CommandTimeout < 0 || config.LockTimeout < 0 || config.LockTTL < 0 {
		return fmt.Errorf("timeouts can't be negative")
	}
	if config.RetryAttempts < 1 {
		return fmt.Errorf("FLEETDECK_RETRY_ATTEMPTS must be at least 1, got %d", config.RetryAttempts)
	}

	switch config.StateDriver {
	case StateDriverHost, StateDriverMemory:
	case StateDriverSQLite, StateDriverPostgres:
		if config.StateDSN == "" {
			return fmt.Errorf("the %s state driver requires FLEETDECK_STATE_DSN", config.StateDriver)
		}
	default:
		return fmt.Errorf("unknown state driver %q", config.StateDriver)
	}

	if _, err := config.GetMinDockerVersion(); err != nil {
		return fmt.Errorf("invalid FLEETDECK_MIN_DOCKER_VERSION %q: %w", config.MinDockerVersion, err)
	}

	return nil
}
