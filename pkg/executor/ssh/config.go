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

package ssh

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
)

const defaultDialTimeout = 30 * time.Second

// Config contains the parameters used to connect to the hosts
type Config struct {
	// User is used for hosts not specifying one
	User string

	// Port is used for hosts not specifying one
	Port int

	// Proxy is the jump host, empty for direct connections
	Proxy *Endpoint

	// KeyFiles are private keys tried after the SSH agent
	KeyFiles []string

	// KnownHostsFile is used to verify the host keys
	KnownHostsFile string

	// InsecureIgnoreHostKey disables the host key verification
	InsecureIgnoreHostKey bool

	// KeepaliveInterval is the interval between keepalive requests
	// on idle connections, zero to disable them
	KeepaliveInterval time.Duration

	DialTimeout time.Duration
}

// Endpoint is a user@host:port triple
type Endpoint struct {
	User    string
	Address string
	Port    int
}

// HostPort returns the address to dial
func (e Endpoint) HostPort() string {
	return net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

// ParseEndpoint parses the [user@]host[:port] form, using the defaults
// for the missing parts
func ParseEndpoint(value, defaultUser string, defaultPort int) (*Endpoint, error) {
	endpoint := &Endpoint{User: defaultUser, Port: defaultPort}

	if user, rest, found := strings.Cut(value, "@"); found {
		endpoint.User = user
		value = rest
	}

	host, port, err := net.SplitHostPort(value)
	if err != nil {
		// No port
		endpoint.Address = value
	} else {
		endpoint.Address = host
		if endpoint.Port, err = strconv.Atoi(port); err != nil {
			return nil, fmt.Errorf("invalid port in %q: %w", value, err)
		}
	}

	if endpoint.Address == "" {
		return nil, fmt.Errorf("missing host in %q", value)
	}
	return endpoint, nil
}

// NewConfig creates the connection parameters from the SSH section of
// the deployment
func NewConfig(configuration apiv1.SSHConfiguration) (Config, error) {
	config := Config{
		User:                  configuration.User,
		Port:                  configuration.Port,
		KeyFiles:              configuration.KeyFiles,
		InsecureIgnoreHostKey: configuration.InsecureIgnoreHostKey,
		KeepaliveInterval:     configuration.GetKeepaliveInterval(),
		DialTimeout:           defaultDialTimeout,
	}

	if home, err := os.UserHomeDir(); err == nil {
		config.KnownHostsFile = filepath.Join(home, ".ssh", "known_hosts")
	}

	if configuration.Proxy != "" {
		proxy, err := ParseEndpoint(configuration.Proxy, configuration.User, apiv1.DefaultSSHPort)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SSH proxy: %w", err)
		}
		config.Proxy = proxy
	}

	return config, nil
}

// endpointOf returns the endpoint of a host, applying the defaults
func (c Config) endpointOf(host apiv1.Host) Endpoint {
	endpoint := Endpoint{User: host.User, Address: host.Address, Port: host.Port}
	if endpoint.User == "" {
		endpoint.User = c.User
	}
	if endpoint.Port == 0 {
		endpoint.Port = c.Port
	}
	if endpoint.Port == 0 {
		endpoint.Port = apiv1.DefaultSSHPort
	}
	return endpoint
}
