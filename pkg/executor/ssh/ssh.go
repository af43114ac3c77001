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

// Package ssh contains the transport executing commands on the hosts of
// the fleet over SSH. Connections are opened lazily and reused by every
// command sent to the same host.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/cloudnative-pg/machinery/pkg/fileutils"
	"github.com/cloudnative-pg/machinery/pkg/log"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

// ErrNoAuthMethod is returned when neither an agent nor a key file is
// available
var ErrNoAuthMethod = errors.New("no SSH authentication method available")

// Transport is an executor.Transport over SSH. It is safe to use
// concurrently.
type Transport struct {
	config       Config
	authMethods  []ssh.AuthMethod
	hostKeyCheck ssh.HostKeyCallback

	// dialer opens a connection, defaults to dial
	dialer func(ctx context.Context, endpoint Endpoint) (*ssh.Client, error)

	m       sync.Mutex
	clients map[string]*connection
	closed  bool

	proxyMutex sync.Mutex
	proxy      *ssh.Client
}

// connection is a connection being opened or already open. The client
// and the error are set before ready is closed.
type connection struct {
	ready  chan struct{}
	client *ssh.Client
	err    error
}

// New creates a transport with the passed connection parameters
func New(config Config) (*Transport, error) {
	authMethods, err := buildAuthMethods(config.KeyFiles)
	if err != nil {
		return nil, err
	}

	hostKeyCheck, err := buildHostKeyCallback(config)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		config:       config,
		authMethods:  authMethods,
		hostKeyCheck: hostKeyCheck,
		clients:      make(map[string]*connection),
	}
	t.dialer = t.dial
	return t, nil
}

func buildAuthMethods(keyFiles []string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if socket := os.Getenv("SSH_AUTH_SOCK"); socket != "" {
		if conn, err := net.Dial("unix", socket); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	var signers []ssh.Signer
	for _, keyFile := range keyFiles {
		data, err := os.ReadFile(keyFile) // #nosec G304
		if err != nil {
			return nil, fmt.Errorf("reading SSH key %s: %w", keyFile, err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parsing SSH key %s: %w", keyFile, err)
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}

	if len(methods) == 0 {
		return nil, ErrNoAuthMethod
	}
	return methods, nil
}

func buildHostKeyCallback(config Config) (ssh.HostKeyCallback, error) {
	if config.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil // #nosec G106
	}

	exists, err := fileutils.FileExists(config.KnownHostsFile)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("known hosts file %q not found, and host key verification is enabled",
			config.KnownHostsFile)
	}

	return knownhosts.New(config.KnownHostsFile)
}

func (t *Transport) clientConfig(user string) *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            user,
		Auth:            t.authMethods,
		HostKeyCallback: t.hostKeyCheck,
		Timeout:         t.config.DialTimeout,
	}
}

// client returns the connection to the host, opening it when needed.
// Hosts are dialed concurrently, callers asking for a host being dialed
// wait for the same attempt.
func (t *Transport) client(ctx context.Context, host apiv1.Host) (*ssh.Client, error) {
	endpoint := t.config.endpointOf(host)
	key := endpoint.User + "@" + endpoint.HostPort()

	t.m.Lock()
	if t.closed {
		t.m.Unlock()
		return nil, net.ErrClosed
	}
	conn, found := t.clients[key]
	if !found {
		conn = &connection{ready: make(chan struct{})}
		t.clients[key] = conn
	}
	t.m.Unlock()

	if !found {
		t.open(ctx, key, endpoint, conn)
	}

	select {
	case <-conn.ready:
		return conn.client, conn.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// open dials a connection, dropping it from the cache when it fails so
// that the next attempt dials again
func (t *Transport) open(ctx context.Context, key string, endpoint Endpoint, conn *connection) {
	client, err := t.dialer(ctx, endpoint)

	t.m.Lock()
	switch {
	case err != nil:
		if t.clients[key] == conn {
			delete(t.clients, key)
		}
	case t.closed:
		_ = client.Close()
		client, err = nil, net.ErrClosed
	}
	conn.client, conn.err = client, err
	t.m.Unlock()
	close(conn.ready)

	if client != nil && t.config.KeepaliveInterval > 0 {
		go t.keepalive(ctx, key, client)
	}
}

func (t *Transport) dial(ctx context.Context, endpoint Endpoint) (*ssh.Client, error) {
	contextLogger := log.FromContext(ctx).WithValues("host", endpoint.Address)
	config := t.clientConfig(endpoint.User)

	if t.config.Proxy == nil {
		contextLogger.Debug("Connecting", "address", endpoint.HostPort())
		dialer := net.Dialer{Timeout: t.config.DialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", endpoint.HostPort())
		if err != nil {
			return nil, err
		}
		return newClient(conn, endpoint.HostPort(), config)
	}

	proxy, err := t.proxyClient(ctx)
	if err != nil {
		return nil, err
	}

	contextLogger.Debug("Connecting through the proxy", "address", endpoint.HostPort())
	conn, err := proxy.Dial("tcp", endpoint.HostPort())
	if err != nil {
		return nil, err
	}
	return newClient(conn, endpoint.HostPort(), config)
}

// proxyClient returns the connection to the jump host, opening it once
func (t *Transport) proxyClient(ctx context.Context) (*ssh.Client, error) {
	t.proxyMutex.Lock()
	defer t.proxyMutex.Unlock()

	if t.proxy != nil {
		return t.proxy, nil
	}

	log.FromContext(ctx).Debug("Connecting to the proxy", "proxy", t.config.Proxy.HostPort())
	proxy, err := ssh.Dial("tcp", t.config.Proxy.HostPort(), t.clientConfig(t.config.Proxy.User))
	if err != nil {
		return nil, fmt.Errorf("connecting to proxy %s: %w", t.config.Proxy.Address, err)
	}
	t.proxy = proxy
	return proxy, nil
}

func newClient(conn net.Conn, address string, config *ssh.ClientConfig) (*ssh.Client, error) {
	clientConn, channels, requests, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake failed: %w", err)
	}
	return ssh.NewClient(clientConn, channels, requests), nil
}

func (t *Transport) keepalive(ctx context.Context, key string, client *ssh.Client) {
	ticker := time.NewTicker(t.config.KeepaliveInterval)
	defer ticker.Stop()

	for range ticker.C {
		if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
			log.FromContext(ctx).Debug("Keepalive failed, dropping connection", "connection", key, "error", err)
			t.forget(key, client)
			return
		}
	}
}

// forget closes and drops a connection, if it is still the cached one
func (t *Transport) forget(key string, client *ssh.Client) {
	t.m.Lock()
	defer t.m.Unlock()

	if conn, ok := t.clients[key]; ok && conn.client == client {
		delete(t.clients, key)
	}
	_ = client.Close()
}

// Execute implements executor.Transport
func (t *Transport) Execute(ctx context.Context, host apiv1.Host, command specs.Command) (executor.Result, error) {
	client, err := t.client(ctx, host)
	if err != nil {
		return executor.Result{}, &executor.NotStartedError{Err: err}
	}

	session, err := client.NewSession()
	if err != nil {
		// The connection is broken, the next attempt will open a new one
		endpoint := t.config.endpointOf(host)
		t.forget(endpoint.User+"@"+endpoint.HostPort(), client)
		return executor.Result{}, &executor.NotStartedError{Err: fmt.Errorf("opening session: %w", err)}
	}
	defer func() {
		_ = session.Close()
	}()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command.String())
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		// the buffers are written until Run returns
		<-done
		return executor.Result{Stdout: stdout.String(), Stderr: stderr.String()}, ctx.Err()

	case err := <-done:
		result := executor.Result{Stdout: stdout.String(), Stderr: stderr.String()}

		var exitError *ssh.ExitError
		switch {
		case err == nil:
			return result, nil
		case errors.As(err, &exitError):
			result.ExitCode = exitError.ExitStatus()
			return result, nil
		default:
			return result, err
		}
	}
}

// Close closes every connection. Connections being opened are closed
// as soon as they are established.
func (t *Transport) Close() error {
	t.m.Lock()
	defer t.m.Unlock()

	t.closed = true
	var errs []error
	for key, conn := range t.clients {
		if conn.client != nil {
			errs = append(errs, conn.client.Close())
		}
		delete(t.clients, key)
	}

	t.proxyMutex.Lock()
	defer t.proxyMutex.Unlock()
	if t.proxy != nil {
		errs = append(errs, t.proxy.Close())
		t.proxy = nil
	}
	return errors.Join(errs...)
}
