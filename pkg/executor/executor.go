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

// Package executor runs commands on the hosts of the fleet, one host at
// a time or concurrently over a set of hosts with bounded parallelism
package executor

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/cloudnative-pg/machinery/pkg/log"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/fleeterrors"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

const (
	// DefaultConcurrency is the number of hosts contacted at once when
	// not configured
	DefaultConcurrency = 10

	defaultRetryAttempts = 3
	defaultRetryDelay    = time.Second
)

// Result is what a command produced on a host
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Transport executes a command on a host. An error means the host
// couldn't be reached or the command couldn't be started, a command that
// ran and failed is reported through the exit code.
type Transport interface {
	Execute(ctx context.Context, host apiv1.Host, command specs.Command) (Result, error)
}

// TransportFunc is a function implementing Transport
type TransportFunc func(ctx context.Context, host apiv1.Host, command specs.Command) (Result, error)

// Execute implements Transport
func (f TransportFunc) Execute(ctx context.Context, host apiv1.Host, command specs.Command) (Result, error) {
	return f(ctx, host, command)
}

// Outcome is the result of a command on a host
type Outcome struct {
	Result

	Host apiv1.Host

	Command specs.Command

	// Err is set when the transport failed
	Err error
}

// Succeeded is true when the command ran and exited with zero
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.ExitCode == 0
}

// AsError converts a failed outcome into the corresponding error, and
// returns nil on success
func (o Outcome) AsError() error {
	switch {
	case o.Err != nil:
		return &fleeterrors.TransportUnavailableError{Host: o.Host.Address, Err: o.Err}
	case o.ExitCode != 0:
		return &fleeterrors.CommandFailedError{
			Host:     o.Host.Address,
			Command:  o.Command.String(),
			ExitCode: o.ExitCode,
			Stderr:   o.Stderr,
		}
	default:
		return nil
	}
}

// Executor runs commands through a transport
type Executor struct {
	transport      Transport
	concurrency    int
	commandTimeout time.Duration
	retryAttempts  uint
	retryDelay     time.Duration
}

// Option configures an Executor
type Option func(*Executor)

// WithConcurrency sets the maximum number of hosts contacted at once
func WithConcurrency(concurrency int) Option {
	return func(e *Executor) {
		if concurrency > 0 {
			e.concurrency = concurrency
		}
	}
}

// WithCommandTimeout sets the maximum duration of every command. Zero
// means no limit.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(e *Executor) {
		e.commandTimeout = timeout
	}
}

// WithRetry sets how many times a command is tried when the transport
// fails with a transient error, and the initial delay between attempts
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(e *Executor) {
		e.retryAttempts = max(attempts, 1)
		e.retryDelay = delay
	}
}

// New creates an executor over the passed transport
func New(transport Transport, options ...Option) *Executor {
	e := &Executor{
		transport:     transport,
		concurrency:   DefaultConcurrency,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Concurrency is the maximum number of hosts contacted at once
func (e *Executor) Concurrency() int {
	return e.concurrency
}

// Execute runs a command on one host, automatically retrying transient
// transport errors like refused or reset connections
func (e *Executor) Execute(ctx context.Context, host apiv1.Host, command specs.Command) Outcome {
	contextLogger := log.FromContext(ctx).WithValues("host", host.Address)

	execCtx := ctx
	if e.commandTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.commandTimeout)
		defer cancel()
	}

	outcome := Outcome{Host: host, Command: command}
	contextLogger.Trace("Executing command", "command", command.String())

	attempted := false
	err := retry.New(
		retry.Attempts(e.retryAttempts),
		retry.Delay(e.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(execCtx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			contextLogger.Info("Retrying command",
				"attempt", n+1,
				"error", err.Error(),
			)
		}),
	).Do(
		func() error {
			attempted = true
			outcome.Result, outcome.Err = e.transport.Execute(execCtx, host, command)

			// A command that ran is never retried, whatever its exit code
			if outcome.Err == nil {
				return nil
			}

			// Don't retry if context was cancelled or timed out
			if execCtx.Err() != nil || !IsRetryableError(outcome.Err) {
				return retry.Unrecoverable(outcome.Err)
			}

			return outcome.Err
		},
	)
	if !attempted && err != nil {
		outcome.Err = err
	}

	if !outcome.Succeeded() {
		contextLogger.Debug("Command failed",
			"command", command.String(),
			"exitCode", outcome.ExitCode,
			"stderr", strings.TrimSpace(outcome.Stderr),
			"error", outcome.Err)
	}

	return outcome
}

// Sequence runs the commands on one host in submission order, stopping
// at the first failure, which is returned as an error
func (e *Executor) Sequence(ctx context.Context, host apiv1.Host, commands ...specs.Command) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(commands))
	for _, command := range commands {
		outcome := e.Execute(ctx, host, command)
		outcomes = append(outcomes, outcome)
		if err := outcome.AsError(); err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

// Run executes the same command concurrently across the passed hosts. A
// failure on one host never cancels the command on the others, every
// host gets its outcome.
func (e *Executor) Run(ctx context.Context, hosts []apiv1.Host, command specs.Command) map[apiv1.Host]Outcome {
	outcomes := make([]Outcome, len(hosts))
	errs := Fanout(ctx, e.concurrency, hosts, func(ctx context.Context, i int, host apiv1.Host) error {
		outcomes[i] = e.Execute(ctx, host, command)
		return nil
	})

	result := make(map[apiv1.Host]Outcome, len(hosts))
	for i, host := range hosts {
		if errs[i] != nil {
			result[host] = Outcome{Host: host, Command: command, Err: errs[i]}
			continue
		}
		result[host] = outcomes[i]
	}
	return result
}

// Dispatch runs the passed task on every host with bounded parallelism,
// collecting the error of each host
func (e *Executor) Dispatch(
	ctx context.Context,
	hosts []apiv1.Host,
	task func(ctx context.Context, host apiv1.Host) error,
) map[apiv1.Host]error {
	errs := Fanout(ctx, e.concurrency, hosts, func(ctx context.Context, _ int, host apiv1.Host) error {
		return task(ctx, host)
	})

	result := make(map[apiv1.Host]error, len(hosts))
	for i, host := range hosts {
		result[host] = errs[i]
	}
	return result
}

// FirstError returns the first error of a Dispatch or Run, in host
// order, or nil
func FirstError(hosts []apiv1.Host, errs map[apiv1.Host]error) error {
	for _, host := range hosts {
		if err := errs[host]; err != nil {
			return err
		}
	}
	return nil
}

// NotStartedError is a transport failure happening before the command
// reached the host, like a failed dial or handshake
type NotStartedError struct {
	Err error
}

func (e *NotStartedError) Error() string {
	return e.Err.Error()
}

// Unwrap implements errors.Unwrap
func (e *NotStartedError) Unwrap() error {
	return e.Err
}

// IsRetryableError returns true for transient transport errors. The
// command may not be idempotent, so only the failures happening before
// it was started are retried.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var notStarted *NotStartedError
	if !errors.As(err, &notStarted) {
		return false
	}

	errStr := err.Error()

	// Network connectivity issues
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "handshake failed") ||
		strings.Contains(errStr, "no route to host") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "EOF") {
		return true
	}

	return false
}
