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

// Package fleeterrors contains the error taxonomy of fleetdeck. Every
// typed error matches its sentinel with errors.Is.
package fleeterrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrLockHeld is matched by LockHeldError
	ErrLockHeld = errors.New("deploy lock held")

	// ErrHookFailed is matched by HookFailedError
	ErrHookFailed = errors.New("hook failed")

	// ErrUnknownVersion is matched by UnknownVersionError
	ErrUnknownVersion = errors.New("unknown version")

	// ErrCommandFailed is matched by CommandFailedError
	ErrCommandFailed = errors.New("command failed")

	// ErrHealthCheckTimeout is matched by HealthCheckTimeoutError
	ErrHealthCheckTimeout = errors.New("health check timeout")

	// ErrPartialFailure is matched by PartialFailureError
	ErrPartialFailure = errors.New("partial failure")

	// ErrTransportUnavailable is matched by TransportUnavailableError
	ErrTransportUnavailable = errors.New("transport unavailable")

	// ErrNotConfirmed is returned by destructive operations invoked
	// without confirmation
	ErrNotConfirmed = errors.New("operation not confirmed")

	// ErrUnsupportedEngine is returned when the container engine of a
	// host is missing or too old
	ErrUnsupportedEngine = errors.New("unsupported container engine")
)

// LockHeldError is raised when the deploy lock is owned by someone else
type LockHeldError struct {
	Holder  string
	Message string
	Age     time.Duration
}

func (e *LockHeldError) Error() string {
	msg := fmt.Sprintf("deploy lock held by %s since %s", e.Holder, e.Age.Round(time.Second))
	if e.Message != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Message)
	}
	return msg
}

// Is implements errors.Is
func (e *LockHeldError) Is(target error) bool {
	return target == ErrLockHeld
}

// HookFailedError is raised when a gating hook exits with an error
type HookFailedError struct {
	Hook     string
	Path     string
	ExitCode int
	Err      error
}

func (e *HookFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("hook %s (%s) failed: %v", e.Hook, e.Path, e.Err)
	}
	return fmt.Sprintf("hook %s (%s) failed with exit code %d", e.Hook, e.Path, e.ExitCode)
}

// Is implements errors.Is
func (e *HookFailedError) Is(target error) bool {
	return target == ErrHookFailed
}

// Unwrap implements errors.Unwrap
func (e *HookFailedError) Unwrap() error {
	return e.Err
}

// UnknownVersionError is raised when rolling back to a version whose
// image is not available for every targeted host
type UnknownVersionError struct {
	Version string
	Hosts   []string

	// Known are the versions booted in the past, most recent first
	Known []string
}

func (e *UnknownVersionError) Error() string {
	message := fmt.Sprintf("version %s is unknown", e.Version)
	if len(e.Hosts) > 0 {
		message = fmt.Sprintf("version %s is not available on %s", e.Version, strings.Join(e.Hosts, ", "))
	}
	if len(e.Known) > 0 {
		message += " (known versions: " + strings.Join(e.Known, ", ") + ")"
	}
	return message
}

// Is implements errors.Is
func (e *UnknownVersionError) Is(target error) bool {
	return target == ErrUnknownVersion
}

// CommandFailedError is raised when a command exits with a non-zero code
type CommandFailedError struct {
	Host     string
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandFailedError) Error() string {
	msg := fmt.Sprintf("command %q failed on %s with exit code %d", e.Command, e.Host, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, stderr)
	}
	return msg
}

// Is implements errors.Is
func (e *CommandFailedError) Is(target error) bool {
	return target == ErrCommandFailed
}

// HealthCheckTimeoutError is raised when a container doesn't become
// healthy within the configured attempts
type HealthCheckTimeoutError struct {
	Host     string
	Attempts int
	Logs     []string
	Err      error
}

func (e *HealthCheckTimeoutError) Error() string {
	msg := fmt.Sprintf("container on %s not healthy after %d attempts", e.Host, e.Attempts)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Is implements errors.Is
func (e *HealthCheckTimeoutError) Is(target error) bool {
	return target == ErrHealthCheckTimeout
}

// Unwrap implements errors.Unwrap
func (e *HealthCheckTimeoutError) Unwrap() error {
	return e.Err
}

// TransportUnavailableError is raised when a host can't be reached
type TransportUnavailableError struct {
	Host string
	Err  error
}

func (e *TransportUnavailableError) Error() string {
	return fmt.Sprintf("host %s unreachable: %v", e.Host, e.Err)
}

// Is implements errors.Is
func (e *TransportUnavailableError) Is(target error) bool {
	return target == ErrTransportUnavailable
}

// Unwrap implements errors.Unwrap
func (e *TransportUnavailableError) Unwrap() error {
	return e.Err
}

// PartialFailureError is raised when some of the targeted hosts failed
// their cutover. The hosts that succeeded are not reverted.
type PartialFailureError struct {
	// Failures maps a failed target to the cause of its failure
	Failures map[string]error
}

// FailedHosts returns the failed targets, sorted
func (e *PartialFailureError) FailedHosts() []string {
	result := make([]string, 0, len(e.Failures))
	for host := range e.Failures {
		result = append(result, host)
	}
	sort.Strings(result)
	return result
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("cutover failed on %s", strings.Join(e.FailedHosts(), ", "))
}

// Is implements errors.Is
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}
