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

// Package local contains the transport running commands on the machine
// of the operator, used for building images and in tests
package local

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

// Host is the host representing the operator machine
var Host = apiv1.Host{Address: "localhost"}

// Transport runs commands with the local shell, ignoring the host
type Transport struct {
	// Shell is the shell interpreting the commands, "sh" when empty
	Shell string

	// Dir is the working directory of the commands
	Dir string

	// Env is added to the environment of the commands
	Env []string
}

// Execute implements executor.Transport
func (t *Transport) Execute(ctx context.Context, _ apiv1.Host, command specs.Command) (executor.Result, error) {
	shell := t.Shell
	if shell == "" {
		shell = "sh"
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command.String()) // #nosec G204
	cmd.Dir = t.Dir
	if len(t.Env) > 0 {
		cmd.Env = append(os.Environ(), t.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := executor.Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitError *exec.ExitError
	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		return result, ctx.Err()
	case errors.As(err, &exitError):
		result.ExitCode = exitError.ExitCode()
		return result, nil
	default:
		return result, err
	}
}
