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

package hooks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/cloudnative-pg/machinery/pkg/execlog"
	"github.com/cloudnative-pg/machinery/pkg/log"

	"github.com/fleetdeck/fleetdeck/pkg/fleeterrors"
)

// Context are the details of the operation passed to the hooks through
// the environment
type Context struct {
	Service   string
	Version   string
	Performer string

	// Command is the operation being performed, e.g. "deploy"
	Command string

	Hosts []string
	Roles []string

	// Destination is the deployment destination, if any
	Destination string

	RecordedAt time.Time

	// Runtime is the duration of the operation, set for post-deploy
	Runtime time.Duration
}

// Env returns the environment variables describing the context
func (c Context) Env() []string {
	env := []string{
		"FLEETDECK_SERVICE=" + c.Service,
		"FLEETDECK_VERSION=" + c.Version,
		"FLEETDECK_PERFORMER=" + c.Performer,
		"FLEETDECK_COMMAND=" + c.Command,
		"FLEETDECK_HOSTS=" + strings.Join(c.Hosts, ","),
		"FLEETDECK_ROLE=" + strings.Join(c.Roles, ","),
		"FLEETDECK_RECORDED_AT=" + c.RecordedAt.UTC().Format(time.RFC3339),
	}
	if c.Destination != "" {
		env = append(env, "FLEETDECK_DESTINATION="+c.Destination)
	}
	if c.Runtime > 0 {
		env = append(env, "FLEETDECK_RUNTIME="+strconv.Itoa(int(c.Runtime.Round(time.Second).Seconds())))
	}
	return env
}

// Runner runs the hooks found by a source
type Runner struct {
	Source Source

	// Dir is the working directory of the hooks
	Dir string
}

// NewRunner creates a runner over the passed source
func NewRunner(source Source) *Runner {
	return &Runner{Source: source}
}

// Run executes every hook registered for name, stopping at the first
// failure, which is returned as a HookFailedError
func (r *Runner) Run(ctx context.Context, name string, hookContext Context) error {
	contextLogger := log.FromContext(ctx).WithValues("hook", name)

	if r == nil || r.Source == nil {
		return nil
	}

	descriptors, err := r.Source.HooksFor(name)
	if err != nil {
		return &fleeterrors.HookFailedError{Hook: name, Err: err}
	}

	env := append(os.Environ(), hookContext.Env()...)
	for _, descriptor := range descriptors {
		contextLogger.Info("Running hook", "path", descriptor.Path)

		cmd := exec.CommandContext(ctx, descriptor.Path, descriptor.Args...) // #nosec G204
		cmd.Env = env
		cmd.Dir = r.Dir

		if err := execlog.RunStreaming(cmd, "hook-"+name); err != nil {
			hookErr := &fleeterrors.HookFailedError{Hook: name, Path: descriptor.String()}
			var exitError *exec.ExitError
			if errors.As(err, &exitError) && ctx.Err() == nil {
				hookErr.ExitCode = exitError.ExitCode()
			} else {
				hookErr.Err = err
				if ctx.Err() != nil {
					hookErr.Err = fmt.Errorf("%w: %w", ctx.Err(), err)
				}
			}
			return hookErr
		}
	}

	return nil
}

// Fire runs the hooks of name applying the failure policy: the failure
// of a post-deploy hook is logged and returned as a warning instead of
// an error
func (r *Runner) Fire(ctx context.Context, name string, hookContext Context) (warning error, err error) {
	err = r.Run(ctx, name, hookContext)
	if err == nil || Aborts(name) {
		return nil, err
	}

	log.FromContext(ctx).Warning("Hook failed, continuing", "hook", name, "error", err.Error())
	return err, nil
}
