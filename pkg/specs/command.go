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

// Package specs contains the specification of the commands executed on
// the hosts of the fleet. The rest of fleetdeck never writes shell syntax
// and requests every command from a Producer.
package specs

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// Command is a shell command line, executed by a POSIX shell on the
// target host
type Command struct {
	line string
}

// New creates a command from its arguments, quoting each of them
func New(args ...string) Command {
	return Command{line: shellquote.Join(args...)}
}

// Raw creates a command from an already formed shell line
func Raw(line string) Command {
	return Command{line: line}
}

// String returns the shell line
func (c Command) String() string {
	return c.line
}

// IsEmpty is true for the zero command
func (c Command) IsEmpty() bool {
	return strings.TrimSpace(c.line) == ""
}

// Pipe connects the standard output of each command to the standard
// input of the following one
func Pipe(commands ...Command) Command {
	return join(" | ", commands)
}

// All runs the commands in order, stopping at the first failure
func All(commands ...Command) Command {
	return join(" && ", commands)
}

// Any runs the commands in order, stopping at the first success
func Any(commands ...Command) Command {
	return join(" || ", commands)
}

// WriteTo redirects the standard output of the command to a file,
// truncating it
func (c Command) WriteTo(path string) Command {
	return Command{line: c.line + " > " + shellquote.Join(path)}
}

// AppendTo redirects the standard output of the command to a file,
// appending to it
func (c Command) AppendTo(path string) Command {
	return Command{line: c.line + " >> " + shellquote.Join(path)}
}

// WithStderr merges the standard error in the standard output
func (c Command) WithStderr() Command {
	return Command{line: c.line + " 2>&1"}
}

// Group wraps the command so that it can be combined with others
// without changing its meaning
func (c Command) Group() Command {
	return Command{line: "{ " + c.line + "; }"}
}

func join(separator string, commands []Command) Command {
	lines := make([]string, 0, len(commands))
	for _, command := range commands {
		if command.IsEmpty() {
			continue
		}
		lines = append(lines, command.line)
	}
	return Command{line: strings.Join(lines, separator)}
}
