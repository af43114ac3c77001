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

// Package hooks runs the user-provided lifecycle hooks on the operator
// machine. A hook failing before the cutover aborts the operation, a
// post-deploy hook failure is only reported.
package hooks

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/shlex"
)

const (
	// PreConnect runs before any host is contacted
	PreConnect = "pre-connect"

	// PreBuild runs before the image is built
	PreBuild = "pre-build"

	// PreDeploy runs after the image is available, before the cutover
	PreDeploy = "pre-deploy"

	// PostDeploy runs after the cutover
	PostDeploy = "post-deploy"
)

// Names are the hook points, in execution order
var Names = []string{PreConnect, PreBuild, PreDeploy, PostDeploy}

// Aborts is true when a failure of the hook aborts the operation
func Aborts(name string) bool {
	return name != PostDeploy
}

// Descriptor is an executable run for a hook point
type Descriptor struct {
	// Path is the executable
	Path string

	Args []string
}

// String is the printable form of the descriptor
func (d Descriptor) String() string {
	return strings.TrimSpace(d.Path + " " + strings.Join(d.Args, " "))
}

// Source finds the executables registered for a hook point. A hook point
// without executables is skipped.
type Source interface {
	HooksFor(name string) ([]Descriptor, error)
}

// DirectorySource discovers the hooks in a directory: the executable
// file named after the hook point, then the executable files inside the
// directory named after the hook point with the ".d" suffix, in lexical
// order
type DirectorySource struct {
	Directory string
}

// HooksFor implements Source
func (s DirectorySource) HooksFor(name string) ([]Descriptor, error) {
	if s.Directory == "" {
		return nil, nil
	}

	var result []Descriptor

	main := filepath.Join(s.Directory, name)
	executable, err := isExecutable(main)
	if err != nil {
		return nil, err
	}
	if executable {
		result = append(result, Descriptor{Path: main})
	}

	entries, err := os.ReadDir(filepath.Join(s.Directory, name+".d"))
	if os.IsNotExist(err) {
		return result, nil
	}
	if err != nil {
		return nil, fmt.Errorf("while reading the %s hooks: %w", name, err)
	}

	var paths []string
	for _, entry := range entries {
		path := filepath.Join(s.Directory, name+".d", entry.Name())
		executable, err := isExecutable(path)
		if err != nil {
			return nil, err
		}
		if executable {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	for _, path := range paths {
		result = append(result, Descriptor{Path: path})
	}

	return result, nil
}

func isExecutable(path string) (bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular() && info.Mode().Perm()&0o111 != 0, nil
}

// CommandSource maps a hook point to a command line, as written in the
// deployment configuration
type CommandSource map[string]string

// HooksFor implements Source
func (s CommandSource) HooksFor(name string) ([]Descriptor, error) {
	line, ok := s[name]
	if !ok || strings.TrimSpace(line) == "" {
		return nil, nil
	}

	words, err := shlex.Split(line)
	if err != nil {
		return nil, fmt.Errorf("invalid %s hook command %q: %w", name, line, err)
	}
	if len(words) == 0 {
		// only a comment
		return nil, nil
	}
	return []Descriptor{{Path: words[0], Args: words[1:]}}, nil
}

// StaticSource is a fixed set of hooks
type StaticSource map[string][]Descriptor

// HooksFor implements Source
func (s StaticSource) HooksFor(name string) ([]Descriptor, error) {
	return s[name], nil
}

// MultiSource concatenates the hooks of many sources
type MultiSource []Source

// HooksFor implements Source
func (s MultiSource) HooksFor(name string) ([]Descriptor, error) {
	var result []Descriptor
	for _, source := range s {
		descriptors, err := source.HooksFor(name)
		if err != nil {
			return nil, err
		}
		result = append(result, descriptors...)
	}
	return result, nil
}
