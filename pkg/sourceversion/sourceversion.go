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

// Package sourceversion computes the version of the code being deployed
// from the state of its source repository
package sourceversion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/cloudnative-pg/machinery/pkg/log"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
)

// UncommittedSuffix marks the versions computed from a worktree having
// uncommitted changes
const UncommittedSuffix = "_uncommitted_"

// ErrEmptyVersion is returned when an empty version is requested
var ErrEmptyVersion = errors.New("empty version")

// Resolver computes the version to deploy
type Resolver interface {
	Resolve(ctx context.Context) (apiv1.Version, error)
}

// StaticResolver always resolves to the same version, explicitly passed
// by the operator
type StaticResolver struct {
	Version apiv1.Version
}

// Resolve implements Resolver
func (r StaticResolver) Resolve(context.Context) (apiv1.Version, error) {
	if r.Version.IsEmpty() {
		return "", ErrEmptyVersion
	}
	return r.Version, nil
}

// GitResolver uses the commit checked out in a git repository. When the
// worktree has changes, a digest of the changes is appended, so that the
// same changes always give the same version.
type GitResolver struct {
	// Path is a directory inside the repository
	Path string
}

// Resolve implements Resolver
func (r GitResolver) Resolve(ctx context.Context) (apiv1.Version, error) {
	contextLogger := log.FromContext(ctx)

	path := r.Path
	if path == "" {
		path = "."
	}

	repository, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("while opening the git repository in %s: %w", path, err)
	}

	head, err := repository.Head()
	if err != nil {
		return "", fmt.Errorf("while reading the current commit: %w", err)
	}
	version := head.Hash().String()

	worktree, err := repository.Worktree()
	if err != nil {
		return "", fmt.Errorf("while opening the worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return "", fmt.Errorf("while reading the worktree status: %w", err)
	}
	if status.IsClean() {
		return apiv1.Version(version), nil
	}

	digest, err := changesDigest(worktree, status)
	if err != nil {
		return "", err
	}

	contextLogger.Info("The worktree has uncommitted changes", "changes", len(status))
	return apiv1.Version(version + UncommittedSuffix + digest), nil
}

// changesDigest hashes the changed paths and their content
func changesDigest(worktree *git.Worktree, status git.Status) (string, error) {
	paths := make([]string, 0, len(status))
	for path := range status {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	hash := sha256.New()
	for _, path := range paths {
		fileStatus := status[path]
		_, _ = fmt.Fprintf(hash, "%s\x00%c%c\x00", path, fileStatus.Staging, fileStatus.Worktree)

		content, err := util.ReadFile(worktree.Filesystem, path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Deleted
		case err != nil:
			return "", fmt.Errorf("while reading %s: %w", path, err)
		default:
			_, _ = hash.Write(content)
		}
		_, _ = hash.Write([]byte{0})
	}

	return hex.EncodeToString(hash.Sum(nil))[:16], nil
}
