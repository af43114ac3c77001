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

package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

// HostStore keeps the lock on a host of the fleet, as a directory
// whose creation is atomic. The record is stored as JSON inside the
// directory.
//
// Delete compares the token and removes the directory with two distinct
// commands, so a lock expiring and being taken between them can be
// removed by its former holder.
type HostStore struct {
	executor *executor.Executor
	host     apiv1.Host
	files    specs.StateFiles
}

// NewHostStore creates a store keeping the lock on the passed host
func NewHostStore(e *executor.Executor, host apiv1.Host, files specs.StateFiles) *HostStore {
	return &HostStore{
		executor: e,
		host:     host,
		files:    files,
	}
}

// Create implements Store
func (s *HostStore) Create(ctx context.Context, record apiv1.LockRecord) error {
	content, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if outcome := s.executor.Execute(ctx, s.host, s.files.EnsureDirectory()); !outcome.Succeeded() {
		return outcome.AsError()
	}

	if outcome := s.executor.Execute(ctx, s.host, s.files.CreateLock()); !outcome.Succeeded() {
		if outcome.Err != nil {
			return outcome.AsError()
		}
		// mkdir failed: find out whether it was because of the lock
		if exists := s.executor.Execute(ctx, s.host, s.files.LockExists()); exists.Succeeded() {
			return ErrExists
		}
		return outcome.AsError()
	}

	if outcome := s.executor.Execute(ctx, s.host, s.files.WriteLockDetails(string(content))); !outcome.Succeeded() {
		// Don't leave a lock nobody can identify
		_ = s.executor.Execute(context.WithoutCancel(ctx), s.host, s.files.RemoveLock())
		return outcome.AsError()
	}

	return nil
}

// Read implements Store
func (s *HostStore) Read(ctx context.Context) (apiv1.LockRecord, error) {
	outcome := s.executor.Execute(ctx, s.host, s.files.ReadLockDetails())
	if !outcome.Succeeded() {
		return apiv1.LockRecord{}, outcome.AsError()
	}

	content := strings.TrimSpace(outcome.Stdout)
	if content == "" {
		return s.orphan(ctx)
	}

	var record apiv1.LockRecord
	if err := json.Unmarshal([]byte(content), &record); err != nil {
		return apiv1.LockRecord{}, fmt.Errorf("invalid lock details on %s: %w", s.host, err)
	}
	return record, nil
}

// orphan reports a lock directory left without details, as it happens
// when the holder crashes right after creating it
func (s *HostStore) orphan(ctx context.Context) (apiv1.LockRecord, error) {
	outcome := s.executor.Execute(ctx, s.host, s.files.LockExists())
	switch {
	case outcome.Err != nil:
		return apiv1.LockRecord{}, outcome.AsError()
	case outcome.ExitCode != 0:
		return apiv1.LockRecord{}, ErrNotFound
	}
	return apiv1.LockRecord{Holder: UnknownHolder, Message: "lock details missing"}, nil
}

// Delete implements Store
func (s *HostStore) Delete(ctx context.Context, token string) error {
	if token != "" {
		current, err := s.Read(ctx)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if current.Token != token {
			return ErrNotHolder
		}
	}

	if outcome := s.executor.Execute(ctx, s.host, s.files.RemoveLock()); !outcome.Succeeded() {
		return outcome.AsError()
	}
	return nil
}
