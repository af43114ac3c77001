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
	"sync"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
)

// MemoryStore keeps the lock record in memory. It is used by tests and
// by single-process usages.
type MemoryStore struct {
	m      sync.Mutex
	record *apiv1.LockRecord
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Create implements Store
func (s *MemoryStore) Create(_ context.Context, record apiv1.LockRecord) error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.record != nil {
		return ErrExists
	}
	s.record = &record
	return nil
}

// Read implements Store
func (s *MemoryStore) Read(_ context.Context) (apiv1.LockRecord, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if s.record == nil {
		return apiv1.LockRecord{}, ErrNotFound
	}
	return *s.record, nil
}

// Delete implements Store
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.m.Lock()
	defer s.m.Unlock()

	if s.record == nil {
		return nil
	}
	if token != "" && s.record.Token != token {
		return ErrNotHolder
	}
	s.record = nil
	return nil
}
