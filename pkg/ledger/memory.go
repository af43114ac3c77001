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

package ledger

import (
	"context"
	"sync"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
)

// MemoryLedger keeps the boot events in memory
type MemoryLedger struct {
	m        sync.Mutex
	events   []apiv1.BootEvent
	sequence int64
}

// NewMemoryLedger creates an empty ledger
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{}
}

// Append implements Ledger
func (l *MemoryLedger) Append(_ context.Context, event apiv1.BootEvent) error {
	l.m.Lock()
	defer l.m.Unlock()

	l.sequence++
	event.Sequence = l.sequence
	l.events = append(l.events, event)
	return nil
}

// Events implements Ledger
func (l *MemoryLedger) Events(_ context.Context) ([]apiv1.BootEvent, error) {
	l.m.Lock()
	defer l.m.Unlock()

	result := make([]apiv1.BootEvent, len(l.events))
	copy(result, l.events)
	return result, nil
}

// Clear implements Ledger
func (l *MemoryLedger) Clear(_ context.Context) error {
	l.m.Lock()
	defer l.m.Unlock()

	l.events = nil
	return nil
}
