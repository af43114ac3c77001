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

// Package ledger contains the append-only history of the boot events of
// the fleet. The current version of a (host, role) pair is the version
// of its last successful boot event.
package ledger

import (
	"context"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
)

// Ledger is the append-only store of the boot events
type Ledger interface {
	// Append adds an event at the end of the ledger, assigning its
	// sequence number
	Append(ctx context.Context, event apiv1.BootEvent) error

	// Events returns every event in append order
	Events(ctx context.Context) ([]apiv1.BootEvent, error)

	// Clear discards the history. It is only used when removing the
	// service from the fleet.
	Clear(ctx context.Context) error
}

// Key identifies a role running on a host
type Key struct {
	Host string
	Role string
}

// CurrentVersions returns the current version of every (host, role)
// pair having at least one successful boot event
func CurrentVersions(events []apiv1.BootEvent) map[Key]apiv1.Version {
	result := make(map[Key]apiv1.Version)
	for _, event := range events {
		if event.IsBooted() {
			result[Key{Host: event.Host, Role: event.Role}] = event.Version
		}
	}
	return result
}

// CurrentVersion returns the version of the last successful boot of a
// role on a host, and false if the role never booted there
func CurrentVersion(ctx context.Context, l Ledger, host, role string) (apiv1.Version, bool, error) {
	events, err := l.Events(ctx)
	if err != nil {
		return "", false, err
	}
	version, ok := CurrentVersions(events)[Key{Host: host, Role: role}]
	return version, ok, nil
}

// KnownVersions returns the versions that booted successfully at least
// once, most recent first
func KnownVersions(events []apiv1.BootEvent) []apiv1.Version {
	seen := make(map[apiv1.Version]struct{})
	var result []apiv1.Version
	for i := len(events) - 1; i >= 0; i-- {
		if !events[i].IsBooted() {
			continue
		}
		if _, ok := seen[events[i].Version]; ok {
			continue
		}
		seen[events[i].Version] = struct{}{}
		result = append(result, events[i].Version)
	}
	return result
}
