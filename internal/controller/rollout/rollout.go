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

// Package rollout paces the cutover of the hosts of a role, splitting
// them into batches and waiting between two consecutive batches
package rollout

import (
	"context"
	"sync"
	"time"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
)

// The type of functions returning a moment in time
type timeFunc func() time.Time

// Manager is the rollout manager. It is safe to use
// concurrently
type Manager struct {
	m sync.Mutex

	// The amount of time we wait between batches of
	// different roles
	roleRolloutDelay time.Duration

	// The amount of time we wait between batches of
	// the same role
	batchRolloutDelay time.Duration

	// This is used to get the current time. Mainly
	// used by the unit tests to inject a fake time
	timeProvider timeFunc

	// This is used to wait. Mainly used by the unit
	// tests to avoid sleeping
	sleep func(ctx context.Context, d time.Duration) error

	// The following data is relative to the last
	// rollout
	lastBatch  int
	lastRole   string
	lastUpdate time.Time
}

// Result is the output of the rollout manager, telling the
// orchestrator how much time we need to wait to rollout a batch
type Result struct {
	// This is true when the batch can be rolled out immediately
	RolloutAllowed bool

	// This is set with the amount of time the orchestrator need
	// to wait to rollout that batch
	TimeToWait time.Duration
}

// New creates a new rollout manager with the passed configuration
func New(roleRolloutDelay, batchRolloutDelay time.Duration) *Manager {
	return &Manager{
		timeProvider:      time.Now,
		sleep:             sleep,
		roleRolloutDelay:  roleRolloutDelay,
		batchRolloutDelay: batchRolloutDelay,
	}
}

// CoordinateRollout is called to check whether the rollout of a
// batch is allowed or not by the manager
func (manager *Manager) CoordinateRollout(role string, batch int) Result {
	manager.m.Lock()
	defer manager.m.Unlock()

	if manager.lastRole == role {
		return manager.coordinateRolloutWithTime(role, batch, manager.batchRolloutDelay)
	}
	return manager.coordinateRolloutWithTime(role, batch, manager.roleRolloutDelay)
}

func (manager *Manager) coordinateRolloutWithTime(
	role string,
	batch int,
	t time.Duration,
) Result {
	now := manager.timeProvider()
	timeSinceLastRollout := now.Sub(manager.lastUpdate)

	if manager.lastUpdate.IsZero() || timeSinceLastRollout >= t {
		manager.lastRole = role
		manager.lastBatch = batch
		manager.lastUpdate = now
		return Result{
			RolloutAllowed: true,
			TimeToWait:     0,
		}
	}

	return Result{
		RolloutAllowed: false,
		TimeToWait:     t - timeSinceLastRollout,
	}
}

// Wait blocks until the rollout of the batch is allowed
func (manager *Manager) Wait(ctx context.Context, role string, batch int) error {
	for {
		result := manager.CoordinateRollout(role, batch)
		if result.RolloutAllowed {
			return nil
		}
		if err := manager.sleep(ctx, result.TimeToWait); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Batches splits the targets in groups of at most size elements,
// keeping their order. Everything is a single batch when size is not
// positive.
func Batches(targets []apiv1.Target, size int) [][]apiv1.Target {
	if len(targets) == 0 {
		return nil
	}
	if size <= 0 || size >= len(targets) {
		return [][]apiv1.Target{targets}
	}

	result := make([][]apiv1.Target, 0, (len(targets)+size-1)/size)
	for start := 0; start < len(targets); start += size {
		result = append(result, targets[start:min(start+size, len(targets))])
	}
	return result
}
