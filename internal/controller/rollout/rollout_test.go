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

package rollout

import (
	"context"
	"time"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Rollout manager", func() {
	It("should coordinate rollouts when delays are set", func() {
		startTime := time.Now()
		currentTime := startTime

		const (
			rolesRolloutDelay   = 10 * time.Minute
			batchesRolloutDelay = 5 * time.Minute
		)

		m := New(rolesRolloutDelay, batchesRolloutDelay)
		m.timeProvider = func() time.Time {
			return currentTime
		}

		By("allowing the first rollout immediately", func() {
			result := m.CoordinateRollout("web", 0)
			Expect(result.RolloutAllowed).To(BeTrue())
			Expect(result.TimeToWait).To(BeZero())
		})

		By("waiting for one minute", func() {
			currentTime = currentTime.Add(1 * time.Minute)
		})

		By("checking that the rollout of a batch is not allowed", func() {
			result := m.CoordinateRollout("web", 1)
			Expect(result.RolloutAllowed).To(BeFalse())
			Expect(result.TimeToWait).To(Equal(4 * time.Minute))
			Expect(m.lastUpdate).To(Equal(startTime))
		})

		By("checking that the rollout of a role is not allowed", func() {
			result := m.CoordinateRollout("workers", 0)
			Expect(result.RolloutAllowed).To(BeFalse())
			Expect(result.TimeToWait).To(Equal(9 * time.Minute))
			Expect(m.lastUpdate).To(Equal(startTime))
		})

		By("waiting for five minutes", func() {
			currentTime = currentTime.Add(5 * time.Minute)
		})

		By("checking that the rollout of a role is still not allowed", func() {
			result := m.CoordinateRollout("workers", 0)
			Expect(result.RolloutAllowed).To(BeFalse())
			Expect(result.TimeToWait).To(Equal(4 * time.Minute))
		})

		By("checking that the rollout of a batch is allowed", func() {
			result := m.CoordinateRollout("web", 1)
			Expect(result.RolloutAllowed).To(BeTrue())
			Expect(result.TimeToWait).To(BeZero())
			Expect(m.lastUpdate).To(Equal(currentTime))
			Expect(m.lastBatch).To(Equal(1))
		})
	})

	It("should allow everything when delays are not set", func() {
		m := New(0, 0)
		Expect(m.CoordinateRollout("web", 0).RolloutAllowed).To(BeTrue())
		Expect(m.CoordinateRollout("web", 1).RolloutAllowed).To(BeTrue())
		Expect(m.CoordinateRollout("workers", 0).RolloutAllowed).To(BeTrue())
	})

	It("waits the time needed by the next batch", func(ctx SpecContext) {
		currentTime := time.Now()
		var waited []time.Duration

		m := New(0, 30*time.Second)
		m.timeProvider = func() time.Time {
			return currentTime
		}
		m.sleep = func(_ context.Context, d time.Duration) error {
			waited = append(waited, d)
			currentTime = currentTime.Add(d)
			return nil
		}

		Expect(m.Wait(ctx, "web", 0)).To(Succeed())
		currentTime = currentTime.Add(10 * time.Second)
		Expect(m.Wait(ctx, "web", 1)).To(Succeed())
		Expect(waited).To(Equal([]time.Duration{20 * time.Second}))
	})

	It("stops waiting when the context is done", func() {
		m := New(0, time.Hour)
		ctx, cancel := context.WithCancel(context.Background())
		Expect(m.Wait(ctx, "web", 0)).To(Succeed())
		cancel()
		Expect(m.Wait(ctx, "web", 1)).To(MatchError(context.Canceled))
	})
})

var _ = Describe("Batches", func() {
	targets := func(addresses ...string) []apiv1.Target {
		result := make([]apiv1.Target, 0, len(addresses))
		for _, address := range addresses {
			result = append(result, apiv1.Target{
				Role: apiv1.Role{Name: "web"},
				Host: apiv1.Host{Address: address},
			})
		}
		return result
	}

	It("keeps every target in a single batch without a size", func() {
		Expect(Batches(targets("vm1", "vm2", "vm3"), 0)).To(HaveLen(1))
		Expect(Batches(targets("vm1", "vm2", "vm3"), 5)).To(HaveLen(1))
		Expect(Batches(nil, 2)).To(BeEmpty())
	})

	It("splits the targets preserving their order", func() {
		batches := Batches(targets("vm1", "vm2", "vm3", "vm4", "vm5"), 2)
		Expect(batches).To(HaveLen(3))
		Expect(batches[0]).To(Equal(targets("vm1", "vm2")))
		Expect(batches[1]).To(Equal(targets("vm3", "vm4")))
		Expect(batches[2]).To(Equal(targets("vm5")))
	})
})
