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

// Package ledgertest contains the behaviour every ledger.Ledger must
// have, as a ginkgo container to be registered by the test suite of each
// implementation
package ledgertest

import (
	"context"
	"time"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/ledger"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Factory creates an empty ledger for each spec
type Factory func() ledger.Ledger

// DescribeLedger registers the ledger contract
func DescribeLedger(name string, factory Factory) bool {
	return Describe(name+" ledger contract", func() {
		var l ledger.Ledger
		ctx := context.Background()
		start := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)

		event := func(i int, host, role string, version apiv1.Version, outcome apiv1.BootOutcome) apiv1.BootEvent {
			return apiv1.BootEvent{
				Host:        host,
				Role:        role,
				Version:     version,
				Timestamp:   start.Add(time.Duration(i) * time.Minute),
				Outcome:     outcome,
				Operation:   apiv1.OperationDeploy,
				OperationID: "op-1",
				Performer:   "alice",
			}
		}

		BeforeEach(func() {
			l = factory()
		})

		It("starts empty", func() {
			events, err := l.Events(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(events).To(BeEmpty())
		})

		It("returns the events in append order with increasing sequences", func() {
			Expect(l.Append(ctx, event(0, "vm1", "web", "v1", apiv1.BootOutcomeBooted))).To(Succeed())
			Expect(l.Append(ctx, event(1, "vm2", "web", "v1", apiv1.BootOutcomeFailed))).To(Succeed())
			Expect(l.Append(ctx, event(2, "vm1", "web", "v2", apiv1.BootOutcomeBooted))).To(Succeed())

			events, err := l.Events(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(events).To(HaveLen(3))
			Expect(events[0].Host).To(Equal("vm1"))
			Expect(events[1].Outcome).To(Equal(apiv1.BootOutcomeFailed))
			Expect(events[2].Version).To(Equal(apiv1.Version("v2")))
			Expect(events[0].Sequence).To(BeNumerically("<", events[1].Sequence))
			Expect(events[1].Sequence).To(BeNumerically("<", events[2].Sequence))

			By("keeping every field")
			Expect(events[2].Timestamp.Equal(start.Add(2 * time.Minute))).To(BeTrue())
			Expect(events[2].Operation).To(Equal(apiv1.OperationDeploy))
			Expect(events[2].OperationID).To(Equal("op-1"))
			Expect(events[2].Performer).To(Equal("alice"))
		})

		It("derives the current version from the last successful boot", func() {
			Expect(l.Append(ctx, event(0, "vm1", "web", "v1", apiv1.BootOutcomeBooted))).To(Succeed())
			Expect(l.Append(ctx, event(1, "vm1", "web", "v2", apiv1.BootOutcomeFailed))).To(Succeed())
			Expect(l.Append(ctx, event(2, "vm1", "workers", "v2", apiv1.BootOutcomeBooted))).To(Succeed())

			version, ok, err := ledger.CurrentVersion(ctx, l, "vm1", "web")
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(version).To(Equal(apiv1.Version("v1")))

			version, ok, err = ledger.CurrentVersion(ctx, l, "vm1", "workers")
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(version).To(Equal(apiv1.Version("v2")))

			_, ok, err = ledger.CurrentVersion(ctx, l, "vm2", "web")
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeFalse())
		})

		It("forgets everything when cleared", func() {
			Expect(l.Append(ctx, event(0, "vm1", "web", "v1", apiv1.BootOutcomeBooted))).To(Succeed())
			Expect(l.Clear(ctx)).To(Succeed())

			events, err := l.Events(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(events).To(BeEmpty())

			By("accepting new events afterwards")
			Expect(l.Append(ctx, event(1, "vm1", "web", "v2", apiv1.BootOutcomeBooted))).To(Succeed())
			events, err = l.Events(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(events).To(HaveLen(1))
		})

		It("tolerates clearing an empty ledger", func() {
			Expect(l.Clear(ctx)).To(Succeed())
		})
	})
}
