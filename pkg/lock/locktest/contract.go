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

// Package locktest contains the behaviour every lock.Store must have,
// as a ginkgo container to be registered by the test suite of each store
package locktest

import (
	"context"
	"time"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/lock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Factory creates an empty store for each spec
type Factory func() lock.Store

// DescribeStore registers the store contract
func DescribeStore(name string, factory Factory) bool {
	return Describe(name+" lock store contract", func() {
		var store lock.Store
		ctx := context.Background()
		acquiredAt := time.Date(2026, 2, 27, 12, 0, 0, 0, time.UTC)

		record := func(holder, token string) apiv1.LockRecord {
			return apiv1.LockRecord{
				Holder:     holder,
				Token:      token,
				Message:    "deploying",
				Version:    "v1",
				AcquiredAt: acquiredAt,
				ExpiresAt:  acquiredAt.Add(time.Hour),
			}
		}

		BeforeEach(func() {
			store = factory()
		})

		It("reports a missing record", func() {
			_, err := store.Read(ctx)
			Expect(err).To(MatchError(lock.ErrNotFound))
		})

		It("stores and reads back a record", func() {
			Expect(store.Create(ctx, record("alice", "t1"))).To(Succeed())

			stored, err := store.Read(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Holder).To(Equal("alice"))
			Expect(stored.Token).To(Equal("t1"))
			Expect(stored.Message).To(Equal("deploying"))
			Expect(stored.Version).To(Equal(apiv1.Version("v1")))
			Expect(stored.AcquiredAt.Equal(acquiredAt)).To(BeTrue())
			Expect(stored.ExpiresAt.Equal(acquiredAt.Add(time.Hour))).To(BeTrue())
		})

		It("creates exclusively", func() {
			Expect(store.Create(ctx, record("alice", "t1"))).To(Succeed())
			Expect(store.Create(ctx, record("bob", "t2"))).To(MatchError(lock.ErrExists))

			stored, err := store.Read(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Holder).To(Equal("alice"))
		})

		It("deletes only with the right token", func() {
			Expect(store.Create(ctx, record("alice", "t1"))).To(Succeed())
			Expect(store.Delete(ctx, "t2")).To(MatchError(lock.ErrNotHolder))

			Expect(store.Delete(ctx, "t1")).To(Succeed())
			_, err := store.Read(ctx)
			Expect(err).To(MatchError(lock.ErrNotFound))
		})

		It("deletes any record without a token", func() {
			Expect(store.Create(ctx, record("alice", "t1"))).To(Succeed())
			Expect(store.Delete(ctx, "")).To(Succeed())
			Expect(store.Create(ctx, record("bob", "t2"))).To(Succeed())
		})

		It("tolerates deleting a missing record", func() {
			Expect(store.Delete(ctx, "t1")).To(Succeed())
			Expect(store.Delete(ctx, "")).To(Succeed())
		})
	})
}
