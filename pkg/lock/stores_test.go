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

package lock_test

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/executor/local"
	"github.com/fleetdeck/fleetdeck/pkg/lock"
	"github.com/fleetdeck/fleetdeck/pkg/lock/locktest"
	"github.com/fleetdeck/fleetdeck/pkg/specs"

	"github.com/fleetdeck/fleetdeck/pkg/fleeterrors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = locktest.DescribeStore("Memory", func() lock.Store {
	return lock.NewMemoryStore()
})

var _ = locktest.DescribeStore("Host", func() lock.Store {
	files := specs.StateFiles{
		Directory: filepath.Join(GinkgoT().TempDir(), "run"),
		Service:   "app",
	}
	return lock.NewHostStore(executor.New(&local.Transport{}), local.Host, files)
})

var _ = Describe("Host store", func() {
	var (
		files specs.StateFiles
		store *lock.HostStore
	)

	BeforeEach(func() {
		files = specs.StateFiles{
			Directory: filepath.Join(GinkgoT().TempDir(), "run"),
			Service:   "app",
		}
		store = lock.NewHostStore(executor.New(&local.Transport{}), local.Host, files)
	})

	It("reports a lock left without details as held", func(ctx SpecContext) {
		Expect(os.MkdirAll(files.LockDirectory(), 0o750)).To(Succeed())

		record, err := store.Read(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(record.Holder).To(Equal(lock.UnknownHolder))

		manager := lock.NewManager(store)
		status, err := manager.Status(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(status).ToNot(BeNil())

		_, err = manager.Acquire(ctx, "alice", "deploy", "", 0)
		var held *fleeterrors.LockHeldError
		Expect(errors.As(err, &held)).To(BeTrue())
		Expect(held.Holder).To(Equal(lock.UnknownHolder))

		By("releasing it by force", func() {
			Expect(manager.ForceRelease(ctx)).Error().ToNot(HaveOccurred())
			Expect(store.Read(ctx)).Error().To(MatchError(lock.ErrNotFound))
		})
	})
})
