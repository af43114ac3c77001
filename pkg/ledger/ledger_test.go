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
	"os"
	"path/filepath"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/executor/local"
	"github.com/fleetdeck/fleetdeck/pkg/specs"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Version derivation", func() {
	events := []apiv1.BootEvent{
		{Host: "vm1", Role: "web", Version: "v1", Outcome: apiv1.BootOutcomeBooted},
		{Host: "vm2", Role: "web", Version: "v1", Outcome: apiv1.BootOutcomeBooted},
		{Host: "vm1", Role: "web", Version: "v2", Outcome: apiv1.BootOutcomeBooted},
		{Host: "vm2", Role: "web", Version: "v2", Outcome: apiv1.BootOutcomeFailed},
		{Host: "vm1", Role: "web", Version: "v1", Outcome: apiv1.BootOutcomeBooted},
	}

	It("computes the current version of each pair", func() {
		Expect(CurrentVersions(events)).To(Equal(map[Key]apiv1.Version{
			{Host: "vm1", Role: "web"}: "v1",
			{Host: "vm2", Role: "web"}: "v1",
		}))
	})

	It("lists the booted versions, most recent first", func() {
		Expect(KnownVersions(events)).To(Equal([]apiv1.Version{"v1", "v2"}))
	})
})

var _ = Describe("Host ledger", func() {
	var (
		files  specs.StateFiles
		ledger *HostLedger
	)

	BeforeEach(func() {
		files = specs.StateFiles{Directory: GinkgoT().TempDir(), Service: "app"}
		ledger = NewHostLedger(executor.New(&local.Transport{}), local.Host, files)
	})

	It("skips truncated lines", func(ctx SpecContext) {
		content := `{"host":"vm1","role":"web","version":"v1","outcome":"booted"}` + "\n" +
			`{"host":"vm2","ro` + "\n" +
			`{"host":"vm2","role":"web","version":"v1","outcome":"booted"}` + "\n"
		Expect(os.WriteFile(files.AuditLog(), []byte(content), 0o600)).To(Succeed())

		events, err := ledger.Events(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(events).To(HaveLen(2))
		Expect(events[1].Host).To(Equal("vm2"))
		Expect(events[1].Sequence).To(BeEquivalentTo(3))
	})

	It("archives the audit log when cleared", func(ctx SpecContext) {
		Expect(ledger.Append(ctx, apiv1.BootEvent{Host: "vm1", Role: "web", Version: "v1"})).To(Succeed())
		Expect(ledger.Clear(ctx)).To(Succeed())

		archives, err := filepath.Glob(files.AuditLog() + ".*")
		Expect(err).ToNot(HaveOccurred())
		Expect(archives).To(HaveLen(1))
	})

	It("reports unreachable hosts", func() {
		broken := NewHostLedger(executor.New(&local.Transport{Shell: "/nonexistent/shell"},
			executor.WithRetry(1, 0)), local.Host, files)
		_, err := broken.Events(context.Background())
		Expect(err).To(HaveOccurred())
	})
})
