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

package fake

import (
	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/specs"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Fake fleet", func() {
	web := apiv1.Role{Name: "web"}
	vm1 := apiv1.Host{Address: "vm1"}

	var fleet *Fleet
	var e *executor.Executor

	run := func(ctx SpecContext, kind specs.Kind, version apiv1.Version) executor.Outcome {
		command, err := fleet.Command(specs.Request{Kind: kind, Role: web, Version: version})
		Expect(err).ToNot(HaveOccurred())
		return e.Execute(ctx, vm1, command)
	}

	BeforeEach(func() {
		fleet = NewFleet()
		e = executor.New(fleet, executor.WithRetry(1, 0))
	})

	It("pulls only the images pushed to the registry", func(ctx SpecContext) {
		Expect(run(ctx, specs.KindPull, "v1").ExitCode).To(Equal(1))

		fleet.Push("v1")
		Expect(run(ctx, specs.KindPull, "v1").Succeeded()).To(BeTrue())
		Expect(fleet.Images("vm1")).To(ConsistOf(apiv1.Version("v1")))
		Expect(run(ctx, specs.KindImageExists, "v1").Succeeded()).To(BeTrue())
	})

	It("starts and replaces containers", func(ctx SpecContext) {
		fleet.Push("v1")
		fleet.Push("v2")
		Expect(run(ctx, specs.KindEnsureImage, "v1").Succeeded()).To(BeTrue())
		Expect(run(ctx, specs.KindRun, "v1").Succeeded()).To(BeTrue())
		Expect(run(ctx, specs.KindRun, "v2").ExitCode).To(Equal(125))

		Expect(run(ctx, specs.KindEnsureImage, "v2").Succeeded()).To(BeTrue())
		Expect(run(ctx, specs.KindRun, "v2").Succeeded()).To(BeTrue())
		Expect(fleet.Running("vm1", "web")).To(HaveLen(2))

		Expect(run(ctx, specs.KindStopOld, "v2").Succeeded()).To(BeTrue())
		Expect(fleet.Running("vm1", "web")).To(Equal([]apiv1.Version{"v2"}))
		Expect(run(ctx, specs.KindContainerRunning, "v2").Stdout).To(Equal("web-v2\n"))
		Expect(run(ctx, specs.KindListContainers, "").Stdout).To(Equal("web-v2\tv2\trunning\n"))
	})

	It("fails the health probes of unhealthy hosts", func(ctx SpecContext) {
		fleet.Push("v1")
		run(ctx, specs.KindPull, "v1")
		run(ctx, specs.KindRun, "v1")
		Expect(run(ctx, specs.KindHealthProbe, "v1").Succeeded()).To(BeTrue())

		fleet.SetUnhealthy("vm1", true)
		Expect(run(ctx, specs.KindHealthProbe, "v1").ExitCode).To(Equal(1))
	})

	It("fails on unreachable hosts", func(ctx SpecContext) {
		fleet.SetUnreachable("vm1", true)
		Expect(run(ctx, specs.KindEngineVersion, "").Err).To(MatchError(ErrUnreachable))
		Expect(fleet.Commands("vm1")).To(BeEmpty())
	})

	It("removes everything", func(ctx SpecContext) {
		fleet.Push("v1")
		run(ctx, specs.KindPull, "v1")
		run(ctx, specs.KindRun, "v1")
		Expect(run(ctx, specs.KindRemoveContainers, "").Succeeded()).To(BeTrue())
		Expect(run(ctx, specs.KindRemoveImages, "").Succeeded()).To(BeTrue())
		Expect(fleet.Containers("vm1")).To(BeEmpty())
		Expect(fleet.Images("vm1")).To(BeEmpty())
		Expect(fleet.Commands("vm1")).To(Equal([]string{"pull", "run", "remove-containers", "remove-images"}))
	})
})
