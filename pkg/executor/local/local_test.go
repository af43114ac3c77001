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

package local

import (
	"context"
	"time"

	"github.com/fleetdeck/fleetdeck/pkg/specs"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Local transport", func() {
	It("captures the output of the command", func(ctx SpecContext) {
		transport := &Transport{}
		result, err := transport.Execute(ctx, Host, specs.Raw("echo out; echo err >&2"))
		Expect(err).ToNot(HaveOccurred())
		Expect(result.ExitCode).To(BeZero())
		Expect(result.Stdout).To(Equal("out\n"))
		Expect(result.Stderr).To(Equal("err\n"))
	})

	It("reports the exit code", func(ctx SpecContext) {
		transport := &Transport{}
		result, err := transport.Execute(ctx, Host, specs.Raw("exit 7"))
		Expect(err).ToNot(HaveOccurred())
		Expect(result.ExitCode).To(Equal(7))
	})

	It("runs in the configured directory with the configured environment", func(ctx SpecContext) {
		dir := GinkgoT().TempDir()
		transport := &Transport{Dir: dir, Env: []string{"FLEETDECK_TEST=42"}}
		result, err := transport.Execute(ctx, Host, specs.Raw(`pwd; printf '%s' "$FLEETDECK_TEST"`))
		Expect(err).ToNot(HaveOccurred())
		Expect(result.Stdout).To(ContainSubstring("42"))
	})

	It("fails when the shell can't be started", func(ctx SpecContext) {
		transport := &Transport{Shell: "/nonexistent/shell"}
		_, err := transport.Execute(ctx, Host, specs.Raw("true"))
		Expect(err).To(HaveOccurred())
	})

	It("stops the command when the context is done", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		transport := &Transport{}
		_, err := transport.Execute(ctx, Host, specs.Raw("sleep 5"))
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})
})
