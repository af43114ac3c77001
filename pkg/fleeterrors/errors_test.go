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

package fleeterrors

import (
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Error taxonomy", func() {
	DescribeTable("matches the sentinels through wrapping",
		func(err error, sentinel error) {
			wrapped := fmt.Errorf("while deploying: %w", err)
			Expect(errors.Is(wrapped, sentinel)).To(BeTrue())
		},
		Entry("lock held", &LockHeldError{Holder: "alice"}, ErrLockHeld),
		Entry("hook failed", &HookFailedError{Hook: "pre-deploy"}, ErrHookFailed),
		Entry("unknown version", &UnknownVersionError{Version: "abc"}, ErrUnknownVersion),
		Entry("command failed", &CommandFailedError{Host: "vm1"}, ErrCommandFailed),
		Entry("health check", &HealthCheckTimeoutError{Host: "vm1"}, ErrHealthCheckTimeout),
		Entry("partial failure", &PartialFailureError{}, ErrPartialFailure),
		Entry("transport", &TransportUnavailableError{Host: "vm1"}, ErrTransportUnavailable),
	)

	It("lists the known versions of an unknown version", func() {
		err := &UnknownVersionError{Version: "v0", Hosts: []string{"vm1"}, Known: []string{"v2", "v1"}}
		Expect(err.Error()).To(Equal("version v0 is not available on vm1 (known versions: v2, v1)"))
		Expect((&UnknownVersionError{Version: "v0"}).Error()).To(Equal("version v0 is unknown"))
	})

	It("reports the lock holder and age", func() {
		err := &LockHeldError{Holder: "alice", Message: "hotfix", Age: 90 * time.Second}
		Expect(err.Error()).To(Equal("deploy lock held by alice since 1m30s: hotfix"))
	})

	It("sorts the failed hosts", func() {
		err := &PartialFailureError{Failures: map[string]error{
			"web@vm2": errors.New("boom"),
			"web@vm1": errors.New("boom"),
		}}
		Expect(err.FailedHosts()).To(Equal([]string{"web@vm1", "web@vm2"}))
		Expect(err.Error()).To(Equal("cutover failed on web@vm1, web@vm2"))
	})

	It("unwraps the transport cause", func() {
		cause := errors.New("connection refused")
		err := &TransportUnavailableError{Host: "vm1", Err: cause}
		Expect(errors.Is(err, cause)).To(BeTrue())
	})

	It("includes the standard error of failed commands", func() {
		err := &CommandFailedError{Host: "vm1", Command: "docker ps", ExitCode: 1, Stderr: "denied\n"}
		Expect(err.Error()).To(Equal(`command "docker ps" failed on vm1 with exit code 1: denied`))
	})
})
