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

package deployfile

import (
	"errors"
	"os"
	"path/filepath"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

const simpleFile = `
service: app
image: registry:4443/app
servers:
  - vm1
  - vm2
env:
  clear:
    CLEAR_TOKEN: "4321"
healthcheck:
  cmd: wget -qO- http://localhost > /dev/null || exit 1
  maxAttempts: 3
logging:
  options:
    max-size: 10m
`

const rolesFile = `
service: app
image: registry:4443/app
servers:
  web:
    - vm1
    - vm2
  workers:
    hosts:
      - vm3
    cmd: bin/jobs
    env:
      QUEUE: default
boot:
  limit: "50%"
  wait: 2s
`

var _ = Describe("Deploy file parsing", func() {
	It("reads a list of servers as the default role", func() {
		deployment, err := Parse([]byte(simpleFile))
		Expect(err).ToNot(HaveOccurred())

		Expect(deployment.Service).To(Equal("app"))
		Expect(deployment.Image).To(Equal("registry:4443/app"))
		Expect(deployment.Roles).To(HaveLen(1))
		Expect(deployment.Roles[0].Name).To(Equal(apiv1.DefaultRoleName))
		Expect(deployment.Roles[0].Hosts).To(Equal([]string{"vm1", "vm2"}))
		Expect(deployment.Env).To(Equal(map[string]string{"CLEAR_TOKEN": "4321"}))
		Expect(deployment.LogOptions).To(Equal(map[string]string{"max-size": "10m"}))

		By("applying the defaults")
		Expect(deployment.HealthCheck.MaxAttempts).To(Equal(3))
		Expect(deployment.HealthCheck.Port).To(Equal(apiv1.DefaultHealthCheckPort))
		Expect(deployment.SSH.User).To(Equal(apiv1.DefaultSSHUser))
		Expect(deployment.Roles[0].CommandTemplate).To(Equal(apiv1.DefaultCommandTemplate))
	})

	It("refuses secret environment variables", func() {
		_, err := Parse([]byte(`
service: app
image: app
servers: [vm1]
env:
  clear:
    CLEAR_TOKEN: "4321"
  secret:
    - SECRET_TOKEN
`))
		Expect(errors.Is(err, ErrSecretEnv)).To(BeTrue())
	})

	It("refuses unknown env sections", func() {
		_, err := Parse([]byte(`
service: app
image: app
servers: [vm1]
env:
  clear:
    CLEAR_TOKEN: "4321"
  tags:
    monitoring:
      DEBUG: "1"
`))
		Expect(err).To(MatchError(ContainSubstring(`unknown env section "tags"`)))
	})

	It("reads the roles in declaration order", func() {
		deployment, err := Parse([]byte(rolesFile))
		Expect(err).ToNot(HaveOccurred())

		Expect(deployment.Roles).To(HaveLen(2))
		Expect(deployment.GetPrimaryRole()).To(Equal("web"))
		Expect(deployment.Roles[1].Name).To(Equal("workers"))
		Expect(deployment.Roles[1].Hosts).To(Equal([]string{"vm3"}))
		Expect(deployment.Roles[1].Cmd).To(Equal("bin/jobs"))
		Expect(deployment.Roles[1].Env).To(Equal(map[string]string{"QUEUE": "default"}))
		Expect(deployment.Boot.Limit).To(Equal("50%"))
	})

	It("merges the overlays", func() {
		overlay := `
image: registry.example.com/app
servers:
  web:
    - vm9
boot:
  wait: 5s
`
		deployment, err := Parse([]byte(rolesFile), []byte(overlay))
		Expect(err).ToNot(HaveOccurred())

		Expect(deployment.Image).To(Equal("registry.example.com/app"))
		Expect(deployment.Roles[0].Hosts).To(Equal([]string{"vm9"}))
		Expect(deployment.Roles[1].Hosts).To(Equal([]string{"vm3"}))
		Expect(deployment.Boot.Limit).To(Equal("50%"))
		Expect(deployment.Boot.Wait).To(Equal("5s"))
	})

	It("rejects unknown keys", func() {
		_, err := Parse([]byte(simpleFile + "\nproxy: true\n"))
		Expect(err).To(MatchError(ContainSubstring("proxy")))
	})

	It("rejects invalid servers", func() {
		_, err := Parse([]byte("service: app\nimage: app\nservers: vm1\n"))
		Expect(err).To(MatchError(ContainSubstring("servers must be")))
	})

	It("validates the result", func() {
		_, err := Parse([]byte("service: App\nimage: app\n"))
		Expect(err).To(MatchError(And(ContainSubstring("service"), ContainSubstring("servers"))))
	})

	It("rejects empty files", func() {
		_, err := Parse(nil)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Deploy file loading", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "deploy.yml"), []byte(rolesFile), 0o600)).To(Succeed())
	})

	It("reads the destination overlay", func() {
		Expect(os.WriteFile(filepath.Join(dir, "deploy.staging.yml"),
			[]byte("servers:\n  web:\n    - staging1\n"), 0o600)).To(Succeed())

		deployment, err := Load(filepath.Join(dir, "deploy.yml"), "staging")
		Expect(err).ToNot(HaveOccurred())
		Expect(deployment.Roles[0].Hosts).To(Equal([]string{"staging1"}))
	})

	It("fails when the destination doesn't exist", func() {
		_, err := Load(filepath.Join(dir, "deploy.yml"), "production")
		Expect(err).To(MatchError(ContainSubstring("production")))
	})

	It("computes the overlay path", func() {
		Expect(OverlayPath("config/deploy.yml", "staging")).To(Equal("config/deploy.staging.yml"))
	})
})
