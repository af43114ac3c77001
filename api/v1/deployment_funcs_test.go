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

package v1

import (
	"time"

	"k8s.io/utils/ptr"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func newTestDeployment() *Deployment {
	d := &Deployment{
		Service: "app",
		Image:   "registry.example.com/team/app:v9",
		Roles: []RoleConfiguration{
			{Name: "web", Hosts: []string{"vm1", "vm2"}},
			{Name: "workers", Hosts: []string{"vm3"}, Cmd: "bin/jobs"},
		},
		HealthCheck: &HealthCheckConfiguration{},
	}
	d.SetDefaults()
	return d
}

var _ = Describe("Deployment defaults", func() {
	It("strips the tag from the image", func() {
		d := newTestDeployment()
		Expect(d.Image).To(Equal("registry.example.com/team/app"))
	})

	It("applies the SSH defaults", func() {
		d := newTestDeployment()
		Expect(d.SSH.User).To(Equal(DefaultSSHUser))
		Expect(d.SSH.Port).To(Equal(DefaultSSHPort))
		Expect(d.SSH.Keepalive).To(Equal(ptr.To(true)))
		Expect(d.SSH.GetKeepaliveInterval()).To(Equal(30 * time.Second))
	})

	It("disables keepalive when requested", func() {
		ssh := SSHConfiguration{Keepalive: ptr.To(false), KeepaliveInterval: "10s"}
		Expect(ssh.GetKeepaliveInterval()).To(BeZero())
	})

	It("applies the health check defaults", func() {
		d := newTestDeployment()
		Expect(d.HealthCheck.Path).To(Equal("/up"))
		Expect(d.HealthCheck.Port).To(Equal(3000))
		Expect(d.HealthCheck.GetInterval()).To(Equal(time.Second))
		Expect(d.HealthCheck.MaxAttempts).To(Equal(DefaultHealthCheckMaxAttempts))
		Expect(d.HealthCheck.LogLines).To(Equal(DefaultHealthCheckLogLines))
	})

	It("defaults the command template of every role", func() {
		d := newTestDeployment()
		for _, role := range d.Roles {
			Expect(role.CommandTemplate).To(Equal(DefaultCommandTemplate))
		}
	})
})

var _ = Describe("Deployment naming", func() {
	d := newTestDeployment()

	It("builds image references", func() {
		Expect(d.AbsoluteImage("abc123")).To(Equal("registry.example.com/team/app:abc123"))
		Expect(d.LatestImage()).To(Equal("registry.example.com/team/app:latest"))
	})

	It("builds container names", func() {
		Expect(d.ServiceWithVersion("abc123")).To(Equal("app-abc123"))
		Expect(d.ContainerName("web", "abc123")).To(Equal("app-web-abc123"))
	})

	DescribeTable("infers the registry server",
		func(image, server, expected string) {
			deployment := Deployment{Image: image, Registry: RegistryConfiguration{Server: server}}
			Expect(deployment.GetRegistryServer()).To(Equal(expected))
		},
		Entry("explicit server", "team/app", "registry.local", "registry.local"),
		Entry("hostname in the image", "ghcr.io/team/app", "", "ghcr.io"),
		Entry("host and port in the image", "registry:5000/app", "", "registry:5000"),
		Entry("localhost", "localhost/app", "", "localhost"),
		Entry("docker hub namespace", "team/app", "", ""),
		Entry("docker hub library", "app", "", ""),
	)
})

var _ = Describe("Role health checks", func() {
	It("inherits the deployment health check in the primary role only", func() {
		d := newTestDeployment()
		Expect(d.GetPrimaryRole()).To(Equal("web"))
		Expect(d.GetRoleHealthCheck("web")).To(BeIdenticalTo(d.HealthCheck))
		Expect(d.GetRoleHealthCheck("workers")).To(BeNil())
		Expect(d.GetRoleHealthCheck("unknown")).To(BeNil())
	})

	It("uses the role health check when declared", func() {
		d := newTestDeployment()
		d.Roles[1].HealthCheck = &HealthCheckConfiguration{Cmd: "test -f /tmp/ready"}
		Expect(d.GetRoleHealthCheck("workers").GetCommand()).To(Equal("test -f /tmp/ready"))
	})

	It("builds the default probe command and budget", func() {
		healthCheck := &HealthCheckConfiguration{Port: 80, Path: "/health", Interval: "2s", MaxAttempts: 5}
		Expect(healthCheck.GetCommand()).To(Equal("curl -f http://localhost:80/health"))
		Expect(healthCheck.GetBudget()).To(Equal(10 * time.Second))
	})
})

var _ = Describe("Boot batches", func() {
	DescribeTable("computes the batch size",
		func(limit string, hosts, expected int) {
			size, err := BootConfiguration{Limit: limit}.GetBatchSize(hosts)
			Expect(err).ToNot(HaveOccurred())
			Expect(size).To(Equal(expected))
		},
		Entry("no limit", "", 5, 5),
		Entry("fixed limit", "2", 5, 2),
		Entry("fixed limit above the hosts", "10", 3, 3),
		Entry("percentage rounding up", "25%", 5, 2),
		Entry("small percentage", "1%", 3, 1),
		Entry("full percentage", "100%", 4, 4),
		Entry("no hosts", "2", 0, 0),
	)

	DescribeTable("rejects invalid limits",
		func(limit string) {
			_, err := BootConfiguration{Limit: limit}.GetBatchSize(3)
			Expect(err).To(HaveOccurred())
		},
		Entry("zero", "0"),
		Entry("negative", "-1"),
		Entry("text", "many"),
		Entry("percentage over 100", "150%"),
	)

	It("parses the wait between batches", func() {
		Expect(BootConfiguration{Wait: "5s"}.GetWait()).To(Equal(5 * time.Second))
		Expect(BootConfiguration{}.GetWait()).To(BeZero())
	})
})

var _ = Describe("Container environment", func() {
	It("merges the role environment on top of the deployment one", func() {
		d := &Deployment{Env: map[string]string{"A": "1", "B": "2"}}
		role := Role{Env: map[string]string{"B": "3", "C": "4"}}
		Expect(d.MergedEnv(role)).To(Equal(map[string]string{"A": "1", "B": "3", "C": "4"}))
	})
})
