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

package configuration

import (
	"time"

	"github.com/blang/semver"

	"github.com/fleetdeck/fleetdeck/pkg/configparser"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("fleetdeck configuration", func() {
	It("has sensible defaults", func() {
		config := newDefaultConfig()
		config.ReadConfigMapWithEnv(nil, configparser.MapEnvironment{})
		Expect(config.Concurrency).To(Equal(10))
		Expect(config.StateDriver).To(Equal(StateDriverHost))
		Expect(config.GetLockTimeout()).To(BeZero())
		Expect(config.GetCommandTimeout()).To(Equal(10 * time.Minute))
		Expect(config.Validate()).To(Succeed())
	})

	It("reads the environment", func() {
		config := newDefaultConfig()
		config.ReadConfigMapWithEnv(nil, configparser.MapEnvironment{
			"FLEETDECK_CONCURRENCY":  "3",
			"FLEETDECK_LOCK_TIMEOUT": "30",
			"FLEETDECK_LOCK_TTL":     "3600",
			"FLEETDECK_PERFORMER":    "alice",
		})
		Expect(config.Concurrency).To(Equal(3))
		Expect(config.GetLockTimeout()).To(Equal(30 * time.Second))
		Expect(config.GetLockTTL()).To(Equal(time.Hour))
		Expect(config.GetPerformer()).To(Equal("alice"))
	})

	It("lets the deploy file settings override the environment", func() {
		config := newDefaultConfig()
		config.ReadConfigMapWithEnv(map[string]string{
			"FLEETDECK_STATE_DRIVER": StateDriverSQLite,
			"FLEETDECK_STATE_DSN":    "file:state.db",
		}, configparser.MapEnvironment{
			"FLEETDECK_STATE_DRIVER": StateDriverPostgres,
		})
		Expect(config.StateDriver).To(Equal(StateDriverSQLite))
		Expect(config.StateDSN).To(Equal("file:state.db"))
	})

	It("parses the minimum container engine version", func() {
		config := newDefaultConfig()
		config.MinDockerVersion = "24.0"
		version, err := config.GetMinDockerVersion()
		Expect(err).ToNot(HaveOccurred())
		Expect(version).To(Equal(semver.MustParse("24.0.0")))
	})

	It("derives the performer when not set", func() {
		config := newDefaultConfig()
		Expect(config.GetPerformer()).ToNot(BeEmpty())
	})

	DescribeTable("rejects invalid configurations",
		func(mutate func(*Data)) {
			config := newDefaultConfig()
			mutate(config)
			Expect(config.Validate()).ToNot(Succeed())
		},
		Entry("no concurrency", func(d *Data) { d.Concurrency = 0 }),
		Entry("negative timeout", func(d *Data) { d.LockTimeout = -1 }),
		Entry("no retry attempts", func(d *Data) { d.RetryAttempts = 0 }),
		Entry("unknown driver", func(d *Data) { d.StateDriver = "etcd" }),
		Entry("SQL driver without DSN", func(d *Data) { d.StateDriver = StateDriverPostgres }),
		Entry("invalid engine version", func(d *Data) { d.MinDockerVersion = "recent" }),
	)
})
