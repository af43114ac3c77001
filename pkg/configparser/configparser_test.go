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

package configparser

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// FakeData is an example of the configuration structure
// that can be used with this configparser
type FakeData struct {
	// StateDriver is the driver of the state store
	StateDriver string `json:"stateDriver" env:"STATE_DRIVER"`

	// Roles is the list of roles acted upon by default
	Roles []string `json:"roles" env:"ROLES"`

	// Concurrency is the maximum number of hosts contacted at once
	Concurrency int `json:"concurrency" env:"CONCURRENCY"`

	// Verbose enables the command output
	Verbose bool `json:"verbose" env:"VERBOSE"`

	// LockTimeout is not bound to any variable
	LockTimeout int `json:"lockTimeout"`
}

var defaultRoles = []string{"web", "workers"}

var _ = Describe("Data test suite", func() {
	It("correctly splits and trims lists", func() {
		list := splitAndTrim("string, with space , inside\t")
		Expect(list).To(Equal([]string{"string", "with space", "inside"}))
	})

	It("loads values from a map", func() {
		config := &FakeData{}
		ReadConfigMapWithEnv(config, &FakeData{}, map[string]string{
			"STATE_DRIVER": "sqlite",
			"ROLES":        "web, cron",
			"CONCURRENCY":  "4",
			"VERBOSE":      "true",
		}, MapEnvironment{})
		Expect(config.StateDriver).To(Equal("sqlite"))
		Expect(config.Roles).To(Equal([]string{"web", "cron"}))
		Expect(config.Concurrency).To(Equal(4))
		Expect(config.Verbose).To(BeTrue())
	})

	It("loads values from environment", func() {
		config := &FakeData{}
		GinkgoT().Setenv("STATE_DRIVER", "postgres")
		GinkgoT().Setenv("ROLES", "web")
		GinkgoT().Setenv("CONCURRENCY", "2")
		ReadConfigMap(config, &FakeData{}, nil)
		Expect(config.StateDriver).To(Equal("postgres"))
		Expect(config.Roles).To(Equal([]string{"web"}))
		Expect(config.Concurrency).To(Equal(2))
	})

	It("gives the precedence to the map", func() {
		config := &FakeData{}
		ReadConfigMapWithEnv(config, &FakeData{}, map[string]string{
			"CONCURRENCY": "8",
		}, MapEnvironment{"CONCURRENCY": "2"})
		Expect(config.Concurrency).To(Equal(8))
	})

	It("reset to default value if format is not correct", func() {
		config := &FakeData{}
		defaultData := &FakeData{
			Concurrency: 10,
			Verbose:     true,
		}
		ReadConfigMapWithEnv(config, defaultData, nil, MapEnvironment{
			"CONCURRENCY": "many",
			"VERBOSE":     "perhaps",
		})
		Expect(config.Concurrency).To(Equal(10))
		Expect(config.Verbose).To(BeTrue())
	})

	It("handles correctly default values of slices", func() {
		config := &FakeData{}
		ReadConfigMapWithEnv(config, &FakeData{Roles: defaultRoles}, nil, MapEnvironment{})
		Expect(config.Roles).To(Equal(defaultRoles))
	})

	It("ignores the fields without the env tag", func() {
		config := &FakeData{LockTimeout: 5}
		ReadConfigMapWithEnv(config, &FakeData{}, nil, MapEnvironment{})
		Expect(config.LockTimeout).To(Equal(5))
	})

	It("refuses mismatching types", func() {
		Expect(func() {
			ReadConfigMapWithEnv(&FakeData{}, &struct{}{}, nil, MapEnvironment{})
		}).To(Panic())
	})
})
