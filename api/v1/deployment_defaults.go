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
	"strings"

	"github.com/cloudnative-pg/machinery/pkg/image/reference"
	"k8s.io/utils/ptr"
)

// SetDefaults apply the defaults to undefined values in a Deployment
func (d *Deployment) SetDefaults() {
	// An image with a tag is reduced to its repository, the tag is
	// always the deployed version
	if d.Image != "" {
		if tag := reference.New(d.Image).Tag; tag != "" {
			d.Image = strings.TrimSuffix(d.Image, ":"+tag)
		}
	}

	if d.RunDirectory == "" {
		d.RunDirectory = DefaultRunDirectory
	}
	if d.HooksPath == "" {
		d.HooksPath = DefaultHooksPath
	}
	if d.Builder.Driver == "" {
		d.Builder.Driver = BuilderDriverNative
	}
	if d.Builder.Context == "" {
		d.Builder.Context = "."
	}
	if d.Builder.Dockerfile == "" {
		d.Builder.Dockerfile = "Dockerfile"
	}

	d.SSH.setDefaults()

	if d.HealthCheck != nil {
		d.HealthCheck.setDefaults()
	}

	for i := range d.Roles {
		if d.Roles[i].CommandTemplate == "" {
			d.Roles[i].CommandTemplate = DefaultCommandTemplate
		}
		if d.Roles[i].HealthCheck != nil {
			d.Roles[i].HealthCheck.setDefaults()
		}
	}
}

func (s *SSHConfiguration) setDefaults() {
	if s.User == "" {
		s.User = DefaultSSHUser
	}
	if s.Port == 0 {
		s.Port = DefaultSSHPort
	}
	if s.Keepalive == nil {
		s.Keepalive = ptr.To(true)
	}
	if s.KeepaliveInterval == "" {
		s.KeepaliveInterval = DefaultSSHKeepaliveInterval
	}
}

func (h *HealthCheckConfiguration) setDefaults() {
	if h.Path == "" {
		h.Path = DefaultHealthCheckPath
	}
	if h.Port == 0 {
		h.Port = DefaultHealthCheckPort
	}
	if h.Interval == "" {
		h.Interval = DefaultHealthCheckInterval
	}
	if h.MaxAttempts == 0 {
		h.MaxAttempts = DefaultHealthCheckMaxAttempts
	}
	if h.LogLines == 0 {
		h.LogLines = DefaultHealthCheckLogLines
	}
}
