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
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// LatestTag is the tag pushed together with every built version
const LatestTag = "latest"

// AbsoluteImage is the image reference of the passed version
func (d *Deployment) AbsoluteImage(version Version) string {
	return fmt.Sprintf("%s:%s", d.Image, version)
}

// LatestImage is the image reference of the latest build
func (d *Deployment) LatestImage() string {
	return fmt.Sprintf("%s:%s", d.Image, LatestTag)
}

// ServiceWithVersion is the service name qualified by the version
func (d *Deployment) ServiceWithVersion(version Version) string {
	return fmt.Sprintf("%s-%s", d.Service, version)
}

// ContainerName is the name of the container of a role at a version
func (d *Deployment) ContainerName(role string, version Version) string {
	return fmt.Sprintf("%s-%s-%s", d.Service, role, version)
}

// GetRegistryServer returns the registry server, inferring it from the
// image repository when not explicitly set. An empty string means the
// default registry.
func (d *Deployment) GetRegistryServer() string {
	if d.Registry.Server != "" {
		return d.Registry.Server
	}

	first, _, found := strings.Cut(d.Image, "/")
	if !found {
		return ""
	}
	if strings.ContainsAny(first, ".:") || first == "localhost" {
		return first
	}
	return ""
}

// GetPrimaryRole returns the name of the first role
func (d *Deployment) GetPrimaryRole() string {
	if len(d.Roles) == 0 {
		return ""
	}
	return d.Roles[0].Name
}

// GetRoleHealthCheck returns the health check of a role. The primary
// role inherits the deployment health check, other roles are only
// checked when they declare one.
func (d *Deployment) GetRoleHealthCheck(role string) *HealthCheckConfiguration {
	for _, configuration := range d.Roles {
		if configuration.Name != role {
			continue
		}
		if configuration.HealthCheck != nil {
			return configuration.HealthCheck
		}
		if role == d.GetPrimaryRole() {
			return d.HealthCheck
		}
		return nil
	}
	return nil
}

// GetKeepaliveInterval returns the keepalive interval, zero when
// keepalive is disabled
func (s SSHConfiguration) GetKeepaliveInterval() time.Duration {
	if s.Keepalive != nil && !*s.Keepalive {
		return 0
	}
	interval, err := time.ParseDuration(s.KeepaliveInterval)
	if err != nil {
		return 0
	}
	return interval
}

// GetInterval returns the time between two probes
func (h *HealthCheckConfiguration) GetInterval() time.Duration {
	interval, err := time.ParseDuration(h.Interval)
	if err != nil {
		return time.Second
	}
	return interval
}

// GetCommand returns the command executed inside the container to
// check its health
func (h *HealthCheckConfiguration) GetCommand() string {
	if h.Cmd != "" {
		return h.Cmd
	}
	return fmt.Sprintf("curl -f http://localhost:%d%s", h.Port, h.Path)
}

// GetBudget is the total time the health check can take
func (h *HealthCheckConfiguration) GetBudget() time.Duration {
	return h.GetInterval() * time.Duration(h.MaxAttempts)
}

// GetBatchSize returns how many of the passed hosts can be cut over at
// once. Every host is cut over at once when the limit is empty.
func (b BootConfiguration) GetBatchSize(hosts int) (int, error) {
	if hosts == 0 {
		return 0, nil
	}
	if b.Limit == "" {
		return hosts, nil
	}

	var size int
	if percentage, ok := strings.CutSuffix(b.Limit, "%"); ok {
		value, err := strconv.Atoi(percentage)
		if err != nil || value <= 0 || value > 100 {
			return 0, fmt.Errorf("invalid boot limit percentage %q", b.Limit)
		}
		size = int(math.Ceil(float64(hosts) * float64(value) / 100))
	} else {
		value, err := strconv.Atoi(b.Limit)
		if err != nil || value <= 0 {
			return 0, fmt.Errorf("invalid boot limit %q", b.Limit)
		}
		size = value
	}

	return min(max(size, 1), hosts), nil
}

// GetWait returns the pause between two batches
func (b BootConfiguration) GetWait() time.Duration {
	if b.Wait == "" {
		return 0
	}
	wait, err := time.ParseDuration(b.Wait)
	if err != nil {
		return 0
	}
	return wait
}

// MergedEnv returns the environment of the containers of a role
func (d *Deployment) MergedEnv(role Role) map[string]string {
	return mergeMaps(d.Env, role.Env)
}

// MergedLabels returns the labels of the containers of a role
func (d *Deployment) MergedLabels(role Role) map[string]string {
	return mergeMaps(d.Labels, role.Labels)
}

func mergeMaps(base, overlay map[string]string) map[string]string {
	result := make(map[string]string, len(base)+len(overlay))
	for key, value := range base {
		result[key] = value
	}
	for key, value := range overlay {
		result[key] = value
	}
	return result
}
