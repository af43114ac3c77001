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

	"github.com/cloudnative-pg/machinery/pkg/stringset"
	"github.com/thoas/go-funk"
)

// Registry is the static mapping between roles and hosts of a deployment
type Registry struct {
	roles []Role
}

// NewRegistry resolves the roles and hosts of a deployment. Defaults
// are expected to be already applied.
func NewRegistry(d *Deployment) *Registry {
	registry := &Registry{
		roles: make([]Role, 0, len(d.Roles)),
	}

	for _, configuration := range d.Roles {
		role := Role{
			Name:            configuration.Name,
			Hosts:           make([]Host, 0, len(configuration.Hosts)),
			CommandTemplate: configuration.CommandTemplate,
			Cmd:             configuration.Cmd,
			HealthCheck:     d.GetRoleHealthCheck(configuration.Name),
			Env:             configuration.Env,
			Labels:          configuration.Labels,
		}
		for _, address := range configuration.Hosts {
			role.Hosts = append(role.Hosts, Host{
				Address: address,
				User:    d.SSH.User,
				Port:    d.SSH.Port,
			})
		}
		registry.roles = append(registry.roles, role)
	}

	return registry
}

// Roles returns the roles in declaration order
func (r *Registry) Roles() []Role {
	return r.roles
}

// RoleNames returns the names of the roles in declaration order
func (r *Registry) RoleNames() []string {
	return funk.Map(r.roles, func(role Role) string {
		return role.Name
	}).([]string)
}

// Role looks up a role by name
func (r *Registry) Role(name string) (Role, bool) {
	for _, role := range r.roles {
		if role.Name == name {
			return role, true
		}
	}
	return Role{}, false
}

// PrimaryHost is the first host of the first role. It keeps the state
// of the fleet and produces every single-instance output.
func (r *Registry) PrimaryHost() (Host, bool) {
	if len(r.roles) == 0 || len(r.roles[0].Hosts) == 0 {
		return Host{}, false
	}
	return r.roles[0].Hosts[0], true
}

// AllHosts returns every distinct host of the fleet, in declaration order
func (r *Registry) AllHosts() []Host {
	seen := stringset.New()
	var result []Host
	for _, role := range r.roles {
		for _, host := range role.Hosts {
			if seen.Has(host.Address) {
				continue
			}
			seen.Put(host.Address)
			result = append(result, host)
		}
	}
	return result
}

// RolesOfHost returns the names of the roles assigned to a host
func (r *Registry) RolesOfHost(address string) []string {
	var result []string
	for _, role := range r.roles {
		if funk.Find(role.Hosts, func(host Host) bool { return host.Address == address }) != nil {
			result = append(result, role.Name)
		}
	}
	return result
}

// Targets returns the (role, host) pairs of the fleet, restricted to the
// passed role and host names when not empty. Unknown names are an error,
// since a typo would otherwise silently target nothing.
func (r *Registry) Targets(roles, hosts []string) ([]Target, error) {
	roleFilter := stringset.From(roles)
	hostFilter := stringset.From(hosts)

	for _, name := range roles {
		if _, found := r.Role(name); !found {
			return nil, fmt.Errorf("unknown role %q", name)
		}
	}
	for _, address := range hosts {
		if len(r.RolesOfHost(address)) == 0 {
			return nil, fmt.Errorf("unknown host %q", address)
		}
	}

	var result []Target
	for _, role := range r.roles {
		if len(roles) > 0 && !roleFilter.Has(role.Name) {
			continue
		}
		for _, host := range role.Hosts {
			if len(hosts) > 0 && !hostFilter.Has(host.Address) {
				continue
			}
			result = append(result, Target{Role: role, Host: host})
		}
	}

	return result, nil
}
