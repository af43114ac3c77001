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
	"regexp"
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

var nameRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9_-]*[a-z0-9])?$`)

// Validate checks the deployment, returning every error found
func (d *Deployment) Validate() field.ErrorList {
	var result field.ErrorList

	type validationFunc func() field.ErrorList
	validations := []validationFunc{
		d.validateService,
		d.validateImage,
		d.validateRoles,
		d.validateBuilder,
		d.validateHealthChecks,
		d.validateBoot,
	}

	for _, validate := range validations {
		result = append(result, validate()...)
	}

	return result
}

func (d *Deployment) validateService() field.ErrorList {
	path := field.NewPath("service")
	if d.Service == "" {
		return field.ErrorList{field.Required(path, "the service name is required")}
	}
	if !nameRegex.MatchString(d.Service) {
		return field.ErrorList{field.Invalid(path, d.Service,
			"must consist of lower case alphanumeric characters, '-' or '_'")}
	}
	return nil
}

func (d *Deployment) validateImage() field.ErrorList {
	if d.Image == "" {
		return field.ErrorList{field.Required(field.NewPath("image"), "the image repository is required")}
	}
	return nil
}

func (d *Deployment) validateRoles() field.ErrorList {
	var result field.ErrorList
	path := field.NewPath("servers")

	if len(d.Roles) == 0 {
		return field.ErrorList{field.Required(path, "at least one role is required")}
	}

	names := make(map[string]struct{}, len(d.Roles))
	for i, role := range d.Roles {
		rolePath := path.Index(i)
		if !nameRegex.MatchString(role.Name) {
			result = append(result, field.Invalid(rolePath.Child("name"), role.Name,
				"must consist of lower case alphanumeric characters, '-' or '_'"))
		}
		if _, found := names[role.Name]; found {
			result = append(result, field.Duplicate(rolePath.Child("name"), role.Name))
		}
		names[role.Name] = struct{}{}

		if len(role.Hosts) == 0 {
			result = append(result, field.Required(rolePath.Child("hosts"),
				"a role needs at least one host"))
		}

		hosts := make(map[string]struct{}, len(role.Hosts))
		for j, host := range role.Hosts {
			if host == "" {
				result = append(result, field.Required(rolePath.Child("hosts").Index(j), "empty host"))
				continue
			}
			if _, found := hosts[host]; found {
				result = append(result, field.Duplicate(rolePath.Child("hosts").Index(j), host))
			}
			hosts[host] = struct{}{}
		}
	}

	return result
}

func (d *Deployment) validateBuilder() field.ErrorList {
	path := field.NewPath("builder")
	switch d.Builder.Driver {
	case BuilderDriverNative, BuilderDriverCached:
		return nil
	case BuilderDriverRemote:
		if d.Builder.Remote == "" {
			return field.ErrorList{field.Required(path.Child("remote"),
				"the remote builder requires the builder host")}
		}
		return nil
	default:
		return field.ErrorList{field.NotSupported(path.Child("driver"), d.Builder.Driver, []string{
			string(BuilderDriverNative),
			string(BuilderDriverCached),
			string(BuilderDriverRemote),
		})}
	}
}

func (d *Deployment) validateHealthChecks() field.ErrorList {
	var result field.ErrorList
	result = append(result, validateHealthCheck(field.NewPath("healthcheck"), d.HealthCheck)...)
	for i, role := range d.Roles {
		result = append(result,
			validateHealthCheck(field.NewPath("servers").Index(i).Child("healthcheck"), role.HealthCheck)...)
	}
	return result
}

func validateHealthCheck(path *field.Path, healthCheck *HealthCheckConfiguration) field.ErrorList {
	if healthCheck == nil {
		return nil
	}

	var result field.ErrorList
	if healthCheck.MaxAttempts < 1 {
		result = append(result, field.Invalid(path.Child("maxAttempts"), healthCheck.MaxAttempts,
			"must be at least 1"))
	}
	if interval, err := time.ParseDuration(healthCheck.Interval); err != nil || interval <= 0 {
		result = append(result, field.Invalid(path.Child("interval"), healthCheck.Interval,
			"must be a positive duration"))
	}
	return result
}

func (d *Deployment) validateBoot() field.ErrorList {
	var result field.ErrorList
	path := field.NewPath("boot")
	if _, err := d.Boot.GetBatchSize(1); err != nil {
		result = append(result, field.Invalid(path.Child("limit"), d.Boot.Limit, err.Error()))
	}
	if d.Boot.Wait != "" {
		if _, err := time.ParseDuration(d.Boot.Wait); err != nil {
			result = append(result, field.Invalid(path.Child("wait"), d.Boot.Wait, "must be a duration"))
		}
	}
	return result
}
