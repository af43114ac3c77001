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

// Package deployfile reads the deployment configuration from the deploy
// file, by default config/deploy.yml, and from the destination overlay
// config/deploy.<destination>.yml next to it
package deployfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
)

// DefaultPath is the deploy file read when none is specified
const DefaultPath = "config/deploy.yml"

// File is the content of the deploy file
type File struct {
	Service      string                          `yaml:"service"`
	Image        string                          `yaml:"image"`
	Servers      Servers                         `yaml:"servers"`
	Registry     apiv1.RegistryConfiguration     `yaml:"registry"`
	SSH          apiv1.SSHConfiguration          `yaml:"ssh"`
	Builder      apiv1.BuilderConfiguration      `yaml:"builder"`
	Env          Env                             `yaml:"env"`
	Labels       map[string]string               `yaml:"labels"`
	Volumes      []string                        `yaml:"volumes"`
	Logging      Logging                         `yaml:"logging"`
	HealthCheck  *apiv1.HealthCheckConfiguration `yaml:"healthcheck"`
	Boot         apiv1.BootConfiguration         `yaml:"boot"`
	RunDirectory string                          `yaml:"runDirectory"`
	HooksPath    string                          `yaml:"hooksPath"`
	Hooks        map[string]string               `yaml:"hooks"`
	Settings     map[string]string               `yaml:"settings"`
}

// Logging configures the log driver of the containers
type Logging struct {
	Options map[string]string `yaml:"options"`
}

// ErrSecretEnv is returned for deploy files declaring secret environment
// variables, which are never resolved by fleetdeck
var ErrSecretEnv = errors.New("secret environment variables are not supported, list them in the clear section")

// Env is the environment of the containers. Both a plain mapping and a
// mapping with a "clear" section are accepted.
type Env map[string]string

// UnmarshalYAML implements yaml.Unmarshaler
func (e *Env) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.MappingNode && (hasKey(value, "clear") || hasKey(value, "secret")) {
		for i := 0; i+1 < len(value.Content); i += 2 {
			switch key := value.Content[i].Value; key {
			case "clear":
			case "secret":
				return fmt.Errorf("line %d: %w", value.Content[i].Line, ErrSecretEnv)
			default:
				return fmt.Errorf("line %d: unknown env section %q", value.Content[i].Line, key)
			}
		}

		var sections struct {
			Clear map[string]string `yaml:"clear"`
		}
		if err := value.Decode(&sections); err != nil {
			return err
		}
		*e = sections.Clear
		return nil
	}

	var plain map[string]string
	if err := value.Decode(&plain); err != nil {
		return err
	}
	*e = plain
	return nil
}

// Servers are the roles of the deployment. A list of hosts declares the
// default role only, a mapping declares one role per key.
type Servers []apiv1.RoleConfiguration

type roleFields struct {
	Hosts           []string                        `yaml:"hosts"`
	Cmd             string                          `yaml:"cmd"`
	CommandTemplate string                          `yaml:"commandTemplate"`
	HealthCheck     *apiv1.HealthCheckConfiguration `yaml:"healthcheck"`
	Env             Env                             `yaml:"env"`
	Labels          map[string]string               `yaml:"labels"`
}

// UnmarshalYAML implements yaml.Unmarshaler
func (s *Servers) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var hosts []string
		if err := value.Decode(&hosts); err != nil {
			return err
		}
		*s = Servers{{Name: apiv1.DefaultRoleName, Hosts: hosts}}
		return nil

	case yaml.MappingNode:
		roles := make(Servers, 0, len(value.Content)/2)
		// Keys are visited in declaration order, the first role is
		// the primary one
		for i := 0; i+1 < len(value.Content); i += 2 {
			name := value.Content[i].Value
			role, err := decodeRole(name, value.Content[i+1])
			if err != nil {
				return err
			}
			roles = append(roles, role)
		}
		*s = roles
		return nil

	default:
		return fmt.Errorf("line %d: servers must be a list of hosts or a mapping of roles", value.Line)
	}
}

func decodeRole(name string, value *yaml.Node) (apiv1.RoleConfiguration, error) {
	role := apiv1.RoleConfiguration{Name: name}

	if value.Kind == yaml.SequenceNode {
		if err := value.Decode(&role.Hosts); err != nil {
			return role, fmt.Errorf("role %s: %w", name, err)
		}
		return role, nil
	}

	var fields roleFields
	if err := value.Decode(&fields); err != nil {
		return role, fmt.Errorf("role %s: %w", name, err)
	}
	role.Hosts = fields.Hosts
	role.Cmd = fields.Cmd
	role.CommandTemplate = fields.CommandTemplate
	role.HealthCheck = fields.HealthCheck
	role.Env = fields.Env
	role.Labels = fields.Labels
	return role, nil
}

func hasKey(mapping *yaml.Node, key string) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return true
		}
	}
	return false
}

// Deployment converts the file into a deployment, without defaults
func (f *File) Deployment() *apiv1.Deployment {
	return &apiv1.Deployment{
		Service:      f.Service,
		Image:        f.Image,
		Registry:     f.Registry,
		Roles:        f.Servers,
		SSH:          f.SSH,
		Builder:      f.Builder,
		HealthCheck:  f.HealthCheck,
		Boot:         f.Boot,
		Env:          f.Env,
		Labels:       f.Labels,
		Volumes:      f.Volumes,
		LogOptions:   f.Logging.Options,
		RunDirectory: f.RunDirectory,
		HooksPath:    f.HooksPath,
		Hooks:        f.Hooks,
		Settings:     f.Settings,
	}
}

// OverlayPath is the path of the overlay of a destination
func OverlayPath(path, destination string) string {
	extension := filepath.Ext(path)
	return strings.TrimSuffix(path, extension) + "." + destination + extension
}

// Load reads the deploy file and the overlay of the destination, when
// one is passed, and returns the validated deployment with its defaults
func Load(path, destination string) (*apiv1.Deployment, error) {
	if path == "" {
		path = DefaultPath
	}

	content, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("while reading the deploy file: %w", err)
	}

	var overlays [][]byte
	if destination != "" {
		overlay, err := os.ReadFile(OverlayPath(path, destination)) // #nosec G304
		if err != nil {
			return nil, fmt.Errorf("while reading the %s destination file: %w", destination, err)
		}
		overlays = append(overlays, overlay)
	}

	return Parse(content, overlays...)
}

// Parse decodes a deploy file, merging the overlays on top of it
func Parse(content []byte, overlays ...[]byte) (*apiv1.Deployment, error) {
	merged, err := parseNode(content)
	if err != nil {
		return nil, err
	}
	for _, overlay := range overlays {
		node, err := parseNode(overlay)
		if err != nil {
			return nil, err
		}
		merged = mergeNodes(merged, node)
	}

	var file File
	if merged != nil {
		// Encoded again to reject unknown keys
		encoded, err := yaml.Marshal(merged)
		if err != nil {
			return nil, err
		}
		decoder := yaml.NewDecoder(bytes.NewReader(encoded))
		decoder.KnownFields(true)
		if err := decoder.Decode(&file); err != nil {
			return nil, fmt.Errorf("invalid deploy file: %w", err)
		}
	}

	deployment := file.Deployment()
	deployment.SetDefaults()
	if errs := deployment.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid deploy file: %w", errs.ToAggregate())
	}
	return deployment, nil
}

// parseNode returns the top-level mapping of a document, nil when empty
func parseNode(content []byte) (*yaml.Node, error) {
	var document yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(content)).Decode(&document); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid deploy file: %w", err)
	}
	if len(document.Content) == 0 {
		return nil, nil
	}

	root := document.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: the deploy file must be a mapping", root.Line)
	}
	return root, nil
}

// mergeNodes merges the overlay mapping into the base one. Nested
// mappings are merged, every other value is replaced.
func mergeNodes(base, overlay *yaml.Node) *yaml.Node {
	if base == nil {
		return overlay
	}
	if overlay == nil {
		return base
	}
	if base.Kind != yaml.MappingNode || overlay.Kind != yaml.MappingNode {
		return overlay
	}

	result := *base
	result.Content = append([]*yaml.Node(nil), base.Content...)
	for i := 0; i+1 < len(overlay.Content); i += 2 {
		key, value := overlay.Content[i], overlay.Content[i+1]

		replaced := false
		for j := 0; j+1 < len(result.Content); j += 2 {
			if result.Content[j].Value == key.Value {
				result.Content[j+1] = mergeNodes(result.Content[j+1], value)
				replaced = true
				break
			}
		}
		if !replaced {
			result.Content = append(result.Content, key, value)
		}
	}
	return &result
}
