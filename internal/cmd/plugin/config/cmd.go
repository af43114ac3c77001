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

// Package config implements the config subcommand
package config

import (
	"github.com/spf13/cobra"

	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin"
)

// NewCmd creates the new "config" subcommand
func NewCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "config",
		Short:   "Show the deployment, with the defaults and the destination applied",
		GroupID: plugin.GroupIDInspect,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := plugin.ParseOutputFormat(plugin.Output)
			if err != nil {
				return err
			}
			return Config(cmd.Context(), format, cmd.OutOrStdout())
		},
	}
}
