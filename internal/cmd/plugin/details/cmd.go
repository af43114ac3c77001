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

// Package details implements the details subcommand
package details

import (
	"github.com/spf13/cobra"

	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin"
)

// NewCmd creates the new "details" subcommand
func NewCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "details",
		Short:   "Show the containers running on every target",
		GroupID: plugin.GroupIDInspect,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := plugin.ParseOutputFormat(plugin.Output)
			if err != nil {
				return err
			}
			return Details(cmd.Context(), format, cmd.OutOrStdout())
		},
	}
}
