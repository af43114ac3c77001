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

// Package deploy implements the deploy subcommand, building the current
// version and booting it on the fleet
package deploy

import (
	"github.com/spf13/cobra"

	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin"
)

// NewCmd creates the new "deploy" subcommand
func NewCmd() *cobra.Command {
	var message string

	deployCmd := &cobra.Command{
		Use:     "deploy",
		Short:   "Build and push the current version, then boot it on the fleet",
		GroupID: plugin.GroupIDDeploy,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			options := plugin.TargetOptions()
			options.Message = message
			return Deploy(cmd.Context(), options, cmd.OutOrStdout())
		},
	}

	deployCmd.Flags().StringVarP(&message, "message", "m", "", "Reason recorded in the deploy lock")

	return deployCmd
}
