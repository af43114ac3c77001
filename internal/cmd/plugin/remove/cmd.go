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

// Package remove implements the remove subcommand
package remove

import (
	"github.com/spf13/cobra"

	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin"
)

// NewCmd creates the new "remove" subcommand
func NewCmd() *cobra.Command {
	var confirm bool

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove the containers of the service",
		Long: "Remove the containers of the selected targets. Without --roles and --hosts the " +
			"images, the build resources and the boot history are removed too.",
		GroupID: plugin.GroupIDDeploy,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Remove(cmd.Context(), confirm, cmd.OutOrStdout())
		},
	}

	removeCmd.Flags().BoolVarP(&confirm, "confirm", "y", false, "Confirm the removal")

	return removeCmd
}
