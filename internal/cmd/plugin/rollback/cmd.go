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

// Package rollback implements the rollback subcommand
package rollback

import (
	"github.com/spf13/cobra"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin"
)

// NewCmd creates the new "rollback" subcommand
func NewCmd() *cobra.Command {
	var message string

	rollbackCmd := &cobra.Command{
		Use:     "rollback VERSION",
		Short:   "Boot a version already deployed, without building it",
		GroupID: plugin.GroupIDDeploy,
		Args:    plugin.RequiresArguments(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options := plugin.TargetOptions()
			options.Message = message
			return Rollback(cmd.Context(), apiv1.Version(args[0]), options, cmd.OutOrStdout())
		},
	}

	rollbackCmd.Flags().StringVarP(&message, "message", "m", "", "Reason recorded in the deploy lock")

	return rollbackCmd
}
