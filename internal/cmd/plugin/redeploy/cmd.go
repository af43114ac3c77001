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

// Package redeploy implements the redeploy subcommand
package redeploy

import (
	"github.com/spf13/cobra"

	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin"
)

// NewCmd creates the new "redeploy" subcommand
func NewCmd() *cobra.Command {
	var message string
	var skipBuild bool

	redeployCmd := &cobra.Command{
		Use:   "redeploy",
		Short: "Boot the current version again, without the preparation of the fleet",
		Long: "Boot the current version again on the selected targets. With --skip-build the " +
			"image already in the registry is reused, and the build is skipped.",
		GroupID: plugin.GroupIDDeploy,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			options := plugin.TargetOptions()
			options.Message = message
			options.SkipBuild = skipBuild
			return Redeploy(cmd.Context(), options, cmd.OutOrStdout())
		},
	}

	redeployCmd.Flags().StringVarP(&message, "message", "m", "", "Reason recorded in the deploy lock")
	redeployCmd.Flags().BoolVar(&skipBuild, "skip-build", false, "Reuse the image already pushed to the registry")

	return redeployCmd
}
