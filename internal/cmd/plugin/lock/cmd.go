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

// Package lock implements the lock subcommand, inspecting and managing the
// deploy lock by hand
package lock

import (
	"github.com/spf13/cobra"

	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin"
)

// NewCmd creates the new "lock" subcommand
func NewCmd() *cobra.Command {
	var message string

	lockCmd := &cobra.Command{
		Use:     "lock [status/acquire/release]",
		Short:   "Manage the deploy lock",
		GroupID: plugin.GroupIDMiscellaneous,
	}

	lockCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Shows who holds the deploy lock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := plugin.ParseOutputFormat(plugin.Output)
			if err != nil {
				return err
			}
			return Status(cmd.Context(), format, cmd.OutOrStdout())
		},
	})

	acquireCmd := &cobra.Command{
		Use:   "acquire",
		Short: "Acquires the deploy lock, preventing any operation until it is released",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Acquire(cmd.Context(), message, cmd.OutOrStdout())
		},
	}
	acquireCmd.Flags().StringVarP(&message, "message", "m", "", "Reason recorded in the deploy lock")
	_ = acquireCmd.MarkFlagRequired("message")
	lockCmd.AddCommand(acquireCmd)

	lockCmd.AddCommand(&cobra.Command{
		Use:   "release",
		Short: "Releases the deploy lock, whoever holds it",
		Long: "This command will release the deploy lock even when it is held by someone else. " +
			"Use it to recover from an interrupted operation.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return Release(cmd.Context(), cmd.OutOrStdout())
		},
	})

	return lockCmd
}
