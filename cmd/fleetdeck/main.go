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

/*
The fleetdeck command deploys containerized services to a fleet of hosts.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudnative-pg/machinery/pkg/log"
	"github.com/spf13/cobra"

	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin"
	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin/audit"
	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin/config"
	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin/deploy"
	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin/details"
	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin/lock"
	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin/redeploy"
	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin/remove"
	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin/rollback"
	"github.com/fleetdeck/fleetdeck/internal/cmd/versions"
)

func main() {
	logFlags := &log.Flags{}

	rootCmd := &cobra.Command{
		Use:          "fleetdeck",
		Short:        "Deploy containerized services to a fleet of hosts",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logFlags.ConfigureLogging()
			return plugin.ConfigureColor(cmd)
		},
	}

	logFlags.AddFlags(rootCmd.PersistentFlags())
	plugin.AddGlobalFlags(rootCmd.PersistentFlags())
	plugin.AddColorControlFlags(rootCmd)

	rootCmd.AddGroup(
		&cobra.Group{ID: plugin.GroupIDDeploy, Title: "Deploy commands:"},
		&cobra.Group{ID: plugin.GroupIDInspect, Title: "Inspection commands:"},
		&cobra.Group{ID: plugin.GroupIDMiscellaneous, Title: "Miscellaneous commands:"},
	)

	rootCmd.AddCommand(deploy.NewCmd())
	rootCmd.AddCommand(redeploy.NewCmd())
	rootCmd.AddCommand(rollback.NewCmd())
	rootCmd.AddCommand(remove.NewCmd())
	rootCmd.AddCommand(details.NewCmd())
	rootCmd.AddCommand(audit.NewCmd())
	rootCmd.AddCommand(config.NewCmd())
	rootCmd.AddCommand(lock.NewCmd())
	rootCmd.AddCommand(versions.NewCmd())

	// An interrupted operation stops booting new targets, and still
	// releases the deploy lock
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
