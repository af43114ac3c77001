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

// Package plugin contains the common behaviors of the fleetdeck subcommands
package plugin

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/controller/cutover"
	"github.com/fleetdeck/fleetdeck/pkg/deployfile"
	"github.com/fleetdeck/fleetdeck/pkg/metrics"
)

// DefaultConfigFile is the deploy file used when none is passed
const DefaultConfigFile = "config/deploy.yml"

var (
	// ConfigFile is the path of the deploy file
	ConfigFile = DefaultConfigFile

	// Destination selects the overlay of the deploy file
	Destination string

	// Roles restricts the operation to these roles
	Roles []string

	// Hosts restricts the operation to these hosts
	Hosts []string

	// Version is the version requested by the operator, overriding the
	// one computed from the source repository
	Version string

	// MetricsFile, when set, receives the metrics of the operation in the
	// textfile collector format
	MetricsFile string
)

const (
	// GroupIDDeploy represents an ID to group up the commands changing
	// what runs on the fleet
	GroupIDDeploy = "deploy"

	// GroupIDInspect represents an ID to group up the read-only commands
	GroupIDInspect = "inspect"

	// GroupIDMiscellaneous represents an ID to group up miscellaneous commands
	GroupIDMiscellaneous = "misc"
)

// AddGlobalFlags adds the flags shared by every subcommand
func AddGlobalFlags(flags *pflag.FlagSet) {
	flags.StringVarP(&ConfigFile, "config-file", "c", DefaultConfigFile, "Path of the deploy file")
	flags.StringVarP(&Destination, "destination", "d", "",
		"Destination overlay, read from the deploy file with the destination before the extension")
	flags.StringSliceVarP(&Roles, "roles", "r", nil, "Run only on the hosts of these roles, comma separated")
	flags.StringSliceVarP(&Hosts, "hosts", "H", nil, "Run only on these hosts, comma separated")
	flags.StringVar(&Version, "version", "", "Version to deploy, defaults to the checked out commit")
	flags.StringVarP(&Output, "output", "o", string(OutputFormatText), "Output format. One of text|json|yaml")
	flags.StringVar(&MetricsFile, "metrics-file", "",
		"Write the metrics of the operation to this file, in the textfile collector format")
}

// LoadDeployment reads the deploy file, applying the destination overlay
func LoadDeployment() (*apiv1.Deployment, error) {
	return deployfile.Load(ConfigFile, Destination)
}

// TargetOptions returns the options of an operation, as selected by the
// global flags
func TargetOptions() cutover.Options {
	return cutover.Options{
		Roles:   Roles,
		Hosts:   Hosts,
		Version: apiv1.Version(Version),
	}
}

// FlushMetrics writes the metrics to the requested file, if any
func FlushMetrics() error {
	if MetricsFile == "" {
		return nil
	}
	return metrics.WriteTextfile(MetricsFile)
}

// RequiresArguments will show the help message in case no argument has been provided
func RequiresArguments(nArgs int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < nArgs {
			_ = cmd.Help()
			os.Exit(0)
		}
		return nil
	}
}
