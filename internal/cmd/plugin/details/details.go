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

package details

import (
	"context"
	"io"
	"strings"

	"github.com/logrusorgru/aurora/v4"

	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin"
	"github.com/fleetdeck/fleetdeck/internal/controller/cutover"
)

// Details prints the current version and the containers of the selected
// targets. Unreachable hosts are reported without failing.
func Details(ctx context.Context, format plugin.OutputFormat, writer io.Writer) error {
	fleet, err := plugin.NewFleet(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = fleet.Close()
	}()

	targets, err := fleet.Details(ctx, plugin.TargetOptions())
	if err != nil {
		return err
	}

	if format != plugin.OutputFormatText {
		return plugin.Print(targets, format, writer)
	}
	printText(targets, writer)
	return nil
}

func printText(targets []cutover.TargetDetails, writer io.Writer) {
	table := plugin.NewTable(writer)
	table.AddHeader("ROLE", "HOST", "CURRENT VERSION", "CONTAINERS")
	for _, target := range targets {
		if target.Error != "" {
			table.AddLine(target.Role, target.Host, target.CurrentVersion, aurora.Red(target.Error))
			continue
		}
		table.AddLine(target.Role, target.Host, target.CurrentVersion, describeContainers(target.Containers))
	}
	table.Print()
}

func describeContainers(containers []cutover.ContainerDetails) string {
	if len(containers) == 0 {
		return "-"
	}
	descriptions := make([]string, 0, len(containers))
	for _, container := range containers {
		descriptions = append(descriptions, container.Name+" ("+container.State+")")
	}
	return strings.Join(descriptions, ", ")
}
