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

package audit

import (
	"context"
	"io"
	"time"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin"
)

// Audit prints the boot events in the order they were recorded
func Audit(ctx context.Context, format plugin.OutputFormat, writer io.Writer) error {
	fleet, err := plugin.NewFleet(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = fleet.Close()
	}()

	events, err := fleet.Audit(ctx)
	if err != nil {
		return err
	}

	if format != plugin.OutputFormatText {
		return plugin.Print(events, format, writer)
	}
	printText(events, writer)
	return nil
}

func printText(events []apiv1.BootEvent, writer io.Writer) {
	table := plugin.NewTable(writer)
	table.AddHeader("TIMESTAMP", "OPERATION", "ROLE", "HOST", "VERSION", "OUTCOME", "PERFORMER")
	for _, event := range events {
		table.AddLine(
			event.Timestamp.Local().Format(time.RFC3339),
			event.Operation,
			event.Role,
			event.Host,
			event.Version,
			event.Outcome,
			event.Performer,
		)
	}
	table.Print()
}
