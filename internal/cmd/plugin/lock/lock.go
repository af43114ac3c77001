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

package lock

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/logrusorgru/aurora/v4"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin"
)

// Status prints the holder of the deploy lock
func Status(ctx context.Context, format plugin.OutputFormat, writer io.Writer) error {
	fleet, err := plugin.NewFleet(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = fleet.Close()
	}()

	record, err := fleet.LockStatus(ctx)
	if err != nil {
		return err
	}

	if format != plugin.OutputFormatText {
		return plugin.Print(record, format, writer)
	}
	if record == nil {
		_, err = fmt.Fprintln(writer, "There is no deploy lock")
		return err
	}
	printRecord(record, writer)
	return nil
}

// Acquire takes the deploy lock, failing if someone else holds it
func Acquire(ctx context.Context, message string, writer io.Writer) error {
	fleet, err := plugin.NewFleet(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = fleet.Close()
	}()

	record, err := fleet.AcquireLock(ctx, message)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(writer, aurora.Green("Deploy lock acquired"))
	printRecord(&record, writer)
	return nil
}

// Release removes the deploy lock, whoever holds it
func Release(ctx context.Context, writer io.Writer) error {
	fleet, err := plugin.NewFleet(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = fleet.Close()
	}()

	record, err := fleet.ReleaseLock(ctx)
	if err != nil {
		return err
	}
	if record == nil {
		_, err = fmt.Fprintln(writer, "There was no deploy lock")
		return err
	}
	_, _ = fmt.Fprintf(writer, "%s, it was held by %s\n", aurora.Green("Deploy lock released"), record.Holder)
	return nil
}

func printRecord(record *apiv1.LockRecord, writer io.Writer) {
	table := plugin.NewTable(writer)
	table.AddLine("Holder", record.Holder)
	table.AddLine("Message", record.Message)
	if !record.Version.IsEmpty() {
		table.AddLine("Version", record.Version)
	}
	table.AddLine("Acquired at", record.AcquiredAt.Local().Format(time.RFC3339))
	if !record.ExpiresAt.IsZero() {
		table.AddLine("Expires at", record.ExpiresAt.Local().Format(time.RFC3339))
	}
	table.Print()
}
