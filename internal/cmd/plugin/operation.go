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

package plugin

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cheynewallace/tabby"
	"github.com/logrusorgru/aurora/v4"

	"github.com/fleetdeck/fleetdeck/internal/controller/cutover"
	"github.com/fleetdeck/fleetdeck/pkg/fleeterrors"
)

// NewTable creates a tabby table writing to the passed writer
func NewTable(writer io.Writer) *tabby.Tabby {
	return tabby.NewCustom(tabwriter.NewWriter(writer, 0, 0, 4, ' ', 0))
}

// PrintReport renders the result of a state-mutating operation
func PrintReport(report *cutover.Report, format OutputFormat, writer io.Writer) error {
	if report == nil {
		return nil
	}
	if format != OutputFormatText {
		return Print(report, format, writer)
	}

	title := fmt.Sprintf("%s %s", report.Operation, report.Version)
	if report.Version.IsEmpty() {
		title = string(report.Operation)
	}
	_, _ = fmt.Fprintln(writer, aurora.Bold(title))
	_, _ = fmt.Fprintf(writer, "Operation %s, completed in %s\n\n",
		report.OperationID, report.Duration().Round(time.Millisecond))

	if len(report.Targets) > 0 {
		table := NewTable(writer)
		table.AddHeader("ROLE", "HOST", "OUTCOME", "HEALTH PROBES", "ERROR")
		for _, target := range report.Targets {
			probes := ""
			if target.Attempts > 0 {
				probes = fmt.Sprint(target.Attempts)
			}
			table.AddLine(target.Role, target.Host, outcomeColor(string(target.Outcome)), probes, target.Error)
		}
		table.Print()
	}

	for _, target := range report.Failed() {
		if len(target.Logs) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(writer, "\n%s\n", aurora.Yellow(fmt.Sprintf("Logs of %s@%s:", target.Role, target.Host)))
		for _, line := range target.Logs {
			_, _ = fmt.Fprintf(writer, "  %s\n", line)
		}
	}

	for _, warning := range report.Warnings {
		_, _ = fmt.Fprintf(writer, "%s %s\n", aurora.Yellow("Warning:"), warning)
	}
	return nil
}

// DescribeError explains the failure of an operation, with one line per
// failed host when the cutover partially failed
func DescribeError(err error) string {
	var partialFailure *fleeterrors.PartialFailureError
	if !errors.As(err, &partialFailure) {
		return err.Error()
	}

	var builder strings.Builder
	builder.WriteString(err.Error())
	for _, host := range partialFailure.FailedHosts() {
		fmt.Fprintf(&builder, "\n  %s: %v", host, partialFailure.Failures[host])
	}
	return builder.String()
}

// RunOperation prints the report of an operation and flushes the metrics,
// whether the operation succeeded or not
func RunOperation(writer io.Writer, f func() (*cutover.Report, error)) error {
	format, err := ParseOutputFormat(Output)
	if err != nil {
		return err
	}

	report, opErr := f()
	if err := PrintReport(report, format, writer); err != nil {
		return err
	}
	if err := FlushMetrics(); err != nil {
		opErr = errors.Join(opErr, fmt.Errorf("writing metrics: %w", err))
	}
	if opErr != nil {
		return errors.New(DescribeError(opErr))
	}
	return nil
}
