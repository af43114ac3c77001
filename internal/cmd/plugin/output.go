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

import "fmt"

// OutputFormat represent the format of the output of a subcommand
type OutputFormat string

const (
	// OutputFormatText means the output is human-readable tables
	OutputFormatText OutputFormat = "text"

	// OutputFormatJSON means use machine-readable JSON output
	OutputFormatJSON OutputFormat = "json"

	// OutputFormatYAML means use machine-readable YAML output
	OutputFormatYAML OutputFormat = "yaml"
)

// Output is the format selected with the --output flag
var Output = string(OutputFormatText)

// ParseOutputFormat validates the name of an output format
func ParseOutputFormat(value string) (OutputFormat, error) {
	switch format := OutputFormat(value); format {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return format, nil
	case "":
		return OutputFormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q, expected one of text|json|yaml", value)
	}
}
