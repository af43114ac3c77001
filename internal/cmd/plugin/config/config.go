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

package config

import (
	"context"
	"io"

	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin"
)

// Config prints the effective configuration. The text format is YAML,
// this being a document rather than a list of records.
func Config(ctx context.Context, format plugin.OutputFormat, writer io.Writer) error {
	fleet, err := plugin.NewFleet(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = fleet.Close()
	}()

	if format == plugin.OutputFormatText {
		format = plugin.OutputFormatYAML
	}
	return plugin.Print(fleet.Config(ctx), format, writer)
}
