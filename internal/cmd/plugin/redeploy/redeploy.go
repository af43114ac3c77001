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

package redeploy

import (
	"context"
	"io"

	"github.com/fleetdeck/fleetdeck/internal/cmd/plugin"
	"github.com/fleetdeck/fleetdeck/internal/controller/cutover"
)

// Redeploy boots the version again on the selected targets
func Redeploy(ctx context.Context, options cutover.Options, writer io.Writer) error {
	fleet, err := plugin.NewFleet(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = fleet.Close()
	}()

	return plugin.RunOperation(writer, func() (*cutover.Report, error) {
		return fleet.Redeploy(ctx, options)
	})
}
