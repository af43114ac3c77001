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

package executor

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Fanout runs the task on every item, at most limit at a time, and
// waits for all of them. The error of each item is returned at the same
// index. Once the context is done no new task is started, and the items
// left are marked with the context error; running tasks are not
// interrupted by Fanout itself.
func Fanout[T any](
	ctx context.Context,
	limit int,
	items []T,
	task func(ctx context.Context, i int, item T) error,
) []error {
	errs := make([]error, len(items))

	var group errgroup.Group
	if limit > 0 {
		group.SetLimit(limit)
	}

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			errs[i] = err
			continue
		}

		group.Go(func() error {
			// The context may have been cancelled while waiting
			// for a free slot
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = task(ctx, i, item)
			return nil
		})
	}

	_ = group.Wait()
	return errs
}
