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

package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudnative-pg/machinery/pkg/log"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/executor"
	"github.com/fleetdeck/fleetdeck/pkg/specs"
)

// HostLedger keeps the boot events as JSON lines in the audit log of a
// host of the fleet. Sequence numbers are the line numbers.
type HostLedger struct {
	executor *executor.Executor
	host     apiv1.Host
	files    specs.StateFiles

	// m serializes the appends issued by this process
	m sync.Mutex

	now func() time.Time
}

// NewHostLedger creates a ledger kept on the passed host
func NewHostLedger(e *executor.Executor, host apiv1.Host, files specs.StateFiles) *HostLedger {
	return &HostLedger{
		executor: e,
		host:     host,
		files:    files,
		now:      time.Now,
	}
}

// Append implements Ledger
func (l *HostLedger) Append(ctx context.Context, event apiv1.BootEvent) error {
	event.Sequence = 0
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}

	l.m.Lock()
	defer l.m.Unlock()

	if outcome := l.executor.Execute(ctx, l.host, l.files.AppendAudit(string(line))); !outcome.Succeeded() {
		return fmt.Errorf("while appending to the audit log: %w", outcome.AsError())
	}
	return nil
}

// Events implements Ledger
func (l *HostLedger) Events(ctx context.Context) ([]apiv1.BootEvent, error) {
	outcome := l.executor.Execute(ctx, l.host, l.files.ReadAudit())
	if !outcome.Succeeded() {
		return nil, fmt.Errorf("while reading the audit log: %w", outcome.AsError())
	}
	return parseAuditLog(ctx, outcome.Stdout)
}

func parseAuditLog(ctx context.Context, content string) ([]apiv1.BootEvent, error) {
	var events []apiv1.BootEvent

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lineNumber int64
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lineNumber++

		var event apiv1.BootEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			// A truncated line can be left by an interrupted append
			log.FromContext(ctx).Warning("Skipping unreadable audit log line",
				"line", lineNumber, "error", err)
			continue
		}
		event.Sequence = lineNumber
		events = append(events, event)
	}

	return events, scanner.Err()
}

// Clear implements Ledger. The audit log is archived, not deleted.
func (l *HostLedger) Clear(ctx context.Context) error {
	l.m.Lock()
	defer l.m.Unlock()

	suffix := l.now().UTC().Format("20060102T150405Z")
	if outcome := l.executor.Execute(ctx, l.host, l.files.ArchiveAudit(suffix)); !outcome.Succeeded() {
		return fmt.Errorf("while archiving the audit log: %w", outcome.AsError())
	}
	return nil
}
