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

package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
)

// Ledger implements ledger.Ledger over the boot_events table. Cleared
// events are archived, never deleted.
type Ledger struct {
	DB      *DB
	Service string

	now func() time.Time
}

// NewLedger creates the ledger of a service
func NewLedger(db *DB, service string) *Ledger {
	return &Ledger{DB: db, Service: service, now: time.Now}
}

// Append implements ledger.Ledger
func (l *Ledger) Append(ctx context.Context, event apiv1.BootEvent) error {
	_, err := l.DB.execContext(ctx,
		`INSERT INTO boot_events
		 (service, host, role, version, recorded_at, outcome, operation, operation_id, performer, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.Service, event.Host, event.Role, string(event.Version), formatTime(event.Timestamp),
		string(event.Outcome), string(event.Operation), event.OperationID, event.Performer, event.Message,
	)
	if err != nil {
		return fmt.Errorf("insert boot event: %w", err)
	}
	return nil
}

// Events implements ledger.Ledger
func (l *Ledger) Events(ctx context.Context) ([]apiv1.BootEvent, error) {
	rows, err := l.DB.queryContext(ctx,
		`SELECT sequence, host, role, version, recorded_at, outcome, operation, operation_id, performer, message
		 FROM boot_events WHERE service = ? AND archived_at IS NULL
		 ORDER BY sequence`,
		l.Service,
	)
	if err != nil {
		return nil, fmt.Errorf("list boot events: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var events []apiv1.BootEvent
	for rows.Next() {
		event, err := scanBootEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanBootEvent(rows *sql.Rows) (apiv1.BootEvent, error) {
	var event apiv1.BootEvent
	var version, recordedAt, outcome, operation string
	if err := rows.Scan(&event.Sequence, &event.Host, &event.Role, &version, &recordedAt,
		&outcome, &operation, &event.OperationID, &event.Performer, &event.Message); err != nil {
		return apiv1.BootEvent{}, fmt.Errorf("scan boot event: %w", err)
	}

	timestamp, err := parseTime(recordedAt)
	if err != nil {
		return apiv1.BootEvent{}, err
	}
	event.Timestamp = timestamp
	event.Version = apiv1.Version(version)
	event.Outcome = apiv1.BootOutcome(outcome)
	event.Operation = apiv1.OperationKind(operation)
	return event, nil
}

// Clear implements ledger.Ledger
func (l *Ledger) Clear(ctx context.Context) error {
	_, err := l.DB.execContext(ctx,
		`UPDATE boot_events SET archived_at = ? WHERE service = ? AND archived_at IS NULL`,
		formatTime(l.now()), l.Service,
	)
	if err != nil {
		return fmt.Errorf("archive boot events: %w", err)
	}
	return nil
}
