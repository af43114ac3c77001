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
	"errors"
	"fmt"
	"time"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/lock"
)

// LockStore implements lock.Store with one row per service
type LockStore struct {
	DB      *DB
	Service string
}

// Create implements lock.Store
func (s *LockStore) Create(ctx context.Context, record apiv1.LockRecord) error {
	_, err := s.DB.execContext(ctx,
		`INSERT INTO deploy_locks (service, holder, token, message, version, acquired_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.Service, record.Holder, record.Token, record.Message, string(record.Version),
		formatTime(record.AcquiredAt), formatTime(record.ExpiresAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return lock.ErrExists
		}
		return fmt.Errorf("insert deploy lock: %w", err)
	}
	return nil
}

// Read implements lock.Store
func (s *LockStore) Read(ctx context.Context) (apiv1.LockRecord, error) {
	row := s.DB.queryRowContext(ctx,
		`SELECT holder, token, message, version, acquired_at, expires_at
		 FROM deploy_locks WHERE service = ?`,
		s.Service,
	)

	var record apiv1.LockRecord
	var version, acquiredAt, expiresAt string
	err := row.Scan(&record.Holder, &record.Token, &record.Message, &version, &acquiredAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return apiv1.LockRecord{}, lock.ErrNotFound
	}
	if err != nil {
		return apiv1.LockRecord{}, fmt.Errorf("read deploy lock: %w", err)
	}

	record.Version = apiv1.Version(version)
	if record.AcquiredAt, err = parseTime(acquiredAt); err != nil {
		return apiv1.LockRecord{}, err
	}
	if record.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return apiv1.LockRecord{}, err
	}
	return record, nil
}

// Delete implements lock.Store
func (s *LockStore) Delete(ctx context.Context, token string) error {
	if token == "" {
		if _, err := s.DB.execContext(ctx, `DELETE FROM deploy_locks WHERE service = ?`, s.Service); err != nil {
			return fmt.Errorf("delete deploy lock: %w", err)
		}
		return nil
	}

	result, err := s.DB.execContext(ctx,
		`DELETE FROM deploy_locks WHERE service = ? AND token = ?`, s.Service, token)
	if err != nil {
		return fmt.Errorf("delete deploy lock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete deploy lock: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Nothing deleted: either there's no lock or it's someone else's
	_, err = s.Read(ctx)
	switch {
	case errors.Is(err, lock.ErrNotFound):
		return nil
	case err != nil:
		return err
	default:
		return lock.ErrNotHolder
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}
	return t, nil
}
