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

// Package lock implements the fleet-wide deploy lock. The lock lives in
// a Store, which must provide an exclusive create: the Manager adds the
// acquisition policy (waiting, leases, tokens) on top of it.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/cloudnative-pg/machinery/pkg/log"
	"github.com/google/uuid"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/fleeterrors"
)

// UnknownHolder is the holder reported for a lock whose record can't
// be read
const UnknownHolder = "unknown"

var (
	// ErrExists is returned by Store.Create when a lock record is present
	ErrExists = errors.New("lock record already exists")

	// ErrNotFound is returned by Store.Read when no lock record is present
	ErrNotFound = errors.New("lock record not found")

	// ErrNotHolder is returned by Store.Delete when the token doesn't
	// match the one of the stored record
	ErrNotHolder = errors.New("lock is held by another acquisition")
)

// Store persists the lock record
type Store interface {
	// Create stores the record, failing with ErrExists if a record is
	// already present
	Create(ctx context.Context, record apiv1.LockRecord) error

	// Read returns the stored record, or ErrNotFound
	Read(ctx context.Context) (apiv1.LockRecord, error)

	// Delete removes the record having the passed token. An empty token
	// removes any record. Deleting a missing record is not an error.
	Delete(ctx context.Context, token string) error
}

// DefaultRetryDelay is the time between two acquisition attempts
const DefaultRetryDelay = time.Second

// Manager acquires and releases the deploy lock
type Manager struct {
	store Store

	// ttl is the lease of the acquired locks, zero for no lease
	ttl time.Duration

	retryDelay time.Duration

	now func() time.Time
}

// Option configures a Manager
type Option func(*Manager)

// WithTTL sets a lease on the acquired locks
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.ttl = ttl
	}
}

// WithRetryDelay sets the time between two acquisition attempts
func WithRetryDelay(delay time.Duration) Option {
	return func(m *Manager) {
		if delay > 0 {
			m.retryDelay = delay
		}
	}
}

// WithClock replaces the clock used to stamp and expire the records
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a lock manager over a store
func NewManager(store Store, options ...Option) *Manager {
	m := &Manager{
		store:      store,
		retryDelay: DefaultRetryDelay,
		now:        time.Now,
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Acquire takes the lock for holder. When the lock is held, Acquire
// waits up to timeout for it to be released, failing with a
// LockHeldError afterwards. A zero timeout fails immediately.
func (m *Manager) Acquire(
	ctx context.Context,
	holder, message string,
	version apiv1.Version,
	timeout time.Duration,
) (apiv1.LockRecord, error) {
	contextLogger := log.FromContext(ctx).WithValues("holder", holder)

	if timeout <= 0 {
		return m.tryAcquire(ctx, holder, message, version)
	}

	var record apiv1.LockRecord
	var lastHeld *fleeterrors.LockHeldError
	try := func() error {
		var err error
		record, err = m.tryAcquire(ctx, holder, message, version)
		var held *fleeterrors.LockHeldError
		switch {
		case err == nil:
			return nil
		case errors.As(err, &held):
			lastHeld = held
			return err
		default:
			return retry.Unrecoverable(err)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := retry.New(
		retry.Attempts(uint(timeout/m.retryDelay)+1),
		retry.Delay(m.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(waitCtx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			contextLogger.Debug("Deploy lock busy, waiting", "attempt", attempt, "error", err)
		}),
	).Do(try)

	var held *fleeterrors.LockHeldError
	switch {
	case err == nil:
		return record, nil
	case ctx.Err() != nil:
		return apiv1.LockRecord{}, ctx.Err()
	case errors.As(err, &held):
		return apiv1.LockRecord{}, held
	case lastHeld != nil && errors.Is(err, context.DeadlineExceeded):
		// The wait expired while sleeping between two attempts
		return apiv1.LockRecord{}, lastHeld
	default:
		return apiv1.LockRecord{}, err
	}
}

func (m *Manager) tryAcquire(
	ctx context.Context,
	holder, message string,
	version apiv1.Version,
) (apiv1.LockRecord, error) {
	now := m.now()
	record := apiv1.LockRecord{
		Holder:     holder,
		Token:      uuid.NewString(),
		Message:    message,
		Version:    version,
		AcquiredAt: now,
	}
	if m.ttl > 0 {
		record.ExpiresAt = now.Add(m.ttl)
	}

	err := m.store.Create(ctx, record)
	if err == nil {
		log.FromContext(ctx).Info("Deploy lock acquired", "holder", holder, "token", record.Token)
		return record, nil
	}
	if !errors.Is(err, ErrExists) {
		return apiv1.LockRecord{}, fmt.Errorf("while acquiring the deploy lock: %w", err)
	}

	current, err := m.store.Read(ctx)
	if errors.Is(err, ErrNotFound) {
		// Released in the meantime
		return apiv1.LockRecord{}, &fleeterrors.LockHeldError{Holder: UnknownHolder}
	}
	if err != nil {
		return apiv1.LockRecord{}, fmt.Errorf("while reading the deploy lock: %w", err)
	}

	if current.IsExpired(now) {
		log.FromContext(ctx).Info("Removing expired deploy lock",
			"holder", current.Holder, "expiresAt", current.ExpiresAt)
		if err := m.store.Delete(ctx, current.Token); err != nil && !errors.Is(err, ErrNotHolder) {
			return apiv1.LockRecord{}, fmt.Errorf("while removing the expired deploy lock: %w", err)
		}
		return m.tryAcquireOnce(ctx, record)
	}

	return apiv1.LockRecord{}, heldError(current, now)
}

// tryAcquireOnce retries the creation after an expired lock has been
// removed, without removing anything else
func (m *Manager) tryAcquireOnce(ctx context.Context, record apiv1.LockRecord) (apiv1.LockRecord, error) {
	err := m.store.Create(ctx, record)
	switch {
	case err == nil:
		log.FromContext(ctx).Info("Deploy lock acquired", "holder", record.Holder, "token", record.Token)
		return record, nil
	case errors.Is(err, ErrExists):
		current, readErr := m.store.Read(ctx)
		if readErr != nil {
			return apiv1.LockRecord{}, &fleeterrors.LockHeldError{Holder: UnknownHolder}
		}
		return apiv1.LockRecord{}, heldError(current, m.now())
	default:
		return apiv1.LockRecord{}, fmt.Errorf("while acquiring the deploy lock: %w", err)
	}
}

func heldError(record apiv1.LockRecord, now time.Time) *fleeterrors.LockHeldError {
	return &fleeterrors.LockHeldError{
		Holder:  record.Holder,
		Message: record.Message,
		Age:     record.Age(now),
	}
}

// Release releases a lock acquired with Acquire. Releasing a lock that
// has been forcibly released, or has expired and been taken by someone
// else, fails with ErrNotHolder.
func (m *Manager) Release(ctx context.Context, record apiv1.LockRecord) error {
	if record.Token == "" {
		return fmt.Errorf("cannot release a lock without a token: %w", ErrNotHolder)
	}
	if err := m.store.Delete(ctx, record.Token); err != nil {
		return fmt.Errorf("while releasing the deploy lock: %w", err)
	}
	log.FromContext(ctx).Info("Deploy lock released", "holder", record.Holder)
	return nil
}

// ForceRelease removes the lock whoever holds it. It is never called
// automatically.
func (m *Manager) ForceRelease(ctx context.Context) (*apiv1.LockRecord, error) {
	current, err := m.Status(ctx)
	if err != nil {
		return nil, err
	}

	// A lock without a readable record is removed as well
	if err := m.store.Delete(ctx, ""); err != nil {
		return nil, fmt.Errorf("while removing the deploy lock: %w", err)
	}
	if current != nil {
		log.FromContext(ctx).Warning("Deploy lock forcibly released", "holder", current.Holder)
	}
	return current, nil
}

// Status returns the current lock record, nil when the lock is free.
// An expired record is reported as it is, Acquire will remove it.
func (m *Manager) Status(ctx context.Context) (*apiv1.LockRecord, error) {
	current, err := m.store.Read(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("while reading the deploy lock: %w", err)
	}
	return &current, nil
}
