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

package sqlstore_test

import (
	"regexp"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	apiv1 "github.com/fleetdeck/fleetdeck/api/v1"
	"github.com/fleetdeck/fleetdeck/pkg/lock"
	"github.com/fleetdeck/fleetdeck/pkg/store/sqlstore"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var acquiredAt = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func lockRecord(holder string) apiv1.LockRecord {
	return apiv1.LockRecord{Holder: holder, Token: holder + "-token", AcquiredAt: acquiredAt}
}

func bootEvent(host string) apiv1.BootEvent {
	return apiv1.BootEvent{
		Host:      host,
		Role:      "web",
		Version:   "v1",
		Timestamp: acquiredAt,
		Outcome:   apiv1.BootOutcomeBooted,
		Operation: apiv1.OperationDeploy,
	}
}

var _ = Describe("PostgreSQL store", func() {
	var (
		mock sqlmock.Sqlmock
		db   *sqlstore.DB
	)

	BeforeEach(func() {
		sqlDB, sqlMock, err := sqlmock.New()
		Expect(err).ToNot(HaveOccurred())
		DeferCleanup(func() {
			Expect(mock.ExpectationsWereMet()).To(Succeed())
			_ = sqlDB.Close()
		})
		mock = sqlMock
		db = sqlstore.New(sqlDB, sqlstore.DialectPostgres)
	})

	It("uses positional parameters", func(ctx SpecContext) {
		mock.ExpectExec(regexp.QuoteMeta("VALUES ($1, $2, $3, $4, $5, $6, $7)")).
			WithArgs("app", "alice", "alice-token", "", "", "2026-03-01T10:00:00Z", "").
			WillReturnResult(sqlmock.NewResult(0, 1))

		store := &sqlstore.LockStore{DB: db, Service: "app"}
		Expect(store.Create(ctx, lockRecord("alice"))).To(Succeed())
	})

	It("maps unique violations to an existing lock", func(ctx SpecContext) {
		mock.ExpectExec("INSERT INTO deploy_locks").
			WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

		store := &sqlstore.LockStore{DB: db, Service: "app"}
		Expect(store.Create(ctx, lockRecord("alice"))).To(MatchError(lock.ErrExists))
	})

	It("reports a lock owned by another acquisition", func(ctx SpecContext) {
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM deploy_locks WHERE service = $1 AND token = $2")).
			WithArgs("app", "mine").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT holder, token").
			WithArgs("app").
			WillReturnRows(sqlmock.NewRows(
				[]string{"holder", "token", "message", "version", "acquired_at", "expires_at"}).
				AddRow("bob", "bob-token", "", "v2", "2026-03-01T10:00:00Z", ""))

		store := &sqlstore.LockStore{DB: db, Service: "app"}
		Expect(store.Delete(ctx, "mine")).To(MatchError(lock.ErrNotHolder))
	})

	It("reads the boot events in sequence order", func(ctx SpecContext) {
		mock.ExpectQuery(regexp.QuoteMeta("WHERE service = $1 AND archived_at IS NULL")).
			WithArgs("app").
			WillReturnRows(sqlmock.NewRows([]string{
				"sequence", "host", "role", "version", "recorded_at",
				"outcome", "operation", "operation_id", "performer", "message",
			}).
				AddRow(1, "vm1", "web", "v1", "2026-03-01T10:00:00Z", "booted", "deploy", "op", "alice", "").
				AddRow(2, "vm2", "web", "v1", "2026-03-01T10:00:01Z", "failed", "deploy", "op", "alice", "unhealthy"))

		events, err := sqlstore.NewLedger(db, "app").Events(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(events).To(HaveLen(2))
		Expect(events[0].IsBooted()).To(BeTrue())
		Expect(events[1].Sequence).To(BeEquivalentTo(2))
		Expect(events[1].Message).To(Equal("unhealthy"))
		Expect(events[1].Timestamp).To(BeTemporally("==", acquiredAt.Add(time.Second)))
	})

	It("archives the events when cleared", func(ctx SpecContext) {
		mock.ExpectExec(regexp.QuoteMeta("UPDATE boot_events SET archived_at = $1 WHERE service = $2")).
			WithArgs(sqlmock.AnyArg(), "app").
			WillReturnResult(sqlmock.NewResult(0, 3))

		Expect(sqlstore.NewLedger(db, "app").Clear(ctx)).To(Succeed())
	})
})
