/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bunit/entity"
	"github.com/tomoncle/bunit/tracking"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type customer struct {
	bun.BaseModel `bun:"table:customers"`
	entity.Base
	entity.DefaultProps
	entity.ConcurrencyProps

	Name  string `bun:"name,notnull"`
	Email string `bun:"email,unique"`
}

type siteSettings struct {
	bun.BaseModel `bun:"table:site_settings"`
	entity.Single

	Theme string `bun:"theme"`
}

var testNow = time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

func quietLogger() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return NewDefaultLogger(l)
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	// a second pooled connection would open a different in-memory database
	sqldb.SetMaxOpenConns(1)
	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, CreateTables(context.Background(), db, (*customer)(nil), (*siteSettings)(nil)))
	return db
}

func newTestSession(db *bun.DB) *Session {
	return NewSession(db,
		WithClock(func() time.Time { return testNow }),
		WithSessionLogger(quietLogger()),
	)
}

func countCustomers(t *testing.T, db bun.IDB) int {
	t.Helper()
	n, err := db.NewSelect().Model((*customer)(nil)).Count(context.Background())
	require.NoError(t, err)
	return n
}

// seed inserts c outside of any transaction and leaves it tracked as Unchanged.
func seed(t *testing.T, s *Session, c *customer) {
	t.Helper()
	require.NoError(t, s.Tracker().Add(c))
	n, err := s.Flush(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Equal(t, tracking.Unchanged, s.Tracker().State(c))
}

func TestSessionInsertCommit(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestSession(db)

	a := &customer{Name: "ada", Email: "ada@example.com"}
	b := &customer{Name: "bob", Email: "bob@example.com"}
	require.NoError(t, s.Tracker().Add(a))
	require.NoError(t, s.Tracker().Add(b))

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	n, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.Equal(t, testNow, a.RegisterDate)
	assert.Equal(t, testNow, a.CreatedAt)
	assert.Nil(t, a.UpdatedAt)

	// pending until commit
	assert.Equal(t, tracking.Added, s.Tracker().State(a))
	require.NoError(t, tx.Commit(ctx))
	assert.Equal(t, tracking.Unchanged, s.Tracker().State(a))
	assert.False(t, s.Tracker().HasChanges())
	assert.Equal(t, 2, countCustomers(t, db))
}

func TestSessionRollbackKeepsChangesPending(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestSession(db)

	c := &customer{Name: "cy", Email: "cy@example.com"}
	require.NoError(t, s.Tracker().Add(c))

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = s.Flush(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	assert.Equal(t, 0, countCustomers(t, db))
	assert.Equal(t, tracking.Added, s.Tracker().State(c))
	assert.Same(t, db, s.IDB())
}

func TestSessionUpdateBumpsVersion(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestSession(db)
	c := &customer{Name: "dee", Email: "dee@example.com"}
	seed(t, s, c)

	c.Name = "dee dee"
	assert.True(t, s.Tracker().HasChanges())

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	n, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, tx.Commit(ctx))

	assert.Equal(t, int64(1), c.Version)
	require.NotNil(t, c.UpdatedAt)
	assert.Equal(t, testNow, *c.UpdatedAt)

	stored := &customer{}
	require.NoError(t, db.NewSelect().Model(stored).Where("id = ?", c.ID).Scan(ctx))
	assert.Equal(t, "dee dee", stored.Name)
	assert.Equal(t, int64(1), stored.Version)
}

func TestSessionStaleVersionIsConflict(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestSession(db)
	c := &customer{Name: "eve", Email: "eve@example.com"}
	seed(t, s, c)

	// another writer got there first
	_, err := db.NewUpdate().Model((*customer)(nil)).
		Set("version = ?", 7).
		Where("id = ?", c.ID).
		Exec(ctx)
	require.NoError(t, err)

	c.Name = "eve two"
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	n, err := s.Flush(ctx)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	var fe *FlushError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "update", fe.Op)
	assert.Equal(t, ConcurrencyConflictErr, fe.Kind)

	assert.Equal(t, int64(0), c.Version)
	assert.Nil(t, c.UpdatedAt)
	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, tracking.Modified, s.Tracker().State(c))
}

func TestSessionStaleDeleteIsConflict(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestSession(db)
	c := &customer{Name: "ula", Email: "ula@example.com"}
	seed(t, s, c)

	_, err := db.NewUpdate().Model((*customer)(nil)).
		Set("version = ?", 2).
		Where("id = ?", c.ID).
		Exec(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Tracker().Remove(c))
	_, err = s.Flush(ctx)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, tracking.Deleted, s.Tracker().State(c))
	assert.Equal(t, 1, countCustomers(t, db))
}

func TestSessionMissingRowStaysDirty(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestSession(db)

	settings := &siteSettings{Theme: "dark"}
	require.NoError(t, s.Tracker().Update(settings))
	n, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, tracking.Modified, s.Tracker().State(settings))
	assert.False(t, settings.Key)
}

func TestSessionRollbackRestoresStamps(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestSession(db)
	c := &customer{Name: "vic", Email: "vic@example.com"}
	require.NoError(t, s.Tracker().Add(c))

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = s.Flush(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, c.ID)
	assert.Equal(t, testNow, c.CreatedAt)

	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, uuid.Nil, c.ID)
	assert.True(t, c.RegisterDate.IsZero())
	assert.True(t, c.CreatedAt.IsZero())
	assert.Equal(t, "vic", c.Name)
	assert.Equal(t, tracking.Added, s.Tracker().State(c))
}

func TestSessionFailedInsertKeepsEntityUnstamped(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestSession(db)
	seed(t, s, &customer{Name: "wes", Email: "taken@example.com"})

	dup := &customer{Name: "xan", Email: "taken@example.com"}
	require.NoError(t, s.Tracker().Add(dup))
	_, err := s.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, uuid.Nil, dup.ID)
	assert.True(t, dup.CreatedAt.IsZero())
	assert.Equal(t, tracking.Added, s.Tracker().State(dup))
}

func TestSessionRollbackRestoresVersion(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestSession(db)
	c := &customer{Name: "fay", Email: "fay@example.com"}
	seed(t, s, c)

	c.Name = "fay two"
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Version)

	require.NoError(t, tx.Rollback(ctx))
	assert.Equal(t, int64(0), c.Version)
}

func TestSessionDelete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestSession(db)
	c := &customer{Name: "gus", Email: "gus@example.com"}
	seed(t, s, c)

	require.NoError(t, s.Tracker().Remove(c))
	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	n, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	require.NoError(t, tx.Commit(ctx))

	assert.Equal(t, 0, s.Tracker().Len())
	assert.Equal(t, 0, countCustomers(t, db))
}

func TestSessionFlushErrorIsClassified(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestSession(db)
	seed(t, s, &customer{Name: "hal", Email: "dup@example.com"})
	require.NoError(t, s.Tracker().Add(&customer{Name: "ian", Email: "dup@example.com"}))

	_, err := s.Flush(ctx)
	require.Error(t, err)
	var fe *FlushError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "insert", fe.Op)
	assert.Equal(t, "customers", fe.Table)
	assert.Equal(t, DuplicateKeyErr, fe.Kind)
}

func TestSessionSingleTransactionAtATime(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(newTestDB(t))

	tx, err := s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = s.BeginTx(ctx)
	assert.ErrorIs(t, err, ErrTxInProgress)

	require.NoError(t, tx.Commit(ctx))
	// a finished handle stays finished
	assert.ErrorIs(t, tx.Rollback(ctx), sql.ErrTxDone)

	tx, err = s.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))
}

func TestSessionCloseReleasesTransaction(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestSession(db)
	require.NoError(t, s.Tracker().Add(&customer{Name: "jo", Email: "jo@example.com"}))

	_, err := s.BeginTx(ctx)
	require.NoError(t, err)
	_, err = s.Flush(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 0, s.Tracker().Len())
	assert.Equal(t, 0, countCustomers(t, db))

	_, err = s.BeginTx(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.Flush(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSingleEntityKeyIsForced(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s := newTestSession(db)

	first := &siteSettings{Theme: "dark"}
	require.NoError(t, s.Tracker().Add(first))
	_, err := s.Flush(ctx)
	require.NoError(t, err)
	assert.True(t, first.Key)

	require.NoError(t, s.Tracker().Add(&siteSettings{Theme: "light"}))
	_, err = s.Flush(ctx)
	var fe *FlushError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, DuplicateKeyErr, fe.Kind)
}

type beacon struct {
	bun.BaseModel `bun:"table:beacons"`

	ID     string        `bun:"id,pk"`
	Code   string        `bun:"code,unique"`
	Signal chan struct{} `bun:"-"`
}

func TestSessionPartialFlushLogsSnapshotFailure(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, CreateTables(ctx, db, (*beacon)(nil)))

	l, hook := logtest.NewNullLogger()
	s := NewSession(db, WithSessionLogger(NewDefaultLogger(l)))

	first := &beacon{ID: "b1", Code: "same", Signal: make(chan struct{})}
	second := &beacon{ID: "b2", Code: "same"}
	require.NoError(t, s.Tracker().Add(first))
	require.NoError(t, s.Tracker().Add(second))

	_, err := s.Flush(ctx)
	require.Error(t, err)

	n, err := db.NewSelect().Model((*beacon)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, tracking.Added, s.Tracker().State(second))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "Failed to refresh tracker snapshots" {
			warned = true
		}
	}
	assert.True(t, warned)
}
