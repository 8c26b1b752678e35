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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bunit/tracking"
	"github.com/tomoncle/bunit/uow"
)

func newTestUnit(t *testing.T, opts *uow.Options) (*uow.UnitOfWork, *Session) {
	t.Helper()
	s := newTestSession(newTestDB(t))
	u := uow.New(s, opts)
	u.SetLogger(quietLogger())
	return u, s
}

func TestUnitOfWorkCommitsThroughSession(t *testing.T) {
	u, s := newTestUnit(t, &uow.Options{UseTransactions: true, ValidateAffectedRows: true})
	require.NoError(t, s.Tracker().Add(&customer{Name: "kim", Email: "kim@example.com"}))
	require.NoError(t, s.Tracker().Add(&customer{Name: "lee", Email: "lee@example.com"}))

	res, err := u.SaveResult()
	require.NoError(t, err)
	assert.True(t, res.Status)
	assert.Equal(t, int64(2), res.AffectedRows)
	assert.Equal(t, 2, countCustomers(t, s.DB()))

	// nothing left to save
	res, err = u.SaveResult()
	require.NoError(t, err)
	assert.Equal(t, uow.OutcomeNoChanges, res.Outcome)
	assert.False(t, res.IsRollback)
}

func TestUnitOfWorkRollsBackStaleUpdate(t *testing.T) {
	ctx := context.Background()
	u, s := newTestUnit(t, &uow.Options{UseTransactions: true, ValidateAffectedRows: true})
	c := &customer{Name: "max", Email: "max@example.com"}
	require.NoError(t, s.Tracker().Add(c))
	ok, err := u.Save()
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.DB().NewUpdate().Model((*customer)(nil)).Set("version = ?", 3).Where("id = ?", c.ID).Exec(ctx)
	require.NoError(t, err)

	c.Name = "max two"
	res, err := u.SaveResult()
	require.NoError(t, err)
	assert.Equal(t, uow.OutcomeFault, res.Outcome)
	assert.True(t, res.IsRollback)
	assert.ErrorIs(t, res.Err, ErrConcurrencyConflict)
	assert.Equal(t, tracking.Modified, s.Tracker().State(c))
	assert.False(t, u.InTransaction())
}

func TestUnitOfWorkStaleEntityFailsWholeSaveByDefault(t *testing.T) {
	ctx := context.Background()
	u, s := newTestUnit(t, nil)
	a := &customer{Name: "a", Email: "a@example.com"}
	b := &customer{Name: "b", Email: "b@example.com"}
	require.NoError(t, s.Tracker().Add(a))
	require.NoError(t, s.Tracker().Add(b))
	ok, err := u.Save()
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.DB().NewUpdate().Model((*customer)(nil)).Set("version = ?", 5).Where("id = ?", a.ID).Exec(ctx)
	require.NoError(t, err)

	a.Name = "a two"
	b.Name = "b two"
	res, err := u.SaveResult()
	require.NoError(t, err)
	assert.False(t, res.Status)
	assert.True(t, res.IsRollback)
	assert.Equal(t, uow.OutcomeFault, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrConcurrencyConflict)

	assert.Equal(t, tracking.Modified, s.Tracker().State(a))
	assert.Equal(t, tracking.Modified, s.Tracker().State(b))
	assert.Equal(t, int64(0), b.Version)

	stored := map[string]string{}
	var rows []customer
	require.NoError(t, s.DB().NewSelect().Model(&rows).Scan(ctx))
	for _, r := range rows {
		stored[r.Email] = r.Name
	}
	assert.Equal(t, map[string]string{"a@example.com": "a", "b@example.com": "b"}, stored)
}

func TestUnitOfWorkCapturesDuplicateKey(t *testing.T) {
	u, s := newTestUnit(t, nil)
	require.NoError(t, s.Tracker().Add(&customer{Name: "ned", Email: "same@example.com"}))
	require.NoError(t, s.Tracker().Add(&customer{Name: "oli", Email: "same@example.com"}))

	res, err := u.SaveResult()
	require.NoError(t, err)
	assert.Equal(t, uow.OutcomeFault, res.Outcome)
	assert.True(t, res.IsRollback)

	var fe *FlushError
	require.ErrorAs(t, res.Err, &fe)
	assert.Equal(t, DuplicateKeyErr, fe.Kind)
	assert.Equal(t, 0, countCustomers(t, s.DB()))
}

func TestUnitOfWorkWithoutTransactions(t *testing.T) {
	u, s := newTestUnit(t, &uow.Options{UseTransactions: false})
	require.NoError(t, s.Tracker().Add(&customer{Name: "pat", Email: "pat@example.com"}))

	n, err := u.SaveChanges()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.False(t, s.Tracker().HasChanges())
}

func TestUnitOfWorkCloseClosesSession(t *testing.T) {
	u, s := newTestUnit(t, nil)
	require.NoError(t, s.Tracker().Add(&customer{Name: "quin", Email: "quin@example.com"}))
	require.NoError(t, u.BeginTransaction())

	require.NoError(t, u.Close())
	assert.Equal(t, 0, s.Tracker().Len())
	_, err := s.BeginTx(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)
}
