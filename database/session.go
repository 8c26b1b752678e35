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
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/tomoncle/bunit/entity"
	"github.com/tomoncle/bunit/tracking"
	"github.com/tomoncle/bunit/uow"
	"github.com/uptrace/bun"
)

var (
	ErrTxInProgress  = errors.New("database: transaction already in progress")
	ErrSessionClosed = errors.New("database: session is closed")
)

// Session binds a change tracker to a bun database. It flushes tracked
// entities as insert, update and delete statements, inside the open
// transaction when there is one.
type Session struct {
	db      *bun.DB
	tracker *tracking.Tracker
	logger  Logger
	txOpts  *sql.TxOptions
	now     func() time.Time

	mu     sync.Mutex
	tx     *sessionTx
	closed bool
}

type SessionOption func(*Session)

func WithTxOptions(opts *sql.TxOptions) SessionOption {
	return func(s *Session) { s.txOpts = opts }
}

// WithClock replaces the time source used for identity and audit stamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

func WithSessionLogger(logger Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

func WithTracker(tracker *tracking.Tracker) SessionOption {
	return func(s *Session) { s.tracker = tracker }
}

func NewSession(db *bun.DB, opts ...SessionOption) *Session {
	s := &Session{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.tracker == nil {
		s.tracker = tracking.New()
	}
	if s.logger == nil {
		s.logger = GetLogger()
	}
	return s
}

var _ uow.Session = (*Session)(nil)

// DB returns the underlying database.
func (s *Session) DB() *bun.DB { return s.db }

// Tracker returns the session's change tracker.
func (s *Session) Tracker() *tracking.Tracker { return s.tracker }

func (s *Session) ChangeTracker() uow.ChangeTracker { return s.tracker }

// IDB returns the open transaction, or the database when none is open.
// Queries issued through it see the session's uncommitted writes.
func (s *Session) IDB() bun.IDB {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tx != nil {
		return s.tx.tx
	}
	return s.db
}

func (s *Session) BeginTx(ctx context.Context) (uow.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tx != nil {
		return nil, ErrTxInProgress
	}
	tx, err := s.db.BeginTx(ctx, s.txOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = &sessionTx{session: s, tx: tx}
	return s.tx, nil
}

// Flush writes every dirty entry in registration order and returns the
// summed RowsAffected. Without an open transaction the written entries are
// accepted immediately; otherwise acceptance waits for the commit.
func (s *Session) Flush(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSessionClosed
	}
	tx := s.tx
	s.mu.Unlock()

	var idb bun.IDB = s.db
	if tx != nil {
		idb = tx.tx
	}

	now := s.now()
	var (
		total   int64
		written []any
		images  []*preimage
		counts  = map[tracking.EntryState]int{}
	)
	for _, e := range s.tracker.Entries() {
		model := e.Entity()
		image := capture(model)
		var (
			n   int64
			err error
		)
		switch e.State() {
		case tracking.Added:
			n, err = s.insert(ctx, idb, model, now)
		case tracking.Modified:
			n, err = s.update(ctx, idb, model, now)
		case tracking.Deleted:
			n, err = s.delete(ctx, idb, model)
		default:
			continue
		}
		if err != nil || n == 0 {
			// nothing was written for this entry, it stays dirty
			image.restore()
		}
		if err != nil {
			if tx != nil {
				tx.record(written, images)
			} else if len(written) > 0 {
				// earlier statements are already durable
				s.accept(written)
			}
			return 0, err
		}
		if n == 0 {
			continue
		}
		counts[e.State()]++
		written = append(written, model)
		images = append(images, image)
		total += n
	}

	if tx != nil {
		tx.record(written, images)
	} else {
		s.accept(written)
	}
	s.logger.Debug("Flushed tracked changes",
		"inserted", counts[tracking.Added],
		"updated", counts[tracking.Modified],
		"deleted", counts[tracking.Deleted],
		"affected_rows", total,
	)
	return total, nil
}

func (s *Session) accept(written []any) {
	if err := s.tracker.AcceptChanges(written...); err != nil {
		s.logger.Warn("Failed to refresh tracker snapshots", "error", err)
	}
}

func (s *Session) insert(ctx context.Context, idb bun.IDB, model any, now time.Time) (int64, error) {
	if m, ok := model.(entity.Identity); ok {
		m.AssignIdentity(now)
	}
	if m, ok := model.(entity.CreateStamped); ok {
		m.StampCreated(now)
	}
	res, err := idb.NewInsert().Model(model).Exec(ctx)
	if err != nil {
		return 0, newFlushError("insert", tableName(idb, model), err)
	}
	return rowsOf(res, "insert", tableName(idb, model))
}

// update writes model. A Versioned model only matches the row still carrying
// its current version; no match is a concurrency conflict.
func (s *Session) update(ctx context.Context, idb bun.IDB, model any, now time.Time) (int64, error) {
	if m, ok := model.(entity.UpdateStamped); ok {
		m.StampUpdated(now)
	}
	q := idb.NewUpdate().Model(model).WherePK()

	v, versioned := model.(entity.Versioned)
	if versioned {
		old := v.CurrentVersion()
		q = q.Where("? = ?", bun.Ident("version"), old)
		v.SetVersion(old + 1)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, newFlushError("update", tableName(idb, model), err)
	}
	n, err := rowsOf(res, "update", tableName(idb, model))
	if err == nil && n == 0 && versioned {
		return 0, newConcurrencyError("update", tableName(idb, model))
	}
	return n, err
}

func (s *Session) delete(ctx context.Context, idb bun.IDB, model any) (int64, error) {
	q := idb.NewDelete().Model(model).WherePK()
	v, versioned := model.(entity.Versioned)
	if versioned {
		q = q.Where("? = ?", bun.Ident("version"), v.CurrentVersion())
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, newFlushError("delete", tableName(idb, model), err)
	}
	n, err := rowsOf(res, "delete", tableName(idb, model))
	if err == nil && n == 0 && versioned {
		return 0, newConcurrencyError("delete", tableName(idb, model))
	}
	return n, err
}

// Close rolls back an open transaction and forgets every tracked entity.
// The database itself stays open.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	tx := s.tx
	s.mu.Unlock()

	var err error
	if tx != nil {
		err = tx.Rollback(context.Background())
		if errors.Is(err, sql.ErrTxDone) {
			err = nil
		}
	}
	s.tracker.Clear()
	return err
}

func (s *Session) endTx(t *sessionTx, committed bool) {
	s.mu.Lock()
	if s.tx == t {
		s.tx = nil
	}
	s.mu.Unlock()

	if !committed {
		for i := len(t.images) - 1; i >= 0; i-- {
			t.images[i].restore()
		}
		return
	}
	s.accept(t.written)
}

type sessionTx struct {
	session *Session
	tx      bun.Tx

	mu       sync.Mutex
	written  []any
	images   []*preimage
	finished bool
}

// finish reports whether this is the first commit or rollback of t.
func (t *sessionTx) finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	first := !t.finished
	t.finished = true
	return first
}

func (t *sessionTx) record(written []any, images []*preimage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = append(t.written, written...)
	t.images = append(t.images, images...)
}

func (t *sessionTx) Commit(_ context.Context) error {
	err := t.tx.Commit()
	if t.finish() {
		t.session.endTx(t, err == nil)
	}
	return err
}

func (t *sessionTx) Rollback(_ context.Context) error {
	err := t.tx.Rollback()
	if t.finish() {
		t.session.endTx(t, false)
	}
	return err
}

// preimage is a copy of an entity taken before the session stamped and
// wrote it. Restoring it undoes identity, audit and version stamps.
type preimage struct {
	target reflect.Value
	saved  reflect.Value
}

func capture(model any) *preimage {
	v := reflect.ValueOf(model)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil
	}
	elem := v.Elem()
	saved := reflect.New(elem.Type()).Elem()
	saved.Set(elem)
	return &preimage{target: elem, saved: saved}
}

func (p *preimage) restore() {
	if p != nil {
		p.target.Set(p.saved)
	}
}

func rowsOf(res sql.Result, op, table string) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, newFlushError(op, table, err)
	}
	return n, nil
}

func tableName(idb bun.IDB, model any) string {
	typ := reflect.TypeOf(model)
	if typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if table := idb.Dialect().Tables().Get(typ); table != nil {
		return table.Name
	}
	return typ.Name()
}
