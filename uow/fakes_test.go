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

package uow

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/tomoncle/bunit/tracking"
)

type order struct {
	ID     string
	Amount int
}

type fakeTx struct {
	mu          sync.Mutex
	commits     int
	rollbacks   int
	commitErr   error
	rollbackErr error
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.commits++
	return tx.commitErr
}

func (tx *fakeTx) Rollback(context.Context) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.rollbacks++
	return tx.rollbackErr
}

func (tx *fakeTx) counts() (int, int) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return tx.commits, tx.rollbacks
}

// fakeSession records every call the unit of work makes against it.
type fakeSession struct {
	mu      sync.Mutex
	tracker *tracking.Tracker

	beginErr  error
	commitErr error
	flushRows int64
	flushErr  error
	flushFn   func(ctx context.Context) (int64, error)

	txs        []*fakeTx
	flushCalls int
	closeCalls int
}

func newFakeSession() *fakeSession {
	return &fakeSession{tracker: tracking.New()}
}

func (s *fakeSession) BeginTx(context.Context) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	tx := &fakeTx{commitErr: s.commitErr}
	s.txs = append(s.txs, tx)
	return tx, nil
}

func (s *fakeSession) Flush(ctx context.Context) (int64, error) {
	s.mu.Lock()
	s.flushCalls++
	fn := s.flushFn
	s.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return s.flushRows, s.flushErr
}

func (s *fakeSession) ChangeTracker() ChangeTracker { return s.tracker }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	return nil
}

func (s *fakeSession) lastTx() *fakeTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.txs) == 0 {
		return nil
	}
	return s.txs[len(s.txs)-1]
}

func (s *fakeSession) flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushCalls
}

type logEntry struct {
	level  string
	msg    string
	fields []interface{}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) record(level, msg string, fields []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) Debug(msg string, fields ...interface{}) { l.record("debug", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...interface{}) { l.record("error", msg, fields) }
func (l *recordingLogger) Fatal(msg string, fields ...interface{}) { l.record("fatal", msg, fields) }

func (l *recordingLogger) levels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.level+":"+e.msg)
	}
	return out
}

type mockLogger struct {
	mock.Mock
}

func (m *mockLogger) Debug(msg string, fields ...interface{}) {
	m.Called(append([]interface{}{msg}, fields...)...)
}

func (m *mockLogger) Error(msg string, fields ...interface{}) {
	m.Called(append([]interface{}{msg}, fields...)...)
}

func (m *mockLogger) Fatal(msg string, fields ...interface{}) {
	m.Called(append([]interface{}{msg}, fields...)...)
}

type observed struct {
	result  Result
	elapsed time.Duration
}

type recordingObserver struct {
	mu    sync.Mutex
	saves []observed
}

func (o *recordingObserver) ObserveSave(_ context.Context, result Result, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.saves = append(o.saves, observed{result: result, elapsed: elapsed})
}
