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
	"time"

	"github.com/tomoncle/bunit/tracking"
)

// Session is the persistence engine capability the unit of work drives.
type Session interface {
	// BeginTx opens a transaction that subsequent Flush calls run in.
	BeginTx(ctx context.Context) (Transaction, error)

	// Flush writes every pending mutation and returns the number of rows
	// physically changed.
	Flush(ctx context.Context) (int64, error)

	// ChangeTracker returns the tracker holding the pending mutations.
	ChangeTracker() ChangeTracker

	// Close releases the underlying connection context.
	Close() error
}

// Transaction is an open transaction handle.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ChangeTracker reports what the session believes is dirty.
type ChangeTracker interface {
	AutoDetectChangesEnabled() bool
	Entries() []*tracking.Entry
	HasChanges() bool
}

// Logger receives diagnostics at each decision point of a save. Fields are
// alternating key/value pairs.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
}

// Observer is notified once per completed save.
type Observer interface {
	ObserveSave(ctx context.Context, result Result, elapsed time.Duration)
}

var _ ChangeTracker = (*tracking.Tracker)(nil)
