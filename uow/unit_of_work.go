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
)

// UnitOfWork owns one session and at most one in-flight transaction. It is
// meant for a single logical unit of work (typically one inbound request)
// and must not be saved from several goroutines at once; use one instance
// per concurrent caller.
type UnitOfWork struct {
	session  Session
	options  Options
	logger   Logger
	observer Observer

	mu         sync.Mutex
	tx         Transaction
	txBegun    bool
	txFinished bool
	disposed   bool
}

// New returns a unit of work driving session. A nil options value resolves
// to DefaultOptions.
func New(session Session, options *Options) *UnitOfWork {
	if options == nil {
		options = DefaultOptions()
	}
	return &UnitOfWork{
		session: session,
		options: *options,
	}
}

// SetLogger sets the diagnostics sink. Call it before the first save.
func (u *UnitOfWork) SetLogger(logger Logger) {
	u.logger = logger
}

// SetObserver sets the hook notified after every completed save. Call it
// before the first save.
func (u *UnitOfWork) SetObserver(observer Observer) {
	u.observer = observer
}

// Options returns a copy of the save policy.
func (u *UnitOfWork) Options() Options { return u.options }

// Session returns the owned session.
func (u *UnitOfWork) Session() Session { return u.session }

// IsDisposed reports whether Close has been called.
func (u *UnitOfWork) IsDisposed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.disposed
}

// SaveResult saves pending changes and blocks until the outcome is known.
// Data-level failures are reported through the Result; the error is non-nil
// only for precondition violations.
func (u *UnitOfWork) SaveResult() (Result, error) {
	return u.saveResult(context.Background())
}

// SaveResultContext is SaveResult honoring ctx at every point where the save
// waits on the database. A cancellation becomes a fault wrapping ErrCanceled.
func (u *UnitOfWork) SaveResultContext(ctx context.Context) (Result, error) {
	return u.saveResult(ctx)
}

// SaveResultAsync runs SaveResultContext on its own goroutine. The channel
// receives exactly one value and is then closed.
func (u *UnitOfWork) SaveResultAsync(ctx context.Context) <-chan AsyncResult {
	ch := make(chan AsyncResult, 1)
	go func() {
		defer close(ch)
		res, err := u.saveResult(ctx)
		ch <- AsyncResult{Result: res, Err: err}
	}()
	return ch
}

// Save reports whether pending changes were committed.
func (u *UnitOfWork) Save() (bool, error) {
	res, err := u.SaveResult()
	return res.Status, err
}

func (u *UnitOfWork) SaveContext(ctx context.Context) (bool, error) {
	res, err := u.SaveResultContext(ctx)
	return res.Status, err
}

// SaveChanges returns the number of rows committed, 0 on any failure.
func (u *UnitOfWork) SaveChanges() (int64, error) {
	res, err := u.SaveResult()
	return res.AffectedRows, err
}

func (u *UnitOfWork) SaveChangesContext(ctx context.Context) (int64, error) {
	res, err := u.SaveResultContext(ctx)
	return res.AffectedRows, err
}

// HasChanges reports whether the change tracker holds dirty entries.
func (u *UnitOfWork) HasChanges() (bool, error) {
	if u.IsDisposed() {
		return false, precondition("HasChanges", ErrDisposed)
	}
	return HasPendingChanges(u.session.ChangeTracker())
}

// ChangedEntryCount returns the number of tracked entries that are neither
// Unchanged nor Detached.
func (u *UnitOfWork) ChangedEntryCount() (int, error) {
	if u.IsDisposed() {
		return 0, precondition("ChangedEntryCount", ErrDisposed)
	}
	return CountChangedEntries(u.session.ChangeTracker())
}

// CountChangedEntries counts the dirty entries of tracker. It fails with a
// precondition error when automatic change detection is disabled.
func CountChangedEntries(tracker ChangeTracker) (int, error) {
	if !tracker.AutoDetectChangesEnabled() {
		return 0, precondition("ChangedEntryCount", ErrAutoDetectChangesDisabled)
	}
	n := 0
	for _, e := range tracker.Entries() {
		if e.State().IsDirty() {
			n++
		}
	}
	return n, nil
}

// HasPendingChanges is the boolean form of CountChangedEntries.
func HasPendingChanges(tracker ChangeTracker) (bool, error) {
	if !tracker.AutoDetectChangesEnabled() {
		return false, precondition("HasChanges", ErrAutoDetectChangesDisabled)
	}
	return tracker.HasChanges(), nil
}

// Close disposes the unit of work: it releases a lingering transaction and
// closes the session. Further calls are no-ops.
func (u *UnitOfWork) Close() error {
	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		return nil
	}
	u.disposed = true
	tx, finished := u.tx, u.txFinished
	u.tx, u.txBegun, u.txFinished = nil, false, false
	u.mu.Unlock()

	if tx != nil && !finished {
		u.release(tx)
	}
	return u.session.Close()
}

func (u *UnitOfWork) saveResult(ctx context.Context) (result Result, err error) {
	if u.IsDisposed() {
		return Result{}, precondition("SaveResult", ErrDisposed)
	}
	start := time.Now()
	ownsTx := true
	defer func() {
		if r := recover(); r != nil {
			result, err = u.fault(ctx, &PanicError{Value: r}), nil
		}
		if ownsTx {
			u.ResetTransaction()
		}
		if err == nil && u.observer != nil {
			u.observer.ObserveSave(ctx, result, time.Since(start))
		}
	}()

	if err := u.BeginTransactionContext(ctx); err != nil {
		if IsPrecondition(err) {
			// the open transaction belongs to whoever began it
			ownsTx = false
			return Result{}, err
		}
		return u.fault(ctx, err), nil
	}

	changed, err := u.ChangedEntryCount()
	if err != nil {
		return Result{}, err
	}
	if changed == 0 && u.options.ValidateAffectedRows {
		u.debug("Db save failed: no changes")
		return noChanges(), nil
	}

	if err := ctx.Err(); err != nil {
		return u.fault(ctx, canceled(err)), nil
	}
	affected, err := u.session.Flush(ctx)
	if err != nil {
		return u.fault(ctx, err), nil
	}

	if affected == 0 {
		if err := u.RollbackTransactionContext(ctx); err != nil {
			return u.failure(ctx, err)
		}
		u.debug("Db save failed: affected rows 0")
		return rolledBack(OutcomeNoRowsAffected), nil
	}

	if u.options.ValidateAffectedRows && affected != int64(changed) {
		if err := u.RollbackTransactionContext(ctx); err != nil {
			return u.failure(ctx, err)
		}
		u.error("Db save failed: affected rows not matching changed entry count in change tracker",
			"affected_rows", affected,
			"changed_entry_count", changed,
		)
		return rolledBack(OutcomeRowCountMismatch), nil
	}

	if err := u.CommitTransactionContext(ctx); err != nil {
		return u.failure(ctx, err)
	}
	u.debug("Db saved successfully", "affected_rows", affected)
	return committed(affected), nil
}

func (u *UnitOfWork) failure(ctx context.Context, err error) (Result, error) {
	if IsPrecondition(err) {
		return Result{}, err
	}
	return u.fault(ctx, err), nil
}

// fault rolls back on a best-effort basis and captures err.
func (u *UnitOfWork) fault(ctx context.Context, err error) Result {
	if rbErr := u.RollbackTransactionContext(context.WithoutCancel(ctx)); rbErr != nil && !IsPrecondition(rbErr) {
		u.debug("Best-effort rollback failed", "error", rbErr)
	}
	u.fatal("InternalDbError", "error", err)
	return faulted(err)
}

func (u *UnitOfWork) debug(msg string, fields ...interface{}) {
	if u.options.EnableDefaultLogging && u.logger != nil {
		u.logger.Debug(msg, fields...)
	}
}

func (u *UnitOfWork) error(msg string, fields ...interface{}) {
	if u.options.EnableDefaultLogging && u.logger != nil {
		u.logger.Error(msg, fields...)
	}
}

func (u *UnitOfWork) fatal(msg string, fields ...interface{}) {
	if u.options.EnableDefaultLogging && u.logger != nil {
		u.logger.Fatal(msg, fields...)
	}
}
