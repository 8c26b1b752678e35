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
	"fmt"
)

// BeginTransaction opens the unit's transaction. It is a no-op when
// transactions are disabled.
func (u *UnitOfWork) BeginTransaction() error {
	return u.BeginTransactionContext(context.Background())
}

func (u *UnitOfWork) BeginTransactionContext(ctx context.Context) error {
	if !u.options.UseTransactions {
		return nil
	}

	u.mu.Lock()
	if u.disposed {
		u.mu.Unlock()
		return precondition("BeginTransaction", ErrDisposed)
	}
	if u.txBegun {
		u.mu.Unlock()
		return precondition("BeginTransaction", ErrTransactionAlreadyBegun)
	}
	// reserve the slot before calling out so a concurrent begin is rejected
	u.txBegun = true
	u.mu.Unlock()

	if err := ctx.Err(); err != nil {
		u.unreserve()
		return canceled(err)
	}
	tx, err := u.session.BeginTx(ctx)
	if err != nil {
		u.unreserve()
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.mu.Lock()
	u.tx = tx
	u.txFinished = false
	u.mu.Unlock()
	return nil
}

// CommitTransaction commits the open transaction.
func (u *UnitOfWork) CommitTransaction() error {
	return u.CommitTransactionContext(context.Background())
}

func (u *UnitOfWork) CommitTransactionContext(ctx context.Context) error {
	if !u.options.UseTransactions {
		return nil
	}
	tx, err := u.openTx("CommitTransaction")
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}
	u.markFinished()
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the open transaction.
func (u *UnitOfWork) RollbackTransaction() error {
	return u.RollbackTransactionContext(context.Background())
}

func (u *UnitOfWork) RollbackTransactionContext(ctx context.Context) error {
	if !u.options.UseTransactions {
		return nil
	}
	tx, err := u.openTx("RollbackTransaction")
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return canceled(err)
	}
	u.markFinished()
	if err := tx.Rollback(ctx); err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// ResetTransaction forgets the current transaction so a new one may begin.
// A transaction that was neither committed nor rolled back is released with
// a quiet rollback.
func (u *UnitOfWork) ResetTransaction() {
	if !u.options.UseTransactions {
		return
	}
	u.mu.Lock()
	tx, finished := u.tx, u.txFinished
	u.tx, u.txBegun, u.txFinished = nil, false, false
	u.mu.Unlock()

	if tx != nil && !finished {
		u.release(tx)
	}
}

// InTransaction reports whether a transaction is currently open.
func (u *UnitOfWork) InTransaction() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.txBegun
}

func (u *UnitOfWork) openTx(op string) (Transaction, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.disposed {
		return nil, precondition(op, ErrDisposed)
	}
	if !u.txBegun || u.tx == nil {
		return nil, precondition(op, ErrNoTransaction)
	}
	return u.tx, nil
}

func (u *UnitOfWork) unreserve() {
	u.mu.Lock()
	u.txBegun = false
	u.mu.Unlock()
}

func (u *UnitOfWork) markFinished() {
	u.mu.Lock()
	u.txFinished = true
	u.mu.Unlock()
}

func (u *UnitOfWork) release(tx Transaction) {
	if err := tx.Rollback(context.Background()); err != nil {
		u.debug("Releasing transaction failed", "error", err)
	}
}
