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
	"errors"
	"fmt"
)

// Precondition sentinels. They are always wrapped in a *PreconditionError and
// signal a usage bug, never a data conflict.
var (
	ErrTransactionAlreadyBegun   = errors.New("transaction already began")
	ErrNoTransaction             = errors.New("called without transaction")
	ErrAutoDetectChangesDisabled = errors.New("change tracking requires auto detect changes to be enabled")
	ErrDisposed                  = errors.New("unit of work is disposed")
)

// ErrCanceled marks a save fault caused by context cancellation. The context
// error is wrapped alongside it.
var ErrCanceled = errors.New("save canceled")

// PreconditionError reports misuse of the unit of work. It is returned as an
// error and never captured into a Result.
type PreconditionError struct {
	Op  string
	Err error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("uow: %s: %v", e.Op, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

func precondition(op string, err error) error {
	return &PreconditionError{Op: op, Err: err}
}

// IsPrecondition reports whether err is, or wraps, a *PreconditionError.
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// PanicError is captured into Result.Err when the session panics mid-save.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("uow: panic during save: %v", e.Value)
}

func canceled(err error) error {
	return fmt.Errorf("%w: %w", ErrCanceled, err)
}
