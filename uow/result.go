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

import "github.com/tomoncle/bunit/types"

// Outcome classifies how a save ended.
type Outcome int

const (
	// OutcomeNone is carried by the Result returned with a precondition
	// error; the save never started.
	OutcomeNone Outcome = iota
	OutcomeCommitted
	OutcomeNoChanges
	OutcomeNoRowsAffected
	OutcomeRowCountMismatch
	OutcomeFault
)

var _ types.BaseEnum = OutcomeCommitted

var outcomeNames = map[Outcome]string{
	OutcomeNone:             "none",
	OutcomeCommitted:        "committed",
	OutcomeNoChanges:        "no_changes",
	OutcomeNoRowsAffected:   "no_rows_affected",
	OutcomeRowCountMismatch: "row_count_mismatch",
	OutcomeFault:            "fault",
}

var outcomeDescs = map[Outcome]string{
	OutcomeNone:             "save not attempted",
	OutcomeCommitted:        "changes committed",
	OutcomeNoChanges:        "nothing to save",
	OutcomeNoRowsAffected:   "flush wrote no rows, rolled back",
	OutcomeRowCountMismatch: "written rows differ from changed entries, rolled back",
	OutcomeFault:            "unexpected error, rolled back",
}

// ParseOutcome returns the outcome named s, as produced by String.
func ParseOutcome(s string) (Outcome, bool) {
	return types.ParseEnum(s, OutcomeNone, OutcomeCommitted, OutcomeNoChanges, OutcomeNoRowsAffected, OutcomeRowCountMismatch, OutcomeFault)
}

func (o Outcome) IsValid() bool {
	_, ok := outcomeNames[o]
	return ok
}

func (o Outcome) Number() int {
	if !o.IsValid() {
		return types.IllegalValue
	}
	return int(o)
}

func (o Outcome) Name() string {
	if n, ok := outcomeNames[o]; ok {
		return n
	}
	return types.IllegalName
}

func (o Outcome) String() string { return o.Name() }

func (o Outcome) Desc() string {
	if d, ok := outcomeDescs[o]; ok {
		return d
	}
	return types.IllegalDesc
}

// Result is the outcome of one save. It is returned by value.
type Result struct {
	// Status is true only when the changes were committed.
	Status bool

	// IsRollback is true whenever a rollback was attempted, including the
	// no-op rollback of a unit of work without transactions.
	IsRollback bool

	// AffectedRows is the flushed row count on success and 0 otherwise.
	AffectedRows int64

	// Err holds the fault captured on the unexpected-error path.
	Err error

	Outcome Outcome
}

func committed(affected int64) Result {
	return Result{Status: true, AffectedRows: affected, Outcome: OutcomeCommitted}
}

func noChanges() Result {
	return Result{Outcome: OutcomeNoChanges}
}

func rolledBack(outcome Outcome) Result {
	return Result{IsRollback: true, Outcome: outcome}
}

func faulted(err error) Result {
	return Result{IsRollback: true, Err: err, Outcome: OutcomeFault}
}

// AsyncResult carries the values of a save that ran on its own goroutine.
type AsyncResult struct {
	Result Result
	Err    error
}
