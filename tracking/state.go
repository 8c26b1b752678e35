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

package tracking

import "github.com/tomoncle/bunit/types"

// EntryState is the lifecycle state of a tracked entity.
type EntryState int

const (
	Detached EntryState = iota
	Unchanged
	Added
	Modified
	Deleted
)

var _ types.BaseEnum = Detached

var stateNames = map[EntryState]string{
	Detached:  "detached",
	Unchanged: "unchanged",
	Added:     "added",
	Modified:  "modified",
	Deleted:   "deleted",
}

var stateDescs = map[EntryState]string{
	Detached:  "not tracked",
	Unchanged: "tracked, matches the database",
	Added:     "tracked, pending insert",
	Modified:  "tracked, pending update",
	Deleted:   "tracked, pending delete",
}

// ParseEntryState returns the state named name, as produced by String.
func ParseEntryState(name string) (EntryState, bool) {
	return types.ParseEnum(name, Detached, Unchanged, Added, Modified, Deleted)
}

func (s EntryState) IsValid() bool {
	_, ok := stateNames[s]
	return ok
}

func (s EntryState) Number() int {
	if !s.IsValid() {
		return types.IllegalValue
	}
	return int(s)
}

func (s EntryState) Name() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return types.IllegalName
}

func (s EntryState) String() string { return s.Name() }

func (s EntryState) Desc() string {
	if d, ok := stateDescs[s]; ok {
		return d
	}
	return types.IllegalDesc
}

// IsDirty reports whether an entity in this state has a pending mutation,
// i.e. it is neither Unchanged nor Detached.
func (s EntryState) IsDirty() bool {
	return s == Added || s == Modified || s == Deleted
}
