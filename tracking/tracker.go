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

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrInvalidEntity = errors.New("entity must be a non-nil pointer to a struct")
	ErrNotTracked    = errors.New("entity is not tracked")
)

// Entry is the tracker's view of one entity.
type Entry struct {
	entity   any
	state    EntryState
	snapshot []byte
}

// Entity returns the tracked struct pointer.
func (e *Entry) Entity() any { return e.entity }

// State returns the entry state at the time Entries was called.
func (e *Entry) State() EntryState { return e.state }

// Tracker records which entities belong to a session and what must happen to
// each of them on the next flush. Entities are kept in registration order so
// flushes are deterministic.
type Tracker struct {
	mu         sync.Mutex
	entries    []*Entry
	index      map[any]*Entry
	autoDetect bool
}

// New returns a tracker with automatic change detection enabled.
func New() *Tracker {
	return &Tracker{
		index:      make(map[any]*Entry),
		autoDetect: true,
	}
}

// AutoDetectChangesEnabled reports whether Entries and HasChanges compare
// unchanged entities against their snapshots first.
func (t *Tracker) AutoDetectChangesEnabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.autoDetect
}

func (t *Tracker) SetAutoDetectChangesEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.autoDetect = enabled
}

// Add marks entity for insertion. Re-adding an entity pending deletion turns
// the delete back into an update.
func (t *Tracker) Add(entity any) error {
	if err := validate(entity); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.index[entity]; ok {
		if e.state == Deleted {
			e.state = Modified
		}
		return nil
	}
	t.put(&Entry{entity: entity, state: Added})
	return nil
}

// Attach starts tracking entity as Unchanged, taking a snapshot for change
// detection. Already tracked entities keep their state.
func (t *Tracker) Attach(entity any) error {
	if err := validate(entity); err != nil {
		return err
	}
	snap, err := snapshot(entity)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[entity]; ok {
		return nil
	}
	t.put(&Entry{entity: entity, state: Unchanged, snapshot: snap})
	return nil
}

// Update marks entity as modified. Untracked entities are attached in the
// Modified state; entities pending insertion stay Added.
func (t *Tracker) Update(entity any) error {
	if err := validate(entity); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.index[entity]
	if !ok {
		t.put(&Entry{entity: entity, state: Modified})
		return nil
	}
	if e.state != Added {
		e.state = Modified
	}
	return nil
}

// Remove marks entity for deletion. An entity that was only pending
// insertion is simply forgotten.
func (t *Tracker) Remove(entity any) error {
	if err := validate(entity); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.index[entity]
	if !ok {
		t.put(&Entry{entity: entity, state: Deleted})
		return nil
	}
	if e.state == Added {
		t.drop(entity)
		return nil
	}
	e.state = Deleted
	return nil
}

// Detach stops tracking entity.
func (t *Tracker) Detach(entity any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[entity]; !ok {
		return ErrNotTracked
	}
	t.drop(entity)
	return nil
}

// Entry returns a copy of the entry tracking entity.
func (t *Tracker) Entry(entity any) (*Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.index[entity]
	if !ok {
		return nil, false
	}
	cp := *e
	return &cp, true
}

// State returns the current state of entity, Detached when untracked.
func (t *Tracker) State(entity any) EntryState {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.index[entity]; ok {
		return e.state
	}
	return Detached
}

// DetectChanges promotes Unchanged entries whose current encoding differs
// from their snapshot to Modified.
func (t *Tracker) DetectChanges() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detectLocked()
}

func (t *Tracker) detectLocked() error {
	for _, e := range t.entries {
		if e.state != Unchanged {
			continue
		}
		cur, err := snapshot(e.entity)
		if err != nil {
			return err
		}
		if !bytes.Equal(cur, e.snapshot) {
			e.state = Modified
		}
	}
	return nil
}

// Entries returns copies of all tracked entries in registration order,
// running change detection first when auto-detection is enabled.
func (t *Tracker) Entries() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.autoDetect {
		// An entity that cannot be encoded keeps its previous state.
		_ = t.detectLocked()
	}
	out := make([]*Entry, len(t.entries))
	for i, e := range t.entries {
		cp := *e
		out[i] = &cp
	}
	return out
}

// HasChanges reports whether any entry is Added, Modified or Deleted.
func (t *Tracker) HasChanges() bool {
	for _, e := range t.Entries() {
		if e.state.IsDirty() {
			return true
		}
	}
	return false
}

// AcceptAllChanges marks the tracker as in sync with the database: deleted
// entries are forgotten and every other entry becomes Unchanged with a fresh
// snapshot.
func (t *Tracker) AcceptAllChanges() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.entries[:0]
	var firstErr error
	for _, e := range t.entries {
		if e.state == Deleted {
			delete(t.index, e.entity)
			continue
		}
		snap, err := snapshot(e.entity)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		e.state = Unchanged
		e.snapshot = snap
		kept = append(kept, e)
	}
	for i := len(kept); i < len(t.entries); i++ {
		t.entries[i] = nil
	}
	t.entries = kept
	return firstErr
}

// AcceptChanges is AcceptAllChanges restricted to entities. Untracked
// entities are ignored.
func (t *Tracker) AcceptChanges(entities ...any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, entity := range entities {
		e, ok := t.index[entity]
		if !ok {
			continue
		}
		if e.state == Deleted {
			t.drop(entity)
			continue
		}
		snap, err := snapshot(entity)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		e.state = Unchanged
		e.snapshot = snap
	}
	return firstErr
}

// Clear forgets every tracked entity.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
	t.index = make(map[any]*Entry)
}

// Len returns the number of tracked entities.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) put(e *Entry) {
	t.entries = append(t.entries, e)
	t.index[e.entity] = e
}

func (t *Tracker) drop(entity any) {
	delete(t.index, entity)
	for i, e := range t.entries {
		if e.entity == entity {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

func validate(entity any) error {
	if entity == nil {
		return ErrInvalidEntity
	}
	v := reflect.ValueOf(entity)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: got %T", ErrInvalidEntity, entity)
	}
	return nil
}

func snapshot(entity any) ([]byte, error) {
	b, err := msgpack.Marshal(entity)
	if err != nil {
		return nil, fmt.Errorf("snapshot %T: %w", entity, err)
	}
	return b, nil
}
