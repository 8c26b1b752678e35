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

// Package entity provides embeddable bases for models persisted through a
// tracked session.
//
// A session inspects every dirty entity for the interfaces declared here and
// fills identity, audit and concurrency columns right before flushing.
package entity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Identity is implemented by entities that generate their own key.
type Identity interface {
	AssignIdentity(now time.Time)
}

// CreateStamped is implemented by entities recording their creation time.
type CreateStamped interface {
	StampCreated(now time.Time)
}

// UpdateStamped is implemented by entities recording their last update time.
type UpdateStamped interface {
	StampUpdated(now time.Time)
}

// Versioned is implemented by entities using optimistic concurrency. Updates
// and deletes only match the row carrying CurrentVersion.
type Versioned interface {
	CurrentVersion() int64
	SetVersion(v int64)
}

// Base carries a UUID primary key and the time the row was registered.
type Base struct {
	ID           uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	RegisterDate time.Time `bun:"register_date,notnull" json:"register_date"`
}

// AssignIdentity fills a zero ID and a zero RegisterDate.
func (b *Base) AssignIdentity(now time.Time) {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.RegisterDate.IsZero() {
		b.RegisterDate = now
	}
}

// Equal compares two bases by ID. Two entities without an ID are never equal.
func (b *Base) Equal(other *Base) bool {
	if b == nil || other == nil {
		return false
	}
	if b.ID == uuid.Nil {
		return false
	}
	return b.ID == other.ID
}

// DefaultProps records creation and update times.
type DefaultProps struct {
	CreatedAt time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt *time.Time `bun:"updated_at" json:"updated_at,omitempty"`
}

func (p *DefaultProps) StampCreated(now time.Time) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
}

func (p *DefaultProps) StampUpdated(now time.Time) {
	p.UpdatedAt = &now
}

// ConcurrencyProps adds a version column bumped on every update.
type ConcurrencyProps struct {
	Version int64 `bun:"version,notnull" json:"version"`
}

func (p *ConcurrencyProps) CurrentVersion() int64 { return p.Version }

func (p *ConcurrencyProps) SetVersion(v int64) { p.Version = v }

// Single is the key of a table holding exactly one row. Key is forced to true
// whenever the model is written, so a second row can never be inserted.
type Single struct {
	Key bool `bun:"key,pk" json:"key"`
}

var _ bun.BeforeAppendModelHook = (*Single)(nil)

func (s *Single) BeforeAppendModel(_ context.Context, _ bun.Query) error {
	s.Key = true
	return nil
}

var (
	_ Identity      = (*Base)(nil)
	_ CreateStamped = (*DefaultProps)(nil)
	_ UpdateStamped = (*DefaultProps)(nil)
	_ Versioned     = (*ConcurrencyProps)(nil)
)
