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

package repository

import (
	"context"
	"errors"

	"github.com/tomoncle/bunit/tracking"
	"github.com/tomoncle/bunit/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// ErrMultipleResults is returned by SingleOrDefault when more than one row
// matches.
var ErrMultipleResults = errors.New("repository: sequence contains more than one element")

// Session is what a repository needs from a unit of work: a query handle
// that joins the open transaction and the tracker mutations register in.
type Session interface {
	IDB() bun.IDB
	Tracker() *tracking.Tracker
}

// ReadRepository defines tracked reads. Unless tracking is disabled every
// returned entity is attached to the session's tracker as Unchanged.
type ReadRepository[T any] interface {
	GetAll(ctx context.Context) ([]*T, error)

	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	Get(ctx context.Context, opts *types.QueryOptions) ([]*T, error)

	// Find returns the entity with the given primary key, nil when absent.
	Find(ctx context.Context, id any) (*T, error)

	FirstOrDefault(ctx context.Context, filter *types.QueryFilter, relations ...string) (*T, error)

	SingleOrDefault(ctx context.Context, filter *types.QueryFilter, relations ...string) (*T, error)

	Any(ctx context.Context, filter *types.QueryFilter) (bool, error)

	Count(ctx context.Context, filter *types.QueryFilter) (int, error)
}

// PageQueryRepository defines pagination functionality for listing entities.
type PageQueryRepository[T any] interface {
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)
}

// WriteRepository registers mutations in the tracker. Nothing reaches the
// database until the unit of work saves.
type WriteRepository[T any] interface {
	Add(entity ...*T) error
	Update(entity ...*T) error
	Delete(entity ...*T) error
	HasChanges() (bool, error)

	// Upsert writes immediately through the session's query handle, inside
	// the open transaction if any, and bypasses the tracker.
	Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) (int64, error)
}

// Repository combines reads, pagination and tracked writes and exposes Bun
// query builders for advanced use cases.
type Repository[T any] interface {
	ReadRepository[T]
	PageQueryRepository[T]
	WriteRepository[T]

	// AsNoTracking returns a view of the repository whose reads are not
	// attached to the tracker.
	AsNoTracking() Repository[T]

	Dialect() schema.Dialect
	NewSelect() *bun.SelectQuery
	NewInsert() *bun.InsertQuery
	NewUpdate() *bun.UpdateQuery
	NewDelete() *bun.DeleteQuery
}
