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

package bunit

import (
	"context"

	"github.com/tomoncle/bunit/repository"
	"github.com/tomoncle/bunit/types"
	"github.com/tomoncle/bunit/uow"
	"github.com/uptrace/bun"
)

type Service[T any] interface {
	// Get returns a single entity by its identifier, nil when absent.
	Get(ctx context.Context, id any) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	// List returns entities that match the provided filter.
	List(ctx context.Context, filter *types.QueryFilter) ([]*T, error)

	// Query selects entities matching a raw WHERE clause.
	Query(ctx context.Context, query string, args ...interface{}) ([]*T, error)

	// Page returns a paginated list of entities.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	// Add registers new entities for insertion.
	Add(model ...*T) error

	// Update registers entities as modified.
	Update(model ...*T) error

	// Delete registers the entity with the given identifier for removal.
	// It returns false when no such entity exists.
	Delete(ctx context.Context, id any) (bool, error)

	// Remove registers entities for removal.
	Remove(model ...*T) error

	// SaveOrUpdate upserts entities right away, inside the open transaction
	// if any.
	SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error

	// Save writes every pending change of the underlying context.
	Save(ctx context.Context) (bool, error)

	// SaveResult is Save with the full outcome.
	SaveResult(ctx context.Context) (uow.Result, error)

	HasChanges() (bool, error)

	SelectBuilder() *bun.SelectQuery
	InsertBuilder() *bun.InsertQuery
	UpdateBuilder() *bun.UpdateQuery
	DeleteBuilder() *bun.DeleteQuery
}

type baseServiceImpl[T any] struct {
	unit *Context
	repo repository.Repository[T]
}

// NewService returns a Service whose writes are saved by c.
func NewService[T any](c *Context) Service[T] {
	return &baseServiceImpl[T]{unit: c, repo: Repository[T](c)}
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id any) (*T, error) {
	return s.repo.Find(ctx, id)
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.repo.GetAll(ctx)
}

func (s *baseServiceImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	return s.repo.List(ctx, filter)
}

func (s *baseServiceImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	return s.repo.Query(ctx, query, args...)
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	return s.repo.Page(ctx, page)
}

func (s *baseServiceImpl[T]) Add(model ...*T) error {
	return s.repo.Add(model...)
}

func (s *baseServiceImpl[T]) Update(model ...*T) error {
	return s.repo.Update(model...)
}

func (s *baseServiceImpl[T]) Delete(ctx context.Context, id any) (bool, error) {
	model, err := s.repo.Find(ctx, id)
	if err != nil || model == nil {
		return false, err
	}
	return true, s.repo.Delete(model)
}

func (s *baseServiceImpl[T]) Remove(model ...*T) error {
	return s.repo.Delete(model...)
}

func (s *baseServiceImpl[T]) SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, model ...*T) error {
	_, err := s.repo.Upsert(ctx, fields, duplicateKeys, model...)
	return err
}

func (s *baseServiceImpl[T]) Save(ctx context.Context) (bool, error) {
	return s.unit.SaveContext(ctx)
}

func (s *baseServiceImpl[T]) SaveResult(ctx context.Context) (uow.Result, error) {
	return s.unit.SaveResultContext(ctx)
}

func (s *baseServiceImpl[T]) HasChanges() (bool, error) {
	return s.repo.HasChanges()
}

func (s *baseServiceImpl[T]) SelectBuilder() *bun.SelectQuery {
	return s.repo.NewSelect()
}

func (s *baseServiceImpl[T]) InsertBuilder() *bun.InsertQuery {
	return s.repo.NewInsert()
}

func (s *baseServiceImpl[T]) UpdateBuilder() *bun.UpdateQuery {
	return s.repo.NewUpdate()
}

func (s *baseServiceImpl[T]) DeleteBuilder() *bun.DeleteQuery {
	return s.repo.NewDelete()
}
