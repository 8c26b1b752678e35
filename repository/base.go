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
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tomoncle/bunit/types"
	"github.com/tomoncle/bunit/uow"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

type baseRepositoryImpl[T any] struct {
	session    Session
	noTracking bool
}

// NewRepository returns a generic repository reading and registering
// changes through session.
func NewRepository[T any](session Session) Repository[T] {
	return &baseRepositoryImpl[T]{session: session}
}

func (r *baseRepositoryImpl[T]) AsNoTracking() Repository[T] {
	return &baseRepositoryImpl[T]{session: r.session, noTracking: true}
}

func (r *baseRepositoryImpl[T]) idb() bun.IDB { return r.session.IDB() }

func (r *baseRepositoryImpl[T]) Dialect() schema.Dialect { return r.idb().Dialect() }

func (r *baseRepositoryImpl[T]) NewSelect() *bun.SelectQuery { return r.idb().NewSelect() }

func (r *baseRepositoryImpl[T]) NewInsert() *bun.InsertQuery { return r.idb().NewInsert() }

func (r *baseRepositoryImpl[T]) NewUpdate() *bun.UpdateQuery { return r.idb().NewUpdate() }

func (r *baseRepositoryImpl[T]) NewDelete() *bun.DeleteQuery { return r.idb().NewDelete() }

func (r *baseRepositoryImpl[T]) GetAll(ctx context.Context) ([]*T, error) {
	return r.Get(ctx, nil)
}

func (r *baseRepositoryImpl[T]) List(ctx context.Context, filter *types.QueryFilter) ([]*T, error) {
	return r.Get(ctx, types.NewQueryOptions(filter))
}

func (r *baseRepositoryImpl[T]) Query(ctx context.Context, query string, args ...interface{}) ([]*T, error) {
	return r.Get(ctx, types.NewQueryOptions(types.NewQueryFilter(query, args...)))
}

func (r *baseRepositoryImpl[T]) Get(ctx context.Context, opts *types.QueryOptions) ([]*T, error) {
	var entities []*T
	query := applyOptions(r.idb().NewSelect().Model(&entities), opts)
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	if err := r.attach(opts != nil && opts.NoTracking, entities...); err != nil {
		return nil, err
	}
	return entities, nil
}

func (r *baseRepositoryImpl[T]) Find(ctx context.Context, id any) (*T, error) {
	entity := new(T)
	err := r.idb().NewSelect().Model(entity).Where("?TableAlias.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.attach(false, entity); err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *baseRepositoryImpl[T]) FirstOrDefault(ctx context.Context, filter *types.QueryFilter, relations ...string) (*T, error) {
	opts := types.NewQueryOptions(filter).Include(relations...).Window(-1, 1)
	entities, err := r.Get(ctx, opts)
	if err != nil || len(entities) == 0 {
		return nil, err
	}
	return entities[0], nil
}

func (r *baseRepositoryImpl[T]) SingleOrDefault(ctx context.Context, filter *types.QueryFilter, relations ...string) (*T, error) {
	var entities []*T
	opts := types.NewQueryOptions(filter).Include(relations...).Window(-1, 2)
	if err := applyOptions(r.idb().NewSelect().Model(&entities), opts).Scan(ctx); err != nil {
		return nil, err
	}
	switch len(entities) {
	case 0:
		return nil, nil
	case 1:
		if err := r.attach(false, entities[0]); err != nil {
			return nil, err
		}
		return entities[0], nil
	default:
		return nil, ErrMultipleResults
	}
}

func (r *baseRepositoryImpl[T]) Any(ctx context.Context, filter *types.QueryFilter) (bool, error) {
	return applyFilter(r.idb().NewSelect().Model((*T)(nil)), filter).Exists(ctx)
}

func (r *baseRepositoryImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int, error) {
	return applyFilter(r.idb().NewSelect().Model((*T)(nil)), filter).Count(ctx)
}

func (r *baseRepositoryImpl[T]) Page(ctx context.Context, pageRequest *types.PageRequest) (*types.Pagination[T], error) {
	var entities []*T
	query := applyFilter(r.idb().NewSelect().Model(&entities), pageRequest.GetFilter())
	pagination := types.NewDefaultPagination[T](pageRequest.GetPage(), pageRequest.GetPageSize())
	total, err := query.Count(ctx)
	if err != nil || total == 0 {
		return pagination, err
	}
	err = query.
		Offset(pageRequest.GetOffset()).
		Limit(pageRequest.GetPageSize()).
		Order(pageRequest.GetOrders()...).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.attach(pageRequest.NoTracking(), entities...); err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = entities
	return pagination, nil
}

func (r *baseRepositoryImpl[T]) Add(entity ...*T) error {
	for _, e := range entity {
		if err := r.session.Tracker().Add(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) Update(entity ...*T) error {
	for _, e := range entity {
		if err := r.session.Tracker().Update(e); err != nil {
			return err
		}
	}
	return nil
}

func (r *baseRepositoryImpl[T]) Delete(entity ...*T) error {
	for _, e := range entity {
		if err := r.session.Tracker().Remove(e); err != nil {
			return err
		}
	}
	return nil
}

// HasChanges reports pending changes across the whole session, not only
// entities of type T.
func (r *baseRepositoryImpl[T]) HasChanges() (bool, error) {
	return uow.HasPendingChanges(r.session.Tracker())
}

func (r *baseRepositoryImpl[T]) attach(skip bool, entities ...*T) error {
	if skip || r.noTracking {
		return nil
	}
	tracker := r.session.Tracker()
	for _, e := range entities {
		if err := tracker.Attach(e); err != nil {
			return err
		}
	}
	return nil
}

func applyFilter(query *bun.SelectQuery, filter *types.QueryFilter) *bun.SelectQuery {
	if filter.IsEmpty() {
		return query
	}
	return query.Where(filter.Schema, filter.Args...)
}

func applyOptions(query *bun.SelectQuery, opts *types.QueryOptions) *bun.SelectQuery {
	if opts == nil {
		return query
	}
	query = applyFilter(query, opts.Filter)
	for _, rel := range opts.Relations {
		query = query.Relation(rel)
	}
	if expr := opts.OrderExpr(); expr != "" {
		query = query.Order(expr)
	}
	if opts.Skip != nil {
		query = query.Offset(*opts.Skip)
	}
	if opts.Take != nil {
		query = query.Limit(*opts.Take)
	}
	return query
}

func (r *baseRepositoryImpl[T]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) (int64, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("fields cannot be empty")
	}
	if len(entity) == 0 {
		return 0, nil
	}
	entities := make([]*T, len(entity))
	copy(entities, entity)

	features := r.Dialect().Features()
	switch {
	case features.Has(feature.InsertOnConflict):
		return r.upsertOnConflict(ctx, fields, duplicateKeys, entities)
	case features.Has(feature.InsertOnDuplicateKey):
		return r.upsertOnDuplicateKey(ctx, fields, entities)
	default:
		return r.upsertFallback(ctx, entities)
	}
}

func (r *baseRepositoryImpl[T]) upsertOnDuplicateKey(ctx context.Context, fields []string, entities []*T) (int64, error) {
	sets := make([]string, 0, len(fields))
	for _, field := range fields {
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", field, field))
	}
	res, err := r.idb().NewInsert().
		Model(&entities).
		On("DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *baseRepositoryImpl[T]) upsertOnConflict(ctx context.Context, fields []string, duplicateKeys []string, entities []*T) (int64, error) {
	if len(duplicateKeys) == 0 {
		duplicateKeys = []string{"id"}
	}
	sets := make([]string, 0, len(fields))
	for _, field := range fields {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", field, field))
	}
	res, err := r.idb().NewInsert().
		Model(&entities).
		On("CONFLICT (" + strings.Join(duplicateKeys, ",") + ") DO UPDATE").
		Set(strings.Join(sets, ", ")).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *baseRepositoryImpl[T]) upsertFallback(ctx context.Context, entities []*T) (int64, error) {
	var total int64
	for _, entity := range entities {
		res, err := r.idb().NewInsert().Model(entity).Exec(ctx)
		if err != nil {
			var updateErr error
			res, updateErr = r.idb().NewUpdate().Model(entity).WherePK().Exec(ctx)
			if updateErr != nil {
				return total, fmt.Errorf("upsert failed for entity: insert error: %v, update error: %w", err, updateErr)
			}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
