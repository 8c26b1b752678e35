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

package types

// QueryOptions collects the optional parts of a repository read: filter,
// ordering, skip/take window and eager-loaded relations.
type QueryOptions struct {
	Filter     *QueryFilter
	OrderBy    string
	Descending bool
	Skip       *int
	Take       *int
	Relations  []string
	NoTracking bool
}

// NewQueryOptions returns options holding the given filter.
func NewQueryOptions(filter *QueryFilter) *QueryOptions {
	return &QueryOptions{Filter: filter}
}

// Order sets the ordering column and direction.
func (o *QueryOptions) Order(column string, descending bool) *QueryOptions {
	o.OrderBy = column
	o.Descending = descending
	return o
}

// Window limits the result to take rows after skipping skip rows.
// Negative values leave the corresponding bound unset.
func (o *QueryOptions) Window(skip, take int) *QueryOptions {
	if skip >= 0 {
		o.Skip = &skip
	}
	if take >= 0 {
		o.Take = &take
	}
	return o
}

// Include adds relations to load together with the entities.
func (o *QueryOptions) Include(relations ...string) *QueryOptions {
	o.Relations = append(o.Relations, relations...)
	return o
}

// AsNoTracking returns results without attaching them to the change tracker.
func (o *QueryOptions) AsNoTracking() *QueryOptions {
	o.NoTracking = true
	return o
}

// OrderExpr renders the ORDER BY expression, or "" when no column is set.
func (o *QueryOptions) OrderExpr() string {
	if o == nil || o.OrderBy == "" {
		return ""
	}
	if o.Descending {
		return o.OrderBy + " DESC"
	}
	return o.OrderBy + " ASC"
}
