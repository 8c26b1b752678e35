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
	"errors"

	"github.com/tomoncle/bunit/database"
	"github.com/tomoncle/bunit/repository"
	"github.com/tomoncle/bunit/uow"
	"github.com/uptrace/bun"
)

var ErrNotInitialized = errors.New("bunit: database not initialized, call database.InitDB first")

// Context is a unit of work bound to a tracked session. Repositories created
// from it register their changes in the session; Save writes them all.
type Context struct {
	*uow.UnitOfWork
	session *database.Session
}

// NewContext builds a session over db and a unit of work configured by
// options, both logging through the database package's logger.
func NewContext(db *bun.DB, options *uow.Options, opts ...database.SessionOption) *Context {
	logger := database.GetLogger()
	session := database.NewSession(db, append([]database.SessionOption{database.WithSessionLogger(logger)}, opts...)...)
	unit := uow.New(session, options)
	unit.SetLogger(logger)
	return &Context{UnitOfWork: unit, session: session}
}

// OpenContext builds a Context on the global connection opened by
// database.InitDB, using the unit of work section of its config.
func OpenContext(opts ...database.SessionOption) (*Context, error) {
	db := database.GetDB()
	if db == nil {
		return nil, ErrNotInitialized
	}
	return NewContext(db, database.UnitOfWorkOptions(), opts...), nil
}

func (c *Context) DB() *bun.DB { return c.session.DB() }

// TrackedSession returns the session the unit of work saves through.
func (c *Context) TrackedSession() *database.Session { return c.session }

// Repository returns a repository for T registering changes in c.
func Repository[T any](c *Context) repository.Repository[T] {
	return repository.NewRepository[T](c.session)
}
